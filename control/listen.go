package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/net/netutil"

	"github.com/evan-idocoding/levelctl/target"
)

const (
	// SocketPrefix and SocketSuffix frame the pid in a control socket name.
	SocketPrefix = "levelctl-"
	SocketSuffix = ".sock"

	// DefaultMaxConns caps concurrent control connections.
	DefaultMaxConns = 8

	socketMode = 0o600
)

// ErrSocketInUse is returned by Listen when another process is serving on
// the socket path.
var ErrSocketInUse = errors.New("control: socket in use")

// SocketPath returns the control socket path of pid under dir. An empty dir
// means os.TempDir().
func SocketPath(dir string, pid int) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, SocketPrefix+strconv.Itoa(pid)+SocketSuffix)
}

// Listen creates the control socket at path.
//
// A stale socket left by a dead process is removed first; a live one yields
// ErrSocketInUse. The socket is chmod'ed to 0600 and unlinked when the
// listener is closed. Accepted connections carry their peer's credentials as
// their RemoteAddr (see ConnContext). maxConns <= 0 means DefaultMaxConns.
func Listen(path string, maxConns int) (net.Listener, error) {
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	if err := removeStale(path); err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("control: listen %q: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)
	if err := os.Chmod(path, socketMode); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("control: chmod %q: %w", path, err)
	}
	return netutil.LimitListener(&peerListener{UnixListener: ln}, maxConns), nil
}

func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("control: stat %q: %w", path, err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("control: %q exists and is not a socket", path)
	}
	c, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		_ = c.Close()
		return fmt.Errorf("%w: %s", ErrSocketInUse, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("control: remove stale socket %q: %w", path, err)
	}
	return nil
}

// PeerAddr is the RemoteAddr of an accepted control connection.
type PeerAddr struct {
	target.Peer
}

func (PeerAddr) Network() string { return "unix" }

func (a PeerAddr) String() string {
	return "pid=" + strconv.Itoa(a.PID) + ",uid=" + strconv.Itoa(a.UID)
}

type peerListener struct {
	*net.UnixListener
}

func (l *peerListener) Accept() (net.Conn, error) {
	c, err := l.AcceptUnix()
	if err != nil {
		return nil, err
	}
	peer, ok := peerCredentials(c)
	if !ok {
		peer = target.UnknownPeer
	}
	return &peerConn{UnixConn: c, addr: PeerAddr{Peer: peer}}, nil
}

type peerConn struct {
	*net.UnixConn
	addr PeerAddr
}

func (c *peerConn) RemoteAddr() net.Addr { return c.addr }

type peerKey struct{}

// ConnContext is an http.Server.ConnContext that makes the peer of a control
// connection available to handlers through PeerFromContext.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	if a, ok := c.RemoteAddr().(PeerAddr); ok {
		return context.WithValue(ctx, peerKey{}, a.Peer)
	}
	return ctx
}

// PeerFromContext returns the peer attached by ConnContext, or
// target.UnknownPeer.
func PeerFromContext(ctx context.Context) target.Peer {
	if p, ok := ctx.Value(peerKey{}).(target.Peer); ok {
		return p
	}
	return target.UnknownPeer
}
