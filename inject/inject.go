// Package inject delivers level-change scripts to a running target process
// identified only by its pid.
//
// The target must have opted in by serving package control on its control
// socket. Delivery is a single attempt: there is no retry and the script file
// is never removed.
package inject

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/fastjson"

	"github.com/evan-idocoding/levelctl/control"
	"github.com/evan-idocoding/levelctl/httpx/client"
	"github.com/evan-idocoding/levelctl/loglevel"
	"github.com/evan-idocoding/levelctl/script"
)

// DefaultTimeout bounds one injection round trip.
const DefaultTimeout = 10 * time.Second

// maxReplyBytes caps control replies read by the injector.
const maxReplyBytes = 64 << 10

// baseURL is never resolved; every request is dialed to the control socket.
const baseURL = "http://levelctl"

var (
	// ErrNoSuchProcess means no live process has the requested pid.
	ErrNoSuchProcess = errors.New("inject: no such process")
	// ErrNotEnabled means the process is alive but serves no control socket.
	ErrNotEnabled = errors.New("inject: target has not enabled remote control")
)

// RejectedError is returned when the target answered with a non-2xx status.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("inject: target rejected request (status %d): %s", e.StatusCode, e.Message)
}

// Ack is the target's acknowledgement of an executed script.
type Ack struct {
	ID     string
	Logger string
	// OldLevel is zero when the script was only queued (Applied is false).
	OldLevel loglevel.Level
	NewLevel loglevel.Level
	// Created reports that the target had no logger by that name.
	Created bool
	Applied bool
}

// SocketPath returns the control socket path of pid under dir.
func SocketPath(dir string, pid int) string { return control.SocketPath(dir, pid) }

// Injector talks to targets' control sockets. The zero value is ready to use.
type Injector struct {
	// SocketDir is where control sockets live. Default os.TempDir().
	SocketDir string
	// Timeout bounds each request. Default DefaultTimeout.
	Timeout time.Duration
	// NoWait makes Inject return once the target has queued the script.
	NoWait bool
	// Logger receives debug traces. Default slog.Default().
	Logger *slog.Logger
}

func (in *Injector) logger() *slog.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return slog.Default()
}

func (in *Injector) timeout() time.Duration {
	if in.Timeout > 0 {
		return in.Timeout
	}
	return DefaultTimeout
}

// Resolve checks that pid is a live process serving a control socket and
// returns the socket path.
func (in *Injector) Resolve(pid int) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("%w: invalid pid %d", ErrNoSuchProcess, pid)
	}
	if err := processAlive(pid); err != nil {
		return "", err
	}
	path := SocketPath(in.SocketDir, pid)
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: pid %d has no control socket at %s", ErrNotEnabled, pid, path)
		}
		return "", fmt.Errorf("inject: stat %s: %w", path, err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return "", fmt.Errorf("%w: %s is not a socket", ErrNotEnabled, path)
	}
	return path, nil
}

func (in *Injector) client(path string) *http.Client {
	return client.New(
		client.WithUnixSocket(path),
		client.WithTimeout(in.timeout()),
		client.WithMiddlewares(client.RequestID()),
	)
}

// Inject reads the script at scriptPath and executes it inside pid.
//
// The file must parse as a script; it is validated locally so a malformed
// file never reaches the target. On success the target's acknowledgement is
// returned. The file is left in place in every case.
func (in *Injector) Inject(ctx context.Context, pid int, scriptPath string) (Ack, error) {
	s, body, err := script.Load(scriptPath)
	if err != nil {
		return Ack{}, fmt.Errorf("inject: %w", err)
	}
	path, err := in.Resolve(pid)
	if err != nil {
		return Ack{}, err
	}

	u := baseURL + "/script/exec"
	if in.NoWait {
		u += "?wait=0"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("inject: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	in.logger().Debug("sending script", "pid", pid, "socket", path, "logger", s.Logger, "level", s.Level.String())
	resp, err := in.client(path).Do(req)
	if err != nil {
		return Ack{}, dialError(pid, path, err)
	}
	reply, err := client.ReadAllAndCloseLimit(resp.Body, maxReplyBytes)
	if err != nil {
		return Ack{}, fmt.Errorf("inject: read reply from pid %d: %w", pid, err)
	}
	ack, msg, perr := parseAck(reply)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg == "" {
			msg = strings.TrimSpace(string(reply))
		}
		return Ack{}, &RejectedError{StatusCode: resp.StatusCode, Message: msg}
	}
	if perr != nil {
		return Ack{}, fmt.Errorf("inject: decode acknowledgement: %w", perr)
	}
	in.logger().Debug("script acknowledged", "pid", pid, "id", ack.ID, "applied", ack.Applied, "created", ack.Created)
	return ack, nil
}

// Get returns the current threshold of logger inside pid. It does not create
// the logger; an unknown name yields a *RejectedError with status 404.
func (in *Injector) Get(ctx context.Context, pid int, logger string) (loglevel.Snapshot, error) {
	path, err := in.Resolve(pid)
	if err != nil {
		return loglevel.Snapshot{}, err
	}
	q := url.Values{"format": {"json"}}
	if logger != "" {
		q.Set("logger", logger)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/log/level?"+q.Encode(), nil)
	if err != nil {
		return loglevel.Snapshot{}, fmt.Errorf("inject: %w", err)
	}
	resp, err := in.client(path).Do(req)
	if err != nil {
		return loglevel.Snapshot{}, dialError(pid, path, err)
	}
	reply, err := client.ReadAllAndCloseLimit(resp.Body, maxReplyBytes)
	if err != nil {
		return loglevel.Snapshot{}, fmt.Errorf("inject: read reply from pid %d: %w", pid, err)
	}
	return parseSnapshot(resp.StatusCode, reply)
}

// Watch streams the target's log output to w until ctx is done or the target
// closes the stream.
func (in *Injector) Watch(ctx context.Context, pid int, w io.Writer) error {
	path, err := in.Resolve(pid)
	if err != nil {
		return err
	}
	d := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var nd net.Dialer
			return nd.DialContext(ctx, "unix", path)
		},
		HandshakeTimeout: in.timeout(),
	}
	conn, resp, err := d.DialContext(ctx, "ws://levelctl/log/watch", nil)
	if err != nil {
		if resp != nil {
			msg, _ := client.ReadAllAndCloseLimit(resp.Body, maxReplyBytes)
			return &RejectedError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
		}
		return dialError(pid, path, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("inject: watch pid %d: %w", pid, err)
		}
		if _, err := w.Write(msg); err != nil {
			return err
		}
	}
}

// dialError maps a refused connection on an existing socket file (a socket
// left behind by a dead process whose pid was reused) to ErrNotEnabled.
func dialError(pid int, path string, err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: pid %d refused connection on %s", ErrNotEnabled, pid, path)
	}
	return fmt.Errorf("inject: pid %d: %w", pid, err)
}

var replyParsers fastjson.ParserPool

// parseAck decodes an acknowledgement. msg is the target's error text, if any.
func parseAck(b []byte) (ack Ack, msg string, err error) {
	p := replyParsers.Get()
	defer replyParsers.Put(p)
	v, err := p.ParseBytes(b)
	if err != nil {
		return Ack{}, "", err
	}
	msg = string(v.GetStringBytes("error"))
	if !v.GetBool("ok") {
		if msg == "" {
			msg = "not ok"
		}
		return Ack{}, msg, errors.New(msg)
	}
	ack = Ack{
		ID:      string(v.GetStringBytes("id")),
		Logger:  string(v.GetStringBytes("logger")),
		Created: v.GetBool("created"),
		Applied: v.GetBool("applied"),
	}
	if ack.NewLevel, err = loglevel.ParseLevel(string(v.GetStringBytes("new_level"))); err != nil {
		return Ack{}, msg, err
	}
	if old := v.GetStringBytes("old_level"); len(old) > 0 {
		if ack.OldLevel, err = loglevel.ParseLevel(string(old)); err != nil {
			return Ack{}, msg, err
		}
	}
	return ack, msg, nil
}

func parseSnapshot(status int, b []byte) (loglevel.Snapshot, error) {
	p := replyParsers.Get()
	defer replyParsers.Put(p)
	v, err := p.ParseBytes(b)
	if status < 200 || status > 299 {
		msg := strings.TrimSpace(string(b))
		if err == nil {
			msg = string(v.GetStringBytes("error"))
		}
		return loglevel.Snapshot{}, &RejectedError{StatusCode: status, Message: msg}
	}
	if err != nil {
		return loglevel.Snapshot{}, fmt.Errorf("inject: decode level: %w", err)
	}
	log := v.Get("log")
	if log == nil {
		return loglevel.Snapshot{}, errors.New("inject: decode level: missing log object")
	}
	return loglevel.Snapshot{
		Logger:     string(log.GetStringBytes("logger")),
		Level:      string(log.GetStringBytes("level")),
		LevelValue: log.GetInt("level_value"),
	}, nil
}
