//go:build linux

package control

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/evan-idocoding/levelctl/target"
)

func peerCredentials(c *net.UnixConn) (target.Peer, bool) {
	raw, err := c.SyscallConn()
	if err != nil {
		return target.Peer{}, false
	}
	var (
		cred    *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil {
		return target.Peer{}, false
	}
	return target.Peer{PID: int(cred.Pid), UID: int(cred.Uid)}, true
}
