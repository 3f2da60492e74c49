//go:build unix

package inject

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// processAlive probes pid with signal 0. EPERM means the process exists but
// belongs to someone else; the control socket's permissions decide the rest.
func processAlive(pid int) error {
	err := unix.Kill(pid, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
		return nil
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("%w: pid %d", ErrNoSuchProcess, pid)
	default:
		return fmt.Errorf("inject: probe pid %d: %w", pid, err)
	}
}
