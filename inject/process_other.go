//go:build !unix

package inject

import (
	"fmt"
	"os"
)

func processAlive(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("%w: pid %d", ErrNoSuchProcess, pid)
	}
	_ = p.Release()
	return nil
}
