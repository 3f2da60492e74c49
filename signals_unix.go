//go:build unix

package levelctl

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func defaultSignals() []os.Signal {
	return []os.Signal{
		os.Interrupt,    // SIGINT
		syscall.SIGTERM, // graceful termination
	}
}

// stepSignals maps a signal to the number of levels it moves the main
// logger's threshold: SIGUSR1 toward DEBUG, SIGUSR2 toward ERROR.
func stepSignals() map[os.Signal]int {
	return map[os.Signal]int{
		unix.SIGUSR1: -1,
		unix.SIGUSR2: +1,
	}
}
