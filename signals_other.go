//go:build !unix

package levelctl

import "os"

func defaultSignals() []os.Signal {
	// Best effort: at least support os.Interrupt.
	return []os.Signal{os.Interrupt}
}

func stepSignals() map[os.Signal]int { return nil }
