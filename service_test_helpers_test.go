package levelctl

import (
	"bytes"
	"io"
	"os"
	"sync"
	"testing"
	"time"
)

// shortSocketDir returns a temp dir short enough for unix socket paths.
func shortSocketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "lcs")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func quietSpec(t *testing.T) TargetSpec {
	t.Helper()
	return TargetSpec{
		Interval:  10 * time.Millisecond,
		Output:    io.Discard,
		Banner:    io.Discard,
		SocketDir: shortSocketDir(t),
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sinkContains(s *Service, substr string) bool {
	for _, line := range s.Sink.Tail(0) {
		if bytes.Contains(line, []byte(substr)) {
			return true
		}
	}
	return false
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (w *lockedBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *lockedBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.String()
}
