// Package logsink provides an io.Writer that keeps recent log lines in memory
// and fans new lines out to live subscribers.
//
// A Sink is meant to sit behind a slog handler (which writes one record per
// Write call) so that log output can be tailed or watched remotely.
package logsink

import (
	"container/ring"
	"io"
	"sync"
)

// DefaultLines is the ring size used when New is given a non-positive length.
const DefaultLines = 1000

// subscriberBuffer is the per-subscriber channel capacity. Lines are dropped
// for a subscriber whose channel is full.
const subscriberBuffer = 256

// Sink is a circular buffer of log lines. It is safe for concurrent use.
type Sink struct {
	mu      sync.RWMutex
	buffer  *ring.Ring // Always points to next insert position.
	subs    map[*subscriber]struct{}
	dropped uint64
}

type subscriber struct {
	ch chan []byte
}

// New returns a Sink that retains the last lines written to it.
func New(lines int) *Sink {
	if lines <= 0 {
		lines = DefaultLines
	}
	return &Sink{
		buffer: ring.New(lines),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Write stores a copy of p and forwards it to subscribers. It always returns
// len(p), nil.
func (s *Sink) Write(p []byte) (int, error) {
	line := make([]byte, len(p))
	copy(line, p)

	s.mu.Lock()
	s.buffer.Value = line
	s.buffer = s.buffer.Next()
	for sub := range s.subs {
		select {
		case sub.ch <- line:
		default:
			s.dropped++
		}
	}
	s.mu.Unlock()
	return len(p), nil
}

// Tail returns up to n of the most recent lines, oldest first. n <= 0 returns
// everything retained.
func (s *Sink) Tail(n int) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all [][]byte
	s.buffer.Do(func(v any) {
		if v != nil {
			all = append(all, v.([]byte))
		}
	})
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Dump writes the retained lines (oldest first) to w.
func (s *Sink) Dump(w io.Writer, n int) error {
	for _, line := range s.Tail(n) {
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a live subscriber. Lines written after the call are
// delivered on the returned channel until cancel is called. Cancel is
// idempotent and closes the channel.
func (s *Sink) Subscribe() (lines <-chan []byte, cancel func()) {
	sub := &subscriber{ch: make(chan []byte, subscriberBuffer)}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (s *Sink) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Dropped returns the number of lines not delivered to slow subscribers.
func (s *Sink) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}
