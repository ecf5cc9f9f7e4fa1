// Package shutdown provides the set-once cancellation signal shared by every
// exhibit loop and the video supervisor.
package shutdown

import (
	"sync"
	"time"
)

// Signal is a set-once flag that any number of goroutines can wait on.
// Once set it stays set for the life of the process.
type Signal struct {
	once sync.Once
	done chan struct{}
}

// New returns an unset Signal.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set marks the signal and wakes all waiters. Idempotent.
func (s *Signal) Set() {
	s.once.Do(func() { close(s.done) })
}

// IsSet reports whether Set has been called. Never blocks.
func (s *Signal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal is set or timeout elapses and reports whether
// the signal was set. A non-positive timeout polls.
func (s *Signal) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return s.IsSet()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return s.IsSet()
	}
}

// Done returns a channel closed when the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
