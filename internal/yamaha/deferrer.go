package yamaha

import (
	"sync"
	"time"
)

// Deferrer runs a callback once, later. Each Defer replaces any callback
// that has not started yet; Cancel drops it.
type Deferrer interface {
	Defer(fn func())
	Cancel()
}

// TimerSlot is a Deferrer backed by time.AfterFunc. It holds at most one
// pending callback.
type TimerSlot struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	gen   uint64
}

// NewTimerSlot creates a slot that fires delay after the most recent Defer.
func NewTimerSlot(delay time.Duration) *TimerSlot {
	return &TimerSlot{delay: delay}
}

// Defer schedules fn, superseding the previous pending callback.
func (s *TimerSlot) Defer(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending callback, if any.
func (s *TimerSlot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a callback is waiting to run.
func (s *TimerSlot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
