package testutil

import (
	"slices"
	"sync"
	"time"

	"github.com/udisondev/instancer/internal/world"
)

// ManualScheduler is a world.Scheduler driven by a virtual clock.
// Callbacks run synchronously inside Advance, on the caller's goroutine,
// in deadline order (ties in scheduling order).
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	timers []*manualTimer
}

var _ world.Scheduler = (*ManualScheduler)(nil)

type manualTimer struct {
	s        *ManualScheduler
	deadline time.Duration
	seq      uint64
	fn       func()
	done     bool
}

// NewManualScheduler returns a scheduler at virtual time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// After implements world.Scheduler.
func (s *ManualScheduler) After(d time.Duration, fn func()) world.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &manualTimer{s: s, deadline: s.now + max(d, 0), seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Stop implements world.Timer.
func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	t.s.timers = slices.DeleteFunc(t.s.timers, func(o *manualTimer) bool { return o == t })
	return true
}

// Advance moves the clock forward by d and fires every timer whose deadline
// has been reached, including timers scheduled by callbacks within the window.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.deadline
		next.done = true
		s.timers = slices.DeleteFunc(s.timers, func(o *manualTimer) bool { return o == next })
		s.mu.Unlock()

		// callback без блокировки: он может планировать или отменять таймеры
		next.fn()
	}
}

func (s *ManualScheduler) nextDueLocked(target time.Duration) *manualTimer {
	var next *manualTimer
	for _, t := range s.timers {
		if t.deadline > target {
			continue
		}
		if next == nil || t.deadline < next.deadline || (t.deadline == next.deadline && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Now returns the virtual time elapsed since creation.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}
