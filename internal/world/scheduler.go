package world

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. Returns false if the callback
	// already fired or the timer was stopped before.
	Stop() bool
}

// Scheduler runs callbacks after a delay. Callbacks run on their own
// goroutine and must do their own locking.
type Scheduler interface {
	After(d time.Duration, fn func()) Timer
}

// RealScheduler schedules callbacks with time.AfterFunc.
type RealScheduler struct{}

// After implements Scheduler.
func (RealScheduler) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
