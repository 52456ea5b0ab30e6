package publish

import "time"

// Timer is a cancellation token for a scheduled task.
type Timer interface {
	// Stop cancels the task. It reports false when the task already fired.
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
