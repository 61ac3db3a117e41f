package game

import "time"

// Scheduler schedules a single delayed callback. The returned cancel function
// stops a pending fire but cannot stop one already in flight; callers must
// guard their callbacks with a generation check.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

type realScheduler struct{}

// NewScheduler returns the production scheduler backed by time.AfterFunc.
func NewScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
