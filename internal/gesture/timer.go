package gesture

import "time"

// Timer is a scheduled callback that can be cancelled. Stop reports
// whether the call was prevented from firing.
type Timer interface {
	Stop() bool
}

// Scheduler schedules deferred callbacks. The classifiers never sleep;
// every delayed decision (the single-tap timeout, the flick window
// expiry) goes through a Scheduler so teardown can cancel it and tests
// can fire it by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// WallScheduler dispatches through time.AfterFunc.
var WallScheduler Scheduler = wallScheduler{}
