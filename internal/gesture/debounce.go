package gesture

import (
	"sync"
	"time"
)

// DefaultTapWindow is how long a run of taps may keep extending before
// it is classified.
const DefaultTapWindow = 500 * time.Millisecond

// TapDebouncer classifies runs of raw tap signals. Taps arriving within
// the window of each other extend the run. A second tap classifies
// immediately as a double tap, and a third immediately as a triple tap
// and resets, so a fourth tap starts a new run. Only a lone tap waits:
// the first tap of a run schedules a cancellable check, and if the
// window expires with no further tap the run classifies as a single
// tap.
//
// Safe for concurrent use; in practice the session goroutine feeds taps
// and the scheduler goroutine fires expiries.
type TapDebouncer struct {
	window time.Duration
	sched  Scheduler
	emit   func(Event)

	mu      sync.Mutex
	count   int
	lastTap time.Time
	timer   Timer
}

// NewTapDebouncer returns a debouncer emitting classified events
// through emit. A window of 0 selects DefaultTapWindow; a nil sched
// selects WallScheduler.
func NewTapDebouncer(window time.Duration, sched Scheduler, emit func(Event)) *TapDebouncer {
	if window <= 0 {
		window = DefaultTapWindow
	}
	if sched == nil {
		sched = WallScheduler
	}
	return &TapDebouncer{window: window, sched: sched, emit: emit}
}

// Tap records one raw tap at the given timestamp.
func (d *TapDebouncer) Tap(now time.Time) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	// A run only continues while taps stay inside the window. A count
	// of two carries no timer (the double tap already emitted), and a
	// stale count can linger if the timer lost the race with Reset.
	if d.count > 0 && now.Sub(d.lastTap) > d.window {
		d.count = 0
	}
	d.count++
	d.lastTap = now

	switch d.count {
	case 1:
		d.timer = d.sched.AfterFunc(d.window, d.expire)
		d.mu.Unlock()
	case 2:
		d.mu.Unlock()
		d.emit(Event{Kind: KindDoubleTap, Time: now})
	default:
		d.count = 0
		d.mu.Unlock()
		d.emit(Event{Kind: KindTripleTap, Time: now})
	}
}

// expire classifies a lone tap if no further tap superseded it.
func (d *TapDebouncer) expire() {
	d.mu.Lock()
	if d.count != 1 {
		d.mu.Unlock()
		return
	}
	d.count = 0
	d.timer = nil
	at := d.lastTap
	d.mu.Unlock()

	d.emit(Event{Kind: KindTap, Time: at})
}

// Reset cancels any pending classification and clears the run. Called
// on disconnect and teardown so no stale event fires afterwards.
func (d *TapDebouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.count = 0
}
