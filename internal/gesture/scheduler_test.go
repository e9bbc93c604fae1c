package gesture

import (
	"sync"
	"time"
)

// fakeScheduler records scheduled callbacks so tests fire them by hand
// instead of sleeping.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{d: d, fn: fn}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// firePending runs every timer that has not been stopped or fired yet,
// returning how many ran.
func (s *fakeScheduler) firePending() int {
	s.mu.Lock()
	pending := append([]*fakeTimer(nil), s.timers...)
	s.mu.Unlock()

	n := 0
	for _, t := range pending {
		t.mu.Lock()
		if t.stopped || t.fired {
			t.mu.Unlock()
			continue
		}
		t.fired = true
		fn := t.fn
		t.mu.Unlock()
		fn()
		n++
	}
	return n
}
