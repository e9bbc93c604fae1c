package gesture

import (
	"time"

	"watchkit/internal/protocol"
)

// Config bundles the tuning for both classifiers.
type Config struct {
	TapWindow time.Duration
	Flick     FlickConfig
}

// Engine runs the tap debouncer and the flick detector over the same
// input stream. The two classifiers are independent: every raw tap
// feeds both, every sensor frame feeds the flick detector, and each
// emits its own events through the shared callback.
type Engine struct {
	Taps   *TapDebouncer
	Flicks *FlickDetector
}

// NewEngine builds both classifiers around one emit callback. A nil
// sched selects WallScheduler.
func NewEngine(cfg Config, sched Scheduler, emit func(Event)) *Engine {
	return &Engine{
		Taps:   NewTapDebouncer(cfg.TapWindow, sched, emit),
		Flicks: NewFlickDetector(cfg.Flick, sched, emit),
	}
}

// HandleTap feeds one raw tap signal to both classifiers.
func (e *Engine) HandleTap(now time.Time) {
	e.Taps.Tap(now)
	e.Flicks.OnTap(now)
}

// HandleFrame feeds one sensor frame to the flick detector.
func (e *Engine) HandleFrame(f protocol.SensorFrame, now time.Time) {
	e.Flicks.OnFrame(f, now)
}

// Reset clears both classifiers and cancels their timers. No gesture
// state survives a disconnect or reconnect.
func (e *Engine) Reset() {
	e.Taps.Reset()
	e.Flicks.Reset()
}
