package gesture

import (
	"math"
	"sync"
	"time"

	"watchkit/internal/protocol"
)

// FlickConfig tunes the flick detector. The zero value selects the
// defaults below.
type FlickConfig struct {
	// InitiationThreshold is the accumulated displacement required to
	// classify a directional flick instead of a plain tap.
	InitiationThreshold float64
	// Delay is the detection window armed by each tap.
	Delay time.Duration
	// MinInterval is the refractory period after any classification,
	// suppressing re-triggers on mechanical ringing.
	MinInterval time.Duration
	// Scale multiplies the per-sample displacement.
	Scale float64
	// UpdateInterval is the minimum spacing between accumulated
	// samples; frames arriving faster are coalesced.
	UpdateInterval time.Duration
	// LeftHanded and ScreenRotated flip the lateral sign so a flick
	// toward the fingers is "right" regardless of how the watch is worn.
	LeftHanded    bool
	ScreenRotated bool
}

func (c FlickConfig) withDefaults() FlickConfig {
	if c.InitiationThreshold <= 0 {
		c.InitiationThreshold = 30.0
	}
	if c.Delay <= 0 {
		c.Delay = 100 * time.Millisecond
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 300 * time.Millisecond
	}
	if c.Scale <= 0 {
		c.Scale = 6.0
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = 2 * time.Millisecond
	}
	return c
}

// FlickDetector classifies post-tap wrist motion. A tap arms a short
// window and zeroes the displacement accumulator; sensor frames inside
// the window accumulate a scaled displacement from the angular-velocity
// and gravity cross terms. Crossing the threshold classifies the
// dominant axis as a directional flick; window expiry with the
// threshold unmet classifies a plain tap. State is owned by one
// detector instance and never shared across sessions.
type FlickDetector struct {
	cfg   FlickConfig
	sched Scheduler
	emit  func(Event)

	mu              sync.Mutex
	armed           bool
	gen             int // arm generation, guards stale expiry timers
	deadline        time.Time
	accX, accY      float64
	lastSample      time.Time
	refractoryUntil time.Time
	timer           Timer
}

// NewFlickDetector returns a detector emitting through emit. A nil
// sched selects WallScheduler.
func NewFlickDetector(cfg FlickConfig, sched Scheduler, emit func(Event)) *FlickDetector {
	if sched == nil {
		sched = WallScheduler
	}
	return &FlickDetector{cfg: cfg.withDefaults(), sched: sched, emit: emit}
}

// OnTap arms the detection window. Taps inside the refractory period
// are ignored entirely.
func (d *FlickDetector) OnTap(now time.Time) {
	d.mu.Lock()
	if now.Before(d.refractoryUntil) {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.armed = true
	d.gen++
	d.deadline = now.Add(d.cfg.Delay)
	d.accX, d.accY = 0, 0
	d.lastSample = time.Time{}
	g := d.gen
	d.timer = d.sched.AfterFunc(d.cfg.Delay, func() { d.expire(g) })
	d.mu.Unlock()
}

// OnFrame accumulates one sensor frame. Frames outside an armed window
// are discarded without locking any history.
func (d *FlickDetector) OnFrame(f protocol.SensorFrame, now time.Time) {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return
	}
	if now.After(d.deadline) {
		// Window over before the scheduler got to it.
		ev := d.disarmLocked(KindTap, now)
		d.mu.Unlock()
		d.emit(ev)
		return
	}
	if !d.lastSample.IsZero() && now.Sub(d.lastSample) < d.cfg.UpdateInterval {
		d.mu.Unlock()
		return
	}
	d.lastSample = now

	dx, dy := d.displacement(f)
	d.accX += dx
	d.accY += dy

	var kind Kind
	switch {
	case math.Abs(d.accY) > d.cfg.InitiationThreshold && math.Abs(d.accY) > 2*math.Abs(d.accX):
		if d.accY > 0 {
			kind = KindFlickDown
		} else {
			kind = KindFlickUp
		}
	case math.Abs(d.accX) > d.cfg.InitiationThreshold && math.Abs(d.accX) > 2*math.Abs(d.accY):
		if d.accX > 0 {
			kind = KindFlickRight
		} else {
			kind = KindFlickLeft
		}
	default:
		d.mu.Unlock()
		return
	}
	ev := d.disarmLocked(kind, now)
	d.mu.Unlock()
	d.emit(ev)
}

// displacement maps one inertial sample to screen-plane motion. The
// gyro/gravity cross terms project wrist rotation onto the screen axes;
// handedness and screen rotation flip the lateral sign.
func (d *FlickDetector) displacement(f protocol.SensorFrame) (dx, dy float64) {
	gyroY, gyroZ := float64(f.Gyro.Y), float64(f.Gyro.Z)
	gravY, gravZ := float64(f.Grav.Y), float64(f.Grav.Z)

	sign := 1.0
	if d.cfg.LeftHanded {
		sign = -sign
	}
	if d.cfg.ScreenRotated {
		sign = -sign
	}

	step := d.cfg.Scale * float64(d.cfg.UpdateInterval) / float64(time.Millisecond)
	dx = step * (-gyroZ*gravZ - gyroY*gravY)
	dy = sign * step * (gyroZ*gravY - gyroY*gravZ)
	return dx, dy
}

// disarmLocked ends the window, starts the refractory period and builds
// the event to emit. Caller holds mu.
func (d *FlickDetector) disarmLocked(kind Kind, now time.Time) Event {
	d.armed = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.refractoryUntil = now.Add(d.cfg.MinInterval)
	return Event{Kind: kind, Time: now}
}

// expire fires when the window elapses without the threshold being met.
func (d *FlickDetector) expire(g int) {
	d.mu.Lock()
	if !d.armed || d.gen != g {
		d.mu.Unlock()
		return
	}
	ev := d.disarmLocked(KindTap, d.deadline)
	d.mu.Unlock()
	d.emit(ev)
}

// Reset cancels the window and clears all state, including the
// refractory period. Called on disconnect and teardown.
func (d *FlickDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.armed = false
	d.accX, d.accY = 0, 0
	d.lastSample = time.Time{}
	d.refractoryUntil = time.Time{}
}
