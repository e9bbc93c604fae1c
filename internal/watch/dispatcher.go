package watch

import (
	"log/slog"
	"sync"

	"watchkit/internal/gesture"
	"watchkit/internal/protocol"
)

// Dispatcher holds the registered event handlers and invokes them in
// registration order. Registration is safe from any goroutine; the
// session delivers events from its run goroutine, so handlers for a
// given source never run concurrently with each other. A panicking
// handler is logged and skipped, it never takes the stream down.
type Dispatcher struct {
	mu            sync.RWMutex
	gestureFns    []func(gesture.Event)
	probFns       []func([]protocol.ProbabilityEntry)
	sensorFns     []func(protocol.SensorFrame)
	touchFns      []func(protocol.TouchEvent)
	rotaryFns     []func(step int32)
	backButtonFns []func()
	pressureFns   []func(float32)
	stateFns      []func(ConnectionState)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// OnGesture registers a handler for classified gestures (taps, multi
// taps, flicks) and pass-through device gestures (pinch, dpad).
func (d *Dispatcher) OnGesture(fn func(gesture.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gestureFns = append(d.gestureFns, fn)
}

// OnGestureProbability registers a handler for raw per-gesture
// probability output from the watch's own detection model.
func (d *Dispatcher) OnGestureProbability(fn func([]protocol.ProbabilityEntry)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probFns = append(d.probFns, fn)
}

// OnSensors registers a handler for raw sensor frames.
func (d *Dispatcher) OnSensors(fn func(protocol.SensorFrame)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sensorFns = append(d.sensorFns, fn)
}

// OnTouch registers a handler for touch screen events.
func (d *Dispatcher) OnTouch(fn func(protocol.TouchEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touchFns = append(d.touchFns, fn)
}

// OnRotary registers a handler for rotary dial steps. Positive steps
// are clockwise.
func (d *Dispatcher) OnRotary(fn func(step int32)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rotaryFns = append(d.rotaryFns, fn)
}

// OnBackButton registers a handler for presses of the watch's back
// button.
func (d *Dispatcher) OnBackButton(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backButtonFns = append(d.backButtonFns, fn)
}

// OnPressure registers a handler for barometric pressure samples, in
// hectopascals. Only sent by watches with a pressure sensor.
func (d *Dispatcher) OnPressure(fn func(float32)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pressureFns = append(d.pressureFns, fn)
}

// OnConnectionState registers a handler for session state transitions.
func (d *Dispatcher) OnConnectionState(fn func(ConnectionState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateFns = append(d.stateFns, fn)
}

func (d *Dispatcher) dispatchGesture(ev gesture.Event) {
	d.mu.RLock()
	fns := d.gestureFns
	d.mu.RUnlock()
	for _, fn := range fns {
		invoke("gesture", func() { fn(ev) })
	}
}

func (d *Dispatcher) dispatchProbabilities(entries []protocol.ProbabilityEntry) {
	d.mu.RLock()
	fns := d.probFns
	d.mu.RUnlock()
	for _, fn := range fns {
		invoke("probability", func() { fn(entries) })
	}
}

func (d *Dispatcher) dispatchSensors(f protocol.SensorFrame) {
	d.mu.RLock()
	fns := d.sensorFns
	d.mu.RUnlock()
	for _, fn := range fns {
		invoke("sensors", func() { fn(f) })
	}
}

func (d *Dispatcher) dispatchTouch(ev protocol.TouchEvent) {
	d.mu.RLock()
	fns := d.touchFns
	d.mu.RUnlock()
	for _, fn := range fns {
		invoke("touch", func() { fn(ev) })
	}
}

func (d *Dispatcher) dispatchRotary(step int32) {
	d.mu.RLock()
	fns := d.rotaryFns
	d.mu.RUnlock()
	for _, fn := range fns {
		invoke("rotary", func() { fn(step) })
	}
}

func (d *Dispatcher) dispatchBackButton() {
	d.mu.RLock()
	fns := d.backButtonFns
	d.mu.RUnlock()
	for _, fn := range fns {
		invoke("back-button", fn)
	}
}

func (d *Dispatcher) dispatchPressure(p float32) {
	d.mu.RLock()
	fns := d.pressureFns
	d.mu.RUnlock()
	for _, fn := range fns {
		invoke("pressure", func() { fn(p) })
	}
}

func (d *Dispatcher) dispatchState(s ConnectionState) {
	d.mu.RLock()
	fns := d.stateFns
	d.mu.RUnlock()
	for _, fn := range fns {
		invoke("connection-state", func() { fn(s) })
	}
}

func invoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[session] handler panic", "handler", kind, "panic", r)
		}
	}()
	fn()
}
