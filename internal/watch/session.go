package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"watchkit/internal/ble"
	"watchkit/internal/gesture"
	"watchkit/internal/protocol"
)

// ErrNotConnected is returned by SendHaptics when the session has no
// streaming connection.
var ErrNotConnected = errors.New("watch: not connected")

// ErrAlreadyStarted is returned by Start on a session that is running
// or has finished. Sessions are single-use.
var ErrAlreadyStarted = errors.New("watch: session already started")

// Options configures a Session.
type Options struct {
	NameFilter   string        // case-insensitive substring match on the advertised name
	ScanTimeout  time.Duration // per scan attempt; <= 0 scans until the session stops
	ReconnectMax int           // max reconnect backoff in seconds
	ClientName   string        // app name shown on the watch's approval prompt
	Gesture      gesture.Config
	Scheduler    gesture.Scheduler // nil selects the wall clock
}

// DefaultOptions returns the options the CLI ships with.
func DefaultOptions() Options {
	return Options{
		ScanTimeout:  30 * time.Second,
		ReconnectMax: 30,
		ClientName:   "watchkit",
	}
}

// Session owns one watch connection end to end. A single run goroutine
// drives the state machine and delivers every event through the
// dispatcher, so handlers observe a strictly ordered stream: raw
// chunks, decoded updates and gesture timer expiries all funnel into
// that goroutine.
type Session struct {
	adapter ble.Adapter
	opts    Options
	disp    *Dispatcher
	engine  *gesture.Engine
	id      string

	mu    sync.Mutex
	state ConnectionState
	input ble.Characteristic
	info  protocol.Info
	err   error

	// writeMu serializes characteristic writes; BLE stacks do not
	// tolerate interleaved writes on one characteristic.
	writeMu sync.Mutex

	gestureMu sync.Mutex
	gestureQ  []gesture.Event
	wake      chan struct{}

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSession creates a session over the given adapter. Register
// handlers on the dispatcher before calling Start.
func NewSession(adapter ble.Adapter, opts Options) *Session {
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30
	}
	if opts.ClientName == "" {
		opts.ClientName = "watchkit"
	}
	s := &Session{
		adapter: adapter,
		opts:    opts,
		disp:    NewDispatcher(),
		id:      uuid.NewString()[:8],
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		state:   StateIdle,
	}
	s.engine = gesture.NewEngine(opts.Gesture, opts.Scheduler, s.queueGesture)
	return s
}

// Dispatcher exposes the handler registration surface.
func (s *Session) Dispatcher() *Dispatcher { return s.disp }

// Start launches the run goroutine and returns immediately. The
// session runs until Stop is called, ctx is cancelled, or no device is
// found within the scan timeout.
func (s *Session) Start(ctx context.Context) error {
	var started bool
	s.startOnce.Do(func() {
		started = true
		ctx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
		go s.run(ctx)
	})
	if !started {
		return ErrAlreadyStarted
	}
	return nil
}

// Stop tears the session down and waits for the run goroutine to exit.
// Safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

// Done is closed when the run goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session stopped. Nil while running or after a
// clean Stop.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Hand reports which wrist the watch is worn on, from the latest Info.
func (s *Session) Hand() protocol.Hand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Hand
}

// BatteryPercent reports the last known battery level, or -1 before
// the first Info arrives.
func (s *Session) BatteryPercent() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.info.HasInfo {
		return -1
	}
	return s.info.BatteryPercent
}

// ScreenResolution reports the touch screen size in pixels.
func (s *Session) ScreenResolution() protocol.Vec2 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.ScreenResolution
}

// HapticsAvailable reports whether the watch can vibrate.
func (s *Session) HapticsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.HapticsAvailable
}

// SendHaptics triggers a one-shot vibration on the watch. Intensity is
// clamped to [0, 1] and length to [0, 5000] ms on encode. Returns
// ErrNotConnected unless the session is streaming.
func (s *Session) SendHaptics(intensity float32, lengthMs int32) error {
	s.mu.Lock()
	input := s.input
	streaming := s.state == StateStreaming
	s.mu.Unlock()
	if !streaming || input == nil {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := input.Write(protocol.EncodeHaptics(intensity, lengthMs)); err != nil {
		return fmt.Errorf("watch: send haptics: %w", err)
	}
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateIdle)

	if err := s.adapter.Enable(); err != nil {
		s.fail(fmt.Errorf("watch: enable adapter: %w", err))
		return
	}

	retries := 0
	for {
		streamed, err := s.runConnection(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, ble.ErrNoDeviceFound):
			s.fail(err)
			return
		}
		slog.Warn("[session] connection lost", "session", s.id, "error", err)
		s.setState(StateDisconnected)
		s.setState(StateReconnecting)

		// A connection that made it to streaming resets the backoff:
		// the first reconnect attempt after a drop goes out
		// immediately, only repeated failures slow down.
		if streamed {
			retries = 0
		} else {
			retries++
		}
		if retries > 0 {
			delay := backoffDelay(retries-1, s.opts.ReconnectMax)
			slog.Info("[session] reconnect backoff", "session", s.id, "attempt", retries+1, "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// runConnection drives one scan-connect-stream cycle. streamed reports
// whether the connection got as far as the streaming state; the
// reconnect loop resets its backoff on that.
func (s *Session) runConnection(ctx context.Context) (streamed bool, err error) {
	s.setState(StateScanning)
	scanCtx := ctx
	if s.opts.ScanTimeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, s.opts.ScanTimeout)
		defer cancel()
	}
	dev, err := s.adapter.Scan(scanCtx, ble.InteractionServiceUUID, s.opts.NameFilter)
	if err != nil {
		return false, fmt.Errorf("watch: scan: %w", err)
	}
	slog.Info("[session] found watch", "session", s.id, "name", dev.Name, "device", dev.ID, "rssi", dev.RSSI)

	s.setState(StateConnecting)
	conn, err := s.adapter.Connect(ctx, dev.ID)
	if err != nil {
		return false, fmt.Errorf("watch: connect %s: %w", dev.ID, err)
	}
	defer func() {
		conn.Disconnect()
		s.resetStream()
	}()

	dropped := make(chan struct{})
	var dropOnce sync.Once
	conn.OnDisconnect(func() {
		dropOnce.Do(func() { close(dropped) })
	})

	s.setState(StateSubscribing)
	input, err := conn.DiscoverCharacteristic(ble.ProtobufServiceUUID, ble.ProtobufInputUUID)
	if err != nil {
		return false, fmt.Errorf("watch: discover input characteristic: %w", err)
	}
	output, err := conn.DiscoverCharacteristic(ble.ProtobufServiceUUID, ble.ProtobufOutputUUID)
	if err != nil {
		return false, fmt.Errorf("watch: discover output characteristic: %w", err)
	}

	// The watch wants to know who is connecting before it starts the
	// approval flow, so client info goes out ahead of the subscription.
	host, _ := os.Hostname()
	ci := protocol.ClientInfo{AppName: s.opts.ClientName, DeviceName: host, OS: runtime.GOOS}
	s.writeMu.Lock()
	err = input.Write(protocol.EncodeClientInfo(ci))
	s.writeMu.Unlock()
	if err != nil {
		return false, fmt.Errorf("watch: write client info: %w", err)
	}

	chunks := make(chan []byte, 64)
	err = output.Subscribe(func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		select {
		case chunks <- buf:
		default:
			slog.Warn("[session] notification backlog full, dropping chunk", "session", s.id)
		}
	})
	if err != nil {
		return false, fmt.Errorf("watch: subscribe: %w", err)
	}

	s.mu.Lock()
	s.input = input
	s.mu.Unlock()
	s.setState(StateStreaming)
	slog.Info("[session] streaming", "session", s.id, "name", dev.Name)

	return true, s.stream(ctx, chunks, dropped)
}

// stream is the steady-state loop: reassemble chunks, decode frames,
// dispatch events. Returns when the transport drops, the watch sends a
// DISCONNECT signal, or ctx is cancelled.
func (s *Session) stream(ctx context.Context, chunks <-chan []byte, dropped <-chan struct{}) error {
	var reasm protocol.Reassembler
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-dropped:
			return errors.New("watch: transport disconnected")
		case <-s.wake:
			s.drainGestures()
		case chunk := <-chunks:
			frames, err := reasm.Feed(chunk)
			if err != nil {
				slog.Warn("[session] stream resync", "session", s.id, "error", err)
			}
			for _, frame := range frames {
				u, err := protocol.Decode(frame)
				if err != nil {
					slog.Warn("[session] dropping malformed frame", "session", s.id, "bytes", len(frame), "error", err)
					continue
				}
				if s.handleUpdate(u) {
					return errors.New("watch: disconnect requested by watch")
				}
			}
			s.drainGestures()
		}
	}
}

// handleUpdate dispatches one decoded update. Reports true when the
// update carries a DISCONNECT signal.
func (s *Session) handleUpdate(u *protocol.Update) (disconnect bool) {
	now := time.Now()

	if u.Info.HasInfo {
		s.mu.Lock()
		s.info = u.Info
		s.mu.Unlock()
		slog.Debug("[session] device info", "session", s.id,
			"hand", u.Info.Hand, "battery", u.Info.BatteryPercent, "haptics", u.Info.HapticsAvailable)
	}
	for _, sig := range u.Signals {
		if sig == protocol.SignalConnectApproved {
			slog.Info("[session] connection approved", "session", s.id)
		}
	}

	for _, f := range u.SensorFrames {
		s.disp.dispatchSensors(f)
		s.engine.HandleFrame(f, now)
	}
	for _, g := range u.Gestures {
		switch g.Type {
		case protocol.GestureTap:
			s.engine.HandleTap(now)
		case protocol.GesturePinchTap:
			s.disp.dispatchGesture(gesture.Event{Kind: gesture.KindPinchTap, Time: now})
		case protocol.GesturePinchHold:
			s.disp.dispatchGesture(gesture.Event{Kind: gesture.KindPinchHold, Time: now})
		case protocol.GestureDpadLeft:
			s.disp.dispatchGesture(gesture.Event{Kind: gesture.KindDpadLeft, Time: now})
		case protocol.GestureDpadRight:
			s.disp.dispatchGesture(gesture.Event{Kind: gesture.KindDpadRight, Time: now})
		}
	}
	if len(u.Probabilities) > 0 {
		s.disp.dispatchProbabilities(u.Probabilities)
	}
	if u.HasPressure {
		s.disp.dispatchPressure(u.Pressure)
	}
	for _, te := range u.TouchEvents {
		s.disp.dispatchTouch(te)
	}
	for _, re := range u.RotaryEvents {
		// The wire reports clockwise as positive; the original SDK
		// flips it so clockwise scrolls "down", and downstream
		// consumers expect that convention.
		s.disp.dispatchRotary(-re.Step)
	}
	for _, be := range u.ButtonEvents {
		if be.ID == 0 {
			s.disp.dispatchBackButton()
		}
	}

	return u.Disconnecting()
}

// queueGesture is the gesture engine's emit callback. Classification
// can happen on the run goroutine or on a timer goroutine; either way
// the event is queued and delivered from the run goroutine.
func (s *Session) queueGesture(ev gesture.Event) {
	s.gestureMu.Lock()
	s.gestureQ = append(s.gestureQ, ev)
	s.gestureMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) drainGestures() {
	s.gestureMu.Lock()
	q := s.gestureQ
	s.gestureQ = nil
	s.gestureMu.Unlock()
	for _, ev := range q {
		slog.Debug("[session] gesture", "session", s.id, "kind", ev.Kind)
		s.disp.dispatchGesture(ev)
	}
}

// resetStream clears everything a dead connection leaves behind. No
// reassembly or gesture state survives into the next connection.
func (s *Session) resetStream() {
	s.engine.Reset()
	s.mu.Lock()
	s.input = nil
	s.mu.Unlock()
	s.gestureMu.Lock()
	s.gestureQ = nil
	s.gestureMu.Unlock()
}

func (s *Session) setState(next ConnectionState) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	slog.Debug("[session] state", "session", s.id, "state", next)
	s.disp.dispatchState(next)
}

func (s *Session) fail(err error) {
	slog.Error("[session] stopping", "session", s.id, "error", err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// backoffDelay returns the reconnection delay for attempt n, capped at
// maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	max := time.Duration(maxSeconds) * time.Second
	// Large attempt counts would overflow the shift long before the
	// cap applies.
	if attempt > 30 {
		return max
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > max {
		return max
	}
	return delay
}
