package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"watchkit/internal/ble"
	"watchkit/internal/gesture"
	"watchkit/internal/protocol"
)

type mockCharacteristic struct {
	mu     sync.Mutex
	writes [][]byte
	notify func([]byte)
}

func (c *mockCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.writes = append(c.writes, buf)
	return nil
}

func (c *mockCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = cb
	return nil
}

func (c *mockCharacteristic) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// push delivers an encoded update through the notification callback in
// MTU-sized chunks, the way a real stack would.
func (c *mockCharacteristic) push(t *testing.T, u *protocol.Update) {
	t.Helper()
	c.mu.Lock()
	cb := c.notify
	c.mu.Unlock()
	if cb == nil {
		t.Fatal("push before subscribe")
	}
	stream := protocol.AppendFrame(nil, protocol.EncodeUpdate(u))
	for len(stream) > 0 {
		n := min(20, len(stream))
		cb(stream[:n])
		stream = stream[n:]
	}
}

func (c *mockCharacteristic) pushRaw(t *testing.T, data []byte) {
	t.Helper()
	c.mu.Lock()
	cb := c.notify
	c.mu.Unlock()
	if cb == nil {
		t.Fatal("push before subscribe")
	}
	cb(data)
}

type mockConnection struct {
	input  *mockCharacteristic
	output *mockCharacteristic

	mu           sync.Mutex
	disconnectCb func()
	closed       bool
}

func newMockConnection() *mockConnection {
	return &mockConnection{
		input:  &mockCharacteristic{},
		output: &mockCharacteristic{},
	}
}

func (c *mockConnection) DiscoverCharacteristic(_, charUUID string) (ble.Characteristic, error) {
	switch charUUID {
	case ble.ProtobufInputUUID:
		return c.input, nil
	case ble.ProtobufOutputUUID:
		return c.output, nil
	}
	return nil, errors.New("mock: unknown characteristic")
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// drop simulates the link going down from the watch side.
func (c *mockConnection) drop() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type mockAdapter struct {
	mu      sync.Mutex
	device  *ble.Device
	conns   []*mockConnection
	scanned int
}

func (a *mockAdapter) Enable() error { return nil }

func (a *mockAdapter) Scan(ctx context.Context, _, nameFilter string) (ble.Device, error) {
	a.mu.Lock()
	a.scanned++
	dev := a.device
	a.mu.Unlock()
	if dev == nil || !ble.MatchesName(dev.Name, nameFilter) {
		<-ctx.Done()
		return ble.Device{}, ble.ErrNoDeviceFound
	}
	return *dev, nil
}

func (a *mockAdapter) Connect(_ context.Context, _ string) (ble.Connection, error) {
	conn := newMockConnection()
	a.mu.Lock()
	a.conns = append(a.conns, conn)
	a.mu.Unlock()
	return conn, nil
}

// conn returns the i-th connection the adapter handed out, waiting for
// it to exist and have an active subscription.
func (a *mockAdapter) conn(t *testing.T, i int) *mockConnection {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		var c *mockConnection
		if len(a.conns) > i {
			c = a.conns[i]
		}
		a.mu.Unlock()
		if c != nil {
			c.output.mu.Lock()
			ready := c.output.notify != nil
			c.output.mu.Unlock()
			if ready {
				return c
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection %d never became ready", i)
	return nil
}

func testDevice() *ble.Device {
	return &ble.Device{ID: "AA:BB:CC:DD:EE:FF", Name: "Galaxy Watch6", RSSI: -50}
}

func waitState(t *testing.T, states <-chan ConnectionState, want ConnectionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-states:
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func startSession(t *testing.T, a *mockAdapter, opts Options) (*Session, <-chan ConnectionState) {
	t.Helper()
	s := NewSession(a, opts)
	states := make(chan ConnectionState, 32)
	s.Dispatcher().OnConnectionState(func(st ConnectionState) { states <- st })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, states
}

func TestSessionStreamsAndDispatches(t *testing.T) {
	a := &mockAdapter{device: testDevice()}
	s, states := startSession(t, a, Options{ScanTimeout: time.Second})
	sensors := make(chan protocol.SensorFrame, 8)
	rotary := make(chan int32, 8)
	touch := make(chan protocol.TouchEvent, 8)
	back := make(chan struct{}, 8)
	pressure := make(chan float32, 8)
	s.Dispatcher().OnSensors(func(f protocol.SensorFrame) { sensors <- f })
	s.Dispatcher().OnRotary(func(step int32) { rotary <- step })
	s.Dispatcher().OnTouch(func(ev protocol.TouchEvent) { touch <- ev })
	s.Dispatcher().OnBackButton(func() { back <- struct{}{} })
	s.Dispatcher().OnPressure(func(p float32) { pressure <- p })

	waitState(t, states, StateStreaming)
	conn := a.conn(t, 0)

	// Client info must have gone out before the subscription.
	if got := conn.input.writeCount(); got != 1 {
		t.Fatalf("input writes before streaming = %d, want 1 (client info)", got)
	}

	conn.output.push(t, &protocol.Update{
		SensorFrames: []protocol.SensorFrame{{
			Gyro: protocol.Vec3{X: 1, Y: 2, Z: 3},
			Acc:  protocol.Vec3{Z: 9.81},
		}},
		RotaryEvents: []protocol.RotaryEvent{{Step: 1}},
		TouchEvents: []protocol.TouchEvent{{
			Type:       protocol.TouchBegin,
			PointerIDs: []int32{0},
			Coords:     []protocol.Vec2{{X: 100, Y: 200}},
		}},
		ButtonEvents: []protocol.ButtonEvent{{ID: 0}},
		Pressure:     1002.5,
		HasPressure:  true,
		Info: protocol.Info{
			Hand:             protocol.HandLeft,
			BatteryPercent:   80,
			ScreenResolution: protocol.Vec2{X: 450, Y: 450},
			HapticsAvailable: true,
			HasInfo:          true,
		},
	})

	select {
	case f := <-sensors:
		if f.Gyro.X != 1 || f.Acc.Z != 9.81 {
			t.Errorf("sensor frame = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sensor frame dispatched")
	}
	select {
	case step := <-rotary:
		if step != -1 {
			t.Errorf("rotary step = %d, want -1 (sign inverted)", step)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no rotary event dispatched")
	}
	select {
	case ev := <-touch:
		if ev.Type != protocol.TouchBegin || ev.Coords[0].X != 100 {
			t.Errorf("touch event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no touch event dispatched")
	}
	select {
	case <-back:
	case <-time.After(2 * time.Second):
		t.Fatal("no back button event dispatched")
	}
	select {
	case p := <-pressure:
		if p != 1002.5 {
			t.Errorf("pressure = %v, want 1002.5", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pressure sample dispatched")
	}

	// Info fields latch into the session properties.
	deadline := time.Now().Add(2 * time.Second)
	for s.BatteryPercent() != 80 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.BatteryPercent() != 80 {
		t.Errorf("battery = %d, want 80", s.BatteryPercent())
	}
	if s.Hand() != protocol.HandLeft {
		t.Errorf("hand = %v, want left", s.Hand())
	}
	if !s.HapticsAvailable() {
		t.Error("haptics should be available")
	}
	if res := s.ScreenResolution(); res.X != 450 {
		t.Errorf("screen resolution = %+v", res)
	}
}

func TestSessionTripleTapGesture(t *testing.T) {
	a := &mockAdapter{device: testDevice()}
	s, states := startSession(t, a, Options{ScanTimeout: time.Second})
	events := make(chan gesture.Event, 8)
	s.Dispatcher().OnGesture(func(ev gesture.Event) { events <- ev })

	waitState(t, states, StateStreaming)
	conn := a.conn(t, 0)

	tap := protocol.Gesture{Type: protocol.GestureTap}
	conn.output.push(t, &protocol.Update{Gestures: []protocol.Gesture{tap, tap, tap}})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == gesture.KindTripleTap {
				return
			}
		case <-deadline:
			t.Fatal("no triple tap dispatched")
		}
	}
}

func TestSessionPassThroughGestures(t *testing.T) {
	a := &mockAdapter{device: testDevice()}
	s, states := startSession(t, a, Options{ScanTimeout: time.Second})
	events := make(chan gesture.Event, 8)
	s.Dispatcher().OnGesture(func(ev gesture.Event) { events <- ev })

	waitState(t, states, StateStreaming)
	conn := a.conn(t, 0)

	conn.output.push(t, &protocol.Update{Gestures: []protocol.Gesture{
		{Type: protocol.GesturePinchTap},
		{Type: protocol.GestureDpadRight},
	}})

	want := []gesture.Kind{gesture.KindPinchTap, gesture.KindDpadRight}
	for _, k := range want {
		select {
		case ev := <-events:
			if ev.Kind != k {
				t.Errorf("gesture = %v, want %v", ev.Kind, k)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("gesture %v never dispatched", k)
		}
	}
}

func TestSessionReconnectsAfterDrop(t *testing.T) {
	a := &mockAdapter{device: testDevice()}
	s, states := startSession(t, a, Options{ScanTimeout: time.Second})
	sensors := make(chan protocol.SensorFrame, 8)
	s.Dispatcher().OnSensors(func(f protocol.SensorFrame) { sensors <- f })

	waitState(t, states, StateStreaming)
	first := a.conn(t, 0)

	// Leave a partial frame in flight, then drop the link. Nothing of
	// it may leak into the next connection's stream.
	partial := protocol.AppendFrame(nil, protocol.EncodeUpdate(&protocol.Update{
		SensorFrames: []protocol.SensorFrame{{Gyro: protocol.Vec3{X: 99}}},
	}))
	first.output.pushRaw(t, partial[:len(partial)/2])
	first.drop()

	waitState(t, states, StateDisconnected)
	waitState(t, states, StateStreaming)

	second := a.conn(t, 1)
	if first == second {
		t.Fatal("expected a fresh connection after the drop")
	}
	second.output.push(t, &protocol.Update{
		SensorFrames: []protocol.SensorFrame{{Gyro: protocol.Vec3{X: 7}}},
	})

	select {
	case f := <-sensors:
		if f.Gyro.X != 7 {
			t.Errorf("frame after reconnect = %+v, want gyro.x=7", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame dispatched after reconnect")
	}
}

func TestSessionDisconnectSignalTriggersReconnect(t *testing.T) {
	a := &mockAdapter{device: testDevice()}
	_, states := startSession(t, a, Options{ScanTimeout: time.Second})

	waitState(t, states, StateStreaming)
	conn := a.conn(t, 0)
	conn.output.push(t, &protocol.Update{Signals: []protocol.Signal{protocol.SignalDisconnect}})

	waitState(t, states, StateDisconnected)
}

func TestSessionNoDeviceFoundIsTerminal(t *testing.T) {
	a := &mockAdapter{} // nothing advertising
	s, _ := startSession(t, a, Options{ScanTimeout: 50 * time.Millisecond})

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	if !errors.Is(s.Err(), ble.ErrNoDeviceFound) {
		t.Errorf("err = %v, want ErrNoDeviceFound", s.Err())
	}
}

func TestSendHaptics(t *testing.T) {
	a := &mockAdapter{device: testDevice()}
	s, states := startSession(t, a, Options{ScanTimeout: time.Second})

	if err := s.SendHaptics(1, 300); !errors.Is(err, ErrNotConnected) {
		t.Errorf("haptics before streaming: err = %v, want ErrNotConnected", err)
	}

	waitState(t, states, StateStreaming)
	conn := a.conn(t, 0)

	if err := s.SendHaptics(0.5, 300); err != nil {
		t.Fatalf("haptics while streaming: %v", err)
	}
	// Client info plus the haptics command.
	if got := conn.input.writeCount(); got != 2 {
		t.Errorf("input writes = %d, want 2", got)
	}

	s.Stop()
	if err := s.SendHaptics(0.5, 300); !errors.Is(err, ErrNotConnected) {
		t.Errorf("haptics after stop: err = %v, want ErrNotConnected", err)
	}
}

func TestSessionStartTwice(t *testing.T) {
	a := &mockAdapter{device: testDevice()}
	s, states := startSession(t, a, Options{ScanTimeout: time.Second})
	waitState(t, states, StateStreaming)
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second start: err = %v, want ErrAlreadyStarted", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		max     int
		want    time.Duration
	}{
		{0, 30, time.Second},
		{1, 30, 2 * time.Second},
		{4, 30, 16 * time.Second},
		{5, 30, 30 * time.Second},
		{63, 30, 30 * time.Second},  // shift would wrap negative
		{200, 30, 30 * time.Second}, // shift far past the word size
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt, tt.max); got != tt.want {
			t.Errorf("backoffDelay(%d, %d) = %v, want %v", tt.attempt, tt.max, got, tt.want)
		}
	}
}
