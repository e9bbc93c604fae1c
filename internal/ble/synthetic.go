package ble

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"watchkit/internal/protocol"
)

// Synthetic data shape. Orientation sweeps slow sine waves on each
// Euler axis; a tap fires every few seconds so the gesture pipeline
// has something to chew on.
const (
	synthRollAmplitudeRad  = 35.0 * math.Pi / 180.0
	synthPitchAmplitudeRad = 25.0 * math.Pi / 180.0
	synthYawAmplitudeRad   = 40.0 * math.Pi / 180.0

	synthRollFreqHz  = 0.23
	synthPitchFreqHz = 0.31
	synthYawFreqHz   = 0.17

	synthFrameInterval = 20 * time.Millisecond
	synthTapInterval   = 3 * time.Second

	// synthChunkSize forces frames through the same MTU-limited
	// reassembly path a real notification stream exercises.
	synthChunkSize = 20
)

// SyntheticAdapter is an in-process stand-in for the radio: it
// "discovers" one device instantly and streams encoded sensor frames
// and periodic taps over the output characteristic. Useful for running
// the full pipeline without hardware (--test mode).
type SyntheticAdapter struct {
	name string
}

// NewSyntheticAdapter creates a synthetic adapter advertising the given
// device name (defaults to "Synthetic Watch").
func NewSyntheticAdapter(name string) *SyntheticAdapter {
	if name == "" {
		name = "Synthetic Watch"
	}
	return &SyntheticAdapter{name: name}
}

func (a *SyntheticAdapter) Enable() error { return nil }

func (a *SyntheticAdapter) Scan(ctx context.Context, _ string, nameFilter string) (Device, error) {
	if !MatchesName(a.name, nameFilter) {
		<-ctx.Done()
		return Device{}, ErrNoDeviceFound
	}
	return Device{ID: "synthetic", Name: a.name, RSSI: -40}, nil
}

func (a *SyntheticAdapter) Connect(_ context.Context, _ string) (Connection, error) {
	return newSynthConnection(), nil
}

var _ Adapter = (*SyntheticAdapter)(nil)

type synthConnection struct {
	mu           sync.Mutex
	stop         chan struct{}
	stopped      bool
	disconnectCb func()
}

func newSynthConnection() *synthConnection {
	return &synthConnection{stop: make(chan struct{})}
}

func (c *synthConnection) DiscoverCharacteristic(_, charUUID string) (Characteristic, error) {
	switch charUUID {
	case ProtobufOutputUUID:
		return &synthOutputChar{conn: c}, nil
	case ProtobufInputUUID:
		return &synthInputChar{}, nil
	default:
		return nil, fmt.Errorf("ble: synthetic device has no characteristic %s", charUUID)
	}
}

func (c *synthConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.stop)
	}
	return nil
}

func (c *synthConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// synthInputChar accepts haptics/client-info writes and drops them.
type synthInputChar struct{}

func (c *synthInputChar) Write(data []byte) error {
	slog.Debug("[synthetic] input write", "bytes", len(data))
	return nil
}

func (c *synthInputChar) Subscribe(func([]byte)) error { return nil }

// synthOutputChar starts the generator on subscribe.
type synthOutputChar struct {
	conn *synthConnection
}

func (c *synthOutputChar) Write([]byte) error { return nil }

func (c *synthOutputChar) Subscribe(cb func([]byte)) error {
	go c.run(cb)
	return nil
}

func (c *synthOutputChar) run(cb func([]byte)) {
	ticker := time.NewTicker(synthFrameInterval)
	defer ticker.Stop()

	start := time.Now()
	emit := func(u *protocol.Update) {
		stream := protocol.AppendFrame(nil, protocol.EncodeUpdate(u))
		for len(stream) > 0 {
			n := min(synthChunkSize, len(stream))
			cb(stream[:n])
			stream = stream[n:]
		}
	}

	// A watch announces itself right after the subscription.
	emit(&protocol.Update{
		Signals: []protocol.Signal{protocol.SignalConnectApproved},
		Info: protocol.Info{
			Hand:             protocol.HandLeft,
			AppID:            "watchkit-synthetic",
			AppVersion:       "1.0.0",
			BatteryPercent:   100,
			ScreenResolution: protocol.Vec2{X: 450, Y: 450},
			HapticsAvailable: true,
			HasInfo:          true,
		},
	})

	lastTap := start
	for {
		select {
		case <-c.conn.stop:
			return
		case now := <-ticker.C:
			t := now.Sub(start).Seconds()
			u := &protocol.Update{
				SensorFrames: []protocol.SensorFrame{synthFrame(t)},
				UnixTime:     now.Unix(),
			}
			if now.Sub(lastTap) >= synthTapInterval {
				lastTap = now
				u.Gestures = append(u.Gestures, protocol.Gesture{Type: protocol.GestureTap})
			}
			emit(u)
		}
	}
}

func synthEuler(t float64) (roll, pitch, yaw float64) {
	roll = synthRollAmplitudeRad * math.Sin(2.0*math.Pi*synthRollFreqHz*t)
	pitch = synthPitchAmplitudeRad * math.Sin(2.0*math.Pi*synthPitchFreqHz*t+math.Pi/3.0)
	yaw = synthYawAmplitudeRad * math.Sin(2.0*math.Pi*synthYawFreqHz*t+2.0*math.Pi/3.0)
	return
}

func synthFrame(t float64) protocol.SensorFrame {
	roll, pitch, yaw := synthEuler(t)

	cr, sr := math.Cos(roll*0.5), math.Sin(roll*0.5)
	cp, sp := math.Cos(pitch*0.5), math.Sin(pitch*0.5)
	cy, sy := math.Cos(yaw*0.5), math.Sin(yaw*0.5)

	// ZYX intrinsic rotation (yaw -> pitch -> roll).
	w := cr*cp*cy + sr*sp*sy
	x := sr*cp*cy - cr*sp*sy
	y := cr*sp*cy + sr*cp*sy
	z := cr*cp*sy - sr*sp*cy

	// Angular velocity as the numeric derivative of the Euler sweep,
	// in deg/s, coarse but plenty for exercising the pipeline.
	const dt = 1e-3
	r2, p2, y2 := synthEuler(t + dt)
	toDeg := 180.0 / math.Pi / dt

	return protocol.SensorFrame{
		Gyro: protocol.Vec3{
			X: float32((r2 - roll) * toDeg),
			Y: float32((p2 - pitch) * toDeg),
			Z: float32((y2 - yaw) * toDeg),
		},
		Acc:  protocol.Vec3{X: float32(math.Sin(t) * 0.3), Y: float32(math.Cos(t) * 0.3), Z: 9.81},
		Grav: protocol.Vec3{X: 0, Y: 0, Z: 9.81},
		Quat: protocol.Quat{X: float32(x), Y: float32(y), Z: float32(z), W: float32(w)},
	}
}
