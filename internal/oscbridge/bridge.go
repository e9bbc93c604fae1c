// Package oscbridge maps the watch event stream onto OSC over UDP:
// sensor and gesture events go out to a client port, and /vib messages
// coming back in drive the watch's haptics.
package oscbridge

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/hypebeast/go-osc/osc"

	"watchkit/internal/gesture"
	"watchkit/internal/protocol"
	"watchkit/internal/watch"
)

// HapticsSender triggers a vibration on the connected watch.
type HapticsSender interface {
	SendHaptics(intensity float32, lengthMs int32) error
}

// Config addresses both directions of the bridge.
type Config struct {
	Host       string // peer host for outbound events
	ClientPort int    // outbound events are sent to Host:ClientPort
	ServerPort int    // inbound /vib messages are received on ServerPort
}

// Bridge relays watch events to an OSC peer and inbound vibration
// requests back to the watch. Outbound sends are best effort: OSC
// rides on UDP and a missing peer is not an error worth surfacing.
type Bridge struct {
	cfg     Config
	client  *osc.Client
	haptics HapticsSender

	conn   net.PacketConn
	served chan struct{}

	// A vibration needs both /vib/intensity and /vib/duration. Either
	// may arrive first; the pair latches until complete, fires once,
	// and clears.
	mu            sync.Mutex
	vibIntensity  float32
	vibDuration   int32
	haveIntensity bool
	haveDuration  bool
}

// New creates a bridge. haptics may be nil when there is nothing to
// vibrate (inbound /vib messages are then dropped with a debug log).
func New(cfg Config, haptics HapticsSender) *Bridge {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	return &Bridge{
		cfg:     cfg,
		client:  osc.NewClient(cfg.Host, cfg.ClientPort),
		haptics: haptics,
	}
}

// Start binds the inbound UDP port and serves /vib messages until
// Stop. Outbound sends work with or without Start.
func (b *Bridge) Start() error {
	dispatcher := osc.NewStandardDispatcher()
	if err := dispatcher.AddMsgHandler("/vib/intensity", b.onIntensity); err != nil {
		return fmt.Errorf("oscbridge: register /vib/intensity: %w", err)
	}
	if err := dispatcher.AddMsgHandler("/vib/duration", b.onDuration); err != nil {
		return fmt.Errorf("oscbridge: register /vib/duration: %w", err)
	}

	addr := fmt.Sprintf(":%d", b.cfg.ServerPort)
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("oscbridge: listen %s: %w", addr, err)
	}
	b.conn = conn
	b.served = make(chan struct{})

	server := &osc.Server{Dispatcher: dispatcher}
	go func() {
		defer close(b.served)
		if err := server.Serve(conn); err != nil {
			slog.Debug("[osc] server stopped", "error", err)
		}
	}()
	slog.Info("[osc] listening", "port", b.cfg.ServerPort, "peer", fmt.Sprintf("%s:%d", b.cfg.Host, b.cfg.ClientPort))
	return nil
}

// Stop closes the inbound socket and waits for the serve goroutine.
func (b *Bridge) Stop() {
	if b.conn == nil {
		return
	}
	b.conn.Close()
	<-b.served
	b.conn = nil
}

// Attach registers the bridge's outbound relays on a session
// dispatcher.
func (b *Bridge) Attach(d *watch.Dispatcher) {
	d.OnSensors(b.SendSensors)
	d.OnGesture(b.SendGesture)
	d.OnTouch(b.SendTouch)
	d.OnRotary(b.SendRotary)
	d.OnBackButton(b.SendBackButton)
}

// SendSensors relays one inertial frame as a burst of vector messages.
func (b *Bridge) SendSensors(f protocol.SensorFrame) {
	b.send(vec3Message("/acceleration", f.Acc))
	b.send(vec3Message("/gravity", f.Grav))
	b.send(vec3Message("/angular-velocity", f.Gyro))

	quat := osc.NewMessage("/orientation")
	quat.Append(f.Quat.X)
	quat.Append(f.Quat.Y)
	quat.Append(f.Quat.Z)
	quat.Append(f.Quat.W)
	b.send(quat)

	if f.HasMag {
		b.send(vec3Message("/magnetic-field", f.Mag))
	}
}

// SendGesture relays a classified gesture. Taps map to their own
// addresses, flicks share /flick with a direction argument.
func (b *Bridge) SendGesture(ev gesture.Event) {
	switch ev.Kind {
	case gesture.KindTap:
		b.send(osc.NewMessage("/tap"))
	case gesture.KindDoubleTap:
		b.send(osc.NewMessage("/double-tap"))
	case gesture.KindTripleTap:
		b.send(osc.NewMessage("/triple-tap"))
	case gesture.KindFlickUp:
		b.sendFlick("up")
	case gesture.KindFlickDown:
		b.sendFlick("down")
	case gesture.KindFlickLeft:
		b.sendFlick("left")
	case gesture.KindFlickRight:
		b.sendFlick("right")
	}
}

func (b *Bridge) sendFlick(direction string) {
	msg := osc.NewMessage("/flick")
	msg.Append(direction)
	b.send(msg)
}

// SendTouch relays a touch event with the primary pointer coordinates.
func (b *Bridge) SendTouch(ev protocol.TouchEvent) {
	var addr string
	switch ev.Type {
	case protocol.TouchBegin:
		addr = "/touch-down"
	case protocol.TouchEnd:
		addr = "/touch-up"
	case protocol.TouchMove:
		addr = "/touch-move"
	case protocol.TouchCancel:
		addr = "/touch-cancel"
	default:
		return
	}
	msg := osc.NewMessage(addr)
	if len(ev.Coords) > 0 {
		msg.Append(ev.Coords[0].X)
		msg.Append(ev.Coords[0].Y)
	}
	b.send(msg)
}

func (b *Bridge) SendRotary(step int32) {
	msg := osc.NewMessage("/rotary")
	msg.Append(step)
	b.send(msg)
}

func (b *Bridge) SendBackButton() {
	b.send(osc.NewMessage("/back-button"))
}

func (b *Bridge) send(msg *osc.Message) {
	if err := b.client.Send(msg); err != nil {
		slog.Debug("[osc] send failed", "address", msg.Address, "error", err)
	}
}

func vec3Message(addr string, v protocol.Vec3) *osc.Message {
	msg := osc.NewMessage(addr)
	msg.Append(v.X)
	msg.Append(v.Y)
	msg.Append(v.Z)
	return msg
}

func (b *Bridge) onIntensity(msg *osc.Message) {
	v, ok := floatArg(msg)
	if !ok {
		slog.Warn("[osc] /vib/intensity without numeric argument")
		return
	}
	b.mu.Lock()
	b.vibIntensity = v
	b.haveIntensity = true
	b.mu.Unlock()
	b.maybeVibrate()
}

func (b *Bridge) onDuration(msg *osc.Message) {
	v, ok := floatArg(msg)
	if !ok {
		slog.Warn("[osc] /vib/duration without numeric argument")
		return
	}
	b.mu.Lock()
	b.vibDuration = int32(v)
	b.haveDuration = true
	b.mu.Unlock()
	b.maybeVibrate()
}

func (b *Bridge) maybeVibrate() {
	b.mu.Lock()
	if !b.haveIntensity || !b.haveDuration {
		b.mu.Unlock()
		return
	}
	intensity, duration := b.vibIntensity, b.vibDuration
	b.haveIntensity, b.haveDuration = false, false
	b.mu.Unlock()

	if b.haptics == nil {
		slog.Debug("[osc] dropping vibration, no haptics sink", "intensity", intensity, "duration", duration)
		return
	}
	if err := b.haptics.SendHaptics(intensity, duration); err != nil {
		slog.Warn("[osc] vibration failed", "error", err)
		return
	}
	slog.Debug("[osc] vibration", "intensity", intensity, "duration", duration)
}

func floatArg(msg *osc.Message) (float32, bool) {
	for _, arg := range msg.Arguments {
		switch v := arg.(type) {
		case float32:
			return v, true
		case float64:
			return float32(v), true
		case int32:
			return float32(v), true
		case int64:
			return float32(v), true
		}
	}
	return 0, false
}
