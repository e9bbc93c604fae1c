// Package protocol implements the length-delimited protobuf stream the
// watch delivers over its output characteristic: frame reassembly of
// MTU-limited notification chunks, decoding of Update messages, and
// encoding of InputUpdate messages for the write path.
package protocol

// Vec2 is a 2-component float vector (touch coordinates, screen size).
type Vec2 struct {
	X, Y float32
}

// Vec3 is a 3-component float vector (acceleration, gravity, angular
// velocity, magnetic field).
type Vec3 struct {
	X, Y, Z float32
}

// Quat is an x/y/z/w quaternion (absolute orientation).
type Quat struct {
	X, Y, Z, W float32
}

// GestureType identifies a discrete gesture reported by the watch.
type GestureType int32

const (
	GestureNone GestureType = iota
	GestureTap
	GesturePinchTap
	GesturePinchHold
	GestureDpadLeft
	GestureDpadRight
)

func (g GestureType) String() string {
	switch g {
	case GestureNone:
		return "none"
	case GestureTap:
		return "tap"
	case GesturePinchTap:
		return "pinch-tap"
	case GesturePinchHold:
		return "pinch-hold"
	case GestureDpadLeft:
		return "dpad-left"
	case GestureDpadRight:
		return "dpad-right"
	default:
		return "unknown"
	}
}

// Signal is a stream-control marker embedded in an Update.
type Signal int32

const (
	SignalNone Signal = iota
	// SignalDisconnect means the watch declined or is tearing down the
	// connection; the client must disconnect rather than keep streaming.
	SignalDisconnect
	SignalConnectApproved
)

// TouchEventType distinguishes the phases of a touch-screen contact.
type TouchEventType int32

const (
	TouchNone TouchEventType = iota
	TouchBegin
	TouchEnd
	TouchMove
	TouchCancel
)

// Hand is the wrist the watch reports being worn on.
type Hand int32

const (
	HandNone Hand = iota
	HandRight
	HandLeft
)

// SensorFrame is one inertial sample. Mag and MagCal are only present
// when the watch has a magnetometer; HasMag reports whether the frame
// carried them.
type SensorFrame struct {
	Gyro      Vec3 // angular velocity, deg/s
	Acc       Vec3 // acceleration, m/s²
	Grav      Vec3 // gravity direction, m/s²
	Quat      Quat
	Mag       Vec3
	MagCal    Vec3
	HasMag    bool
	DeltaTime int32
}

// Gesture is a raw discrete gesture signal from the watch.
type Gesture struct {
	Type      GestureType
	DeltaTime int32
}

// TouchEvent is one touch-screen event with its pointer coordinates.
type TouchEvent struct {
	Type        TouchEventType
	ActionIndex int32
	PointerIDs  []int32
	Coords      []Vec2
	DeltaTime   int32
}

// RotaryEvent is one step of the rotating bezel/crown. Step is positive
// for clockwise rotation as reported on the wire.
type RotaryEvent struct {
	Step      int32
	DeltaTime int32
}

// ButtonEvent reports a hardware button press. ID 0 is the back button.
type ButtonEvent struct {
	ID        int32
	DeltaTime int32
}

// ProbabilityEntry maps one gesture type to its current probability.
type ProbabilityEntry struct {
	Label       GestureType
	Probability float32
}

// Info carries device metadata. Sent once after connection approval and
// again whenever something changes (battery level, hand assignment).
type Info struct {
	Hand             Hand
	AppID            string
	AppVersion       string
	BatteryPercent   int32
	ScreenResolution Vec2
	HapticsAvailable bool
	HasInfo          bool // false on the zero value
}

// Update is one decoded frame from the output characteristic. All
// repeated fields may be empty; Info is present only when HasInfo is set.
type Update struct {
	SensorFrames  []SensorFrame
	Gestures      []Gesture
	TouchEvents   []TouchEvent
	ButtonEvents  []ButtonEvent
	RotaryEvents  []RotaryEvent
	Signals       []Signal
	DeltaTime     int32
	UnixTime      int64
	Info          Info
	Probabilities []ProbabilityEntry
	Pressure      float32
	HasPressure   bool
}

// Disconnecting reports whether the update carries a DISCONNECT signal.
func (u *Update) Disconnecting() bool {
	for _, s := range u.Signals {
		if s == SignalDisconnect {
			return true
		}
	}
	return false
}

// HapticEvent is an outbound one-shot vibration command.
type HapticEvent struct {
	Intensity float32 // clamped to [0, 1] on encode
	LengthMs  int32   // clamped to [0, 5000] on encode
}

// ClientInfo identifies this client to the watch. Written once per
// connection before subscribing, so the watch can show who is asking
// for approval.
type ClientInfo struct {
	AppName    string
	DeviceName string
	OS         string
}
