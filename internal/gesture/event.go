// Package gesture classifies the watch's discrete tap signals and
// streaming inertial data into gesture events: a tap debouncer that
// groups runs of taps, and a flick detector that turns post-tap wrist
// motion into directional swipes.
package gesture

import "time"

// Kind identifies one classified gesture.
type Kind int

const (
	KindNone Kind = iota
	KindTap
	KindDoubleTap
	KindTripleTap
	KindFlickUp
	KindFlickDown
	KindFlickLeft
	KindFlickRight
	KindDpadLeft
	KindDpadRight
	KindPinchTap
	KindPinchHold
)

func (k Kind) String() string {
	switch k {
	case KindTap:
		return "tap"
	case KindDoubleTap:
		return "double-tap"
	case KindTripleTap:
		return "triple-tap"
	case KindFlickUp:
		return "flick-up"
	case KindFlickDown:
		return "flick-down"
	case KindFlickLeft:
		return "flick-left"
	case KindFlickRight:
		return "flick-right"
	case KindDpadLeft:
		return "dpad-left"
	case KindDpadRight:
		return "dpad-right"
	case KindPinchTap:
		return "pinch-tap"
	case KindPinchHold:
		return "pinch-hold"
	default:
		return "none"
	}
}

// Event is one classified gesture. Time is the timestamp of the input
// that completed the classification, not the wall-clock emit time.
type Event struct {
	Kind Kind
	Time time.Time
}
