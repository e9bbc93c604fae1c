package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// DecodeError wraps a decode failure for one frame. The frame is
// dropped; the session keeps streaming.
type DecodeError struct {
	Field protowire.Number
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != 0 {
		return fmt.Sprintf("protocol: decode field %d: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("protocol: decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a complete frame into an Update. It holds no state and
// is safe to call from multiple goroutines. Unknown fields and unknown
// enum values are skipped rather than rejected.
func Decode(frame []byte) (*Update, error) {
	u := &Update{}
	err := walkFields(frame, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1: // sensorFrames
			sf, err := decodeSensorFrame(b)
			if err != nil {
				return err
			}
			u.SensorFrames = append(u.SensorFrames, sf)
		case 2: // gestures
			g, err := decodeGesture(b)
			if err != nil {
				return err
			}
			u.Gestures = append(u.Gestures, g)
		case 3: // touchEvents
			te, err := decodeTouchEvent(b)
			if err != nil {
				return err
			}
			u.TouchEvents = append(u.TouchEvents, te)
		case 4: // buttonEvents
			be, err := decodeButtonEvent(b)
			if err != nil {
				return err
			}
			u.ButtonEvents = append(u.ButtonEvents, be)
		case 5: // rotaryEvents
			re, err := decodeRotaryEvent(b)
			if err != nil {
				return err
			}
			u.RotaryEvents = append(u.RotaryEvents, re)
		case 6: // signals: packed or unpacked varints
			if typ == protowire.VarintType {
				u.Signals = append(u.Signals, Signal(v))
				return nil
			}
			for len(b) > 0 {
				s, n := protowire.ConsumeVarint(b)
				if n < 0 {
					return protowire.ParseError(n)
				}
				u.Signals = append(u.Signals, Signal(s))
				b = b[n:]
			}
		case 7:
			u.DeltaTime = int32(v)
		case 8:
			u.UnixTime = int64(v)
		case 9:
			info, err := decodeInfo(b)
			if err != nil {
				return err
			}
			u.Info = info
		case 10:
			pe, err := decodeProbabilityEntry(b)
			if err != nil {
				return err
			}
			u.Probabilities = append(u.Probabilities, pe)
		case 16:
			u.Pressure = math.Float32frombits(uint32(v))
			u.HasPressure = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// fieldFunc receives each field of an embedded message. For varint and
// fixed32 fields the value arrives in v; for length-delimited fields
// the payload arrives in b.
type fieldFunc func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error

// walkFields iterates the protobuf fields of msg, skipping wire types
// the callback has no use for.
func walkFields(msg []byte, fn fieldFunc) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return &DecodeError{Err: protowire.ParseError(n)}
		}
		msg = msg[n:]

		var v uint64
		var b []byte
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(msg)
		case protowire.Fixed32Type:
			var v32 uint32
			v32, n = protowire.ConsumeFixed32(msg)
			v = uint64(v32)
		case protowire.Fixed64Type:
			v, n = protowire.ConsumeFixed64(msg)
		case protowire.BytesType:
			b, n = protowire.ConsumeBytes(msg)
		default:
			return &DecodeError{Field: num, Err: fmt.Errorf("unsupported wire type %d", typ)}
		}
		if n < 0 {
			return &DecodeError{Field: num, Err: protowire.ParseError(n)}
		}
		msg = msg[n:]

		if err := fn(num, typ, v, b); err != nil {
			if _, ok := err.(*DecodeError); ok {
				return err
			}
			return &DecodeError{Field: num, Err: err}
		}
	}
	return nil
}

func decodeVec2(b []byte) (Vec2, error) {
	var v Vec2
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, raw uint64, _ []byte) error {
		switch num {
		case 1:
			v.X = math.Float32frombits(uint32(raw))
		case 2:
			v.Y = math.Float32frombits(uint32(raw))
		}
		return nil
	})
	return v, err
}

func decodeVec3(b []byte) (Vec3, error) {
	var v Vec3
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, raw uint64, _ []byte) error {
		switch num {
		case 1:
			v.X = math.Float32frombits(uint32(raw))
		case 2:
			v.Y = math.Float32frombits(uint32(raw))
		case 3:
			v.Z = math.Float32frombits(uint32(raw))
		}
		return nil
	})
	return v, err
}

func decodeQuat(b []byte) (Quat, error) {
	var q Quat
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, raw uint64, _ []byte) error {
		switch num {
		case 1:
			q.X = math.Float32frombits(uint32(raw))
		case 2:
			q.Y = math.Float32frombits(uint32(raw))
		case 3:
			q.Z = math.Float32frombits(uint32(raw))
		case 4:
			q.W = math.Float32frombits(uint32(raw))
		}
		return nil
	})
	return q, err
}

func decodeSensorFrame(b []byte) (SensorFrame, error) {
	var sf SensorFrame
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, v uint64, sub []byte) error {
		var err error
		switch num {
		case 1:
			sf.Gyro, err = decodeVec3(sub)
		case 2:
			sf.Acc, err = decodeVec3(sub)
		case 3:
			sf.Grav, err = decodeVec3(sub)
		case 4:
			sf.Quat, err = decodeQuat(sub)
		case 5:
			sf.DeltaTime = int32(v)
		case 6:
			sf.Mag, err = decodeVec3(sub)
			sf.HasMag = err == nil
		case 7:
			sf.MagCal, err = decodeVec3(sub)
		}
		return err
	})
	return sf, err
}

func decodeGesture(b []byte) (Gesture, error) {
	var g Gesture
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, v uint64, _ []byte) error {
		switch num {
		case 1:
			g.Type = GestureType(v)
		case 2:
			g.DeltaTime = int32(v)
		}
		return nil
	})
	return g, err
}

func decodeTouchEvent(b []byte) (TouchEvent, error) {
	var te TouchEvent
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v uint64, sub []byte) error {
		switch num {
		case 1:
			te.Type = TouchEventType(v)
		case 2:
			te.ActionIndex = int32(v)
		case 3: // pointerIds: packed or unpacked
			if typ == protowire.VarintType {
				te.PointerIDs = append(te.PointerIDs, int32(v))
				return nil
			}
			for len(sub) > 0 {
				id, n := protowire.ConsumeVarint(sub)
				if n < 0 {
					return protowire.ParseError(n)
				}
				te.PointerIDs = append(te.PointerIDs, int32(id))
				sub = sub[n:]
			}
		case 4:
			c, err := decodeVec2(sub)
			if err != nil {
				return err
			}
			te.Coords = append(te.Coords, c)
		case 5:
			te.DeltaTime = int32(v)
		}
		return nil
	})
	return te, err
}

func decodeButtonEvent(b []byte) (ButtonEvent, error) {
	var be ButtonEvent
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, v uint64, _ []byte) error {
		switch num {
		case 1:
			be.ID = int32(v)
		case 2:
			be.DeltaTime = int32(v)
		}
		return nil
	})
	return be, err
}

func decodeRotaryEvent(b []byte) (RotaryEvent, error) {
	var re RotaryEvent
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, v uint64, _ []byte) error {
		switch num {
		case 1:
			re.Step = int32(v)
		case 2:
			re.DeltaTime = int32(v)
		}
		return nil
	})
	return re, err
}

func decodeProbabilityEntry(b []byte) (ProbabilityEntry, error) {
	var pe ProbabilityEntry
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, v uint64, _ []byte) error {
		switch num {
		case 1:
			pe.Label = GestureType(v)
		case 2:
			pe.Probability = math.Float32frombits(uint32(v))
		}
		return nil
	})
	return pe, err
}

func decodeInfo(b []byte) (Info, error) {
	info := Info{HasInfo: true}
	err := walkFields(b, func(num protowire.Number, _ protowire.Type, v uint64, sub []byte) error {
		switch num {
		case 1:
			info.Hand = Hand(v)
		case 2:
			info.AppID = string(sub)
		case 3:
			info.AppVersion = string(sub)
		case 4, 5:
			// availableModels / activeModel submessages. The model
			// schema is not part of this stack; skipped, not decoded.
		case 6:
			info.BatteryPercent = int32(v)
		case 7:
			res, err := decodeVec2(sub)
			if err != nil {
				return err
			}
			info.ScreenResolution = res
		case 8:
			info.HapticsAvailable = v != 0
		}
		return nil
	})
	return info, err
}
