package protocol

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// EncodeHaptics builds an InputUpdate carrying a one-shot haptic event.
// Intensity is clamped to [0, 1], length to [0, 5000] ms.
func EncodeHaptics(intensity float32, lengthMs int32) []byte {
	intensity = clamp32(intensity, 0, 1)
	if lengthMs < 0 {
		lengthMs = 0
	} else if lengthMs > 5000 {
		lengthMs = 5000
	}

	var ev []byte
	// field 1: type (0 = oneshot, proto3 default, omitted)
	ev = protowire.AppendTag(ev, 2, protowire.Fixed32Type)
	ev = protowire.AppendFixed32(ev, math.Float32bits(intensity))
	ev = protowire.AppendTag(ev, 3, protowire.VarintType)
	ev = protowire.AppendVarint(ev, uint64(lengthMs))

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, ev)
	return b
}

// EncodeClientInfo builds an InputUpdate carrying client identification.
func EncodeClientInfo(ci ClientInfo) []byte {
	var msg []byte
	msg = appendString(msg, 1, ci.AppName)
	msg = appendString(msg, 2, ci.DeviceName)
	msg = appendString(msg, 3, ci.OS)

	var b []byte
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, msg)
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// The encoders below produce Update frames. The device side normally
// does this; they exist for the synthetic transport and for tests.

// EncodeUpdate serializes an Update with the same field layout Decode
// expects.
func EncodeUpdate(u *Update) []byte {
	var b []byte
	for _, sf := range u.SensorFrames {
		b = appendMessage(b, 1, encodeSensorFrame(sf))
	}
	for _, g := range u.Gestures {
		var m []byte
		m = appendVarintField(m, 1, uint64(g.Type))
		m = appendVarintField(m, 2, uint64(uint32(g.DeltaTime)))
		b = appendMessage(b, 2, m)
	}
	for _, te := range u.TouchEvents {
		b = appendMessage(b, 3, encodeTouchEvent(te))
	}
	for _, be := range u.ButtonEvents {
		var m []byte
		m = appendVarintField(m, 1, uint64(uint32(be.ID)))
		m = appendVarintField(m, 2, uint64(uint32(be.DeltaTime)))
		b = appendMessage(b, 4, m)
	}
	for _, re := range u.RotaryEvents {
		var m []byte
		m = appendVarintField(m, 1, uint64(int64(re.Step)))
		m = appendVarintField(m, 2, uint64(uint32(re.DeltaTime)))
		b = appendMessage(b, 5, m)
	}
	for _, s := range u.Signals {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s))
	}
	if u.DeltaTime != 0 {
		b = appendVarintField(b, 7, uint64(uint32(u.DeltaTime)))
	}
	if u.UnixTime != 0 {
		b = appendVarintField(b, 8, uint64(u.UnixTime))
	}
	if u.Info.HasInfo {
		b = appendMessage(b, 9, encodeInfo(u.Info))
	}
	for _, pe := range u.Probabilities {
		var m []byte
		m = appendVarintField(m, 1, uint64(pe.Label))
		m = protowire.AppendTag(m, 2, protowire.Fixed32Type)
		m = protowire.AppendFixed32(m, math.Float32bits(pe.Probability))
		b = appendMessage(b, 10, m)
	}
	if u.HasPressure {
		b = protowire.AppendTag(b, 16, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(u.Pressure))
	}
	return b
}

func encodeSensorFrame(sf SensorFrame) []byte {
	var m []byte
	m = appendMessage(m, 1, encodeVec3(sf.Gyro))
	m = appendMessage(m, 2, encodeVec3(sf.Acc))
	m = appendMessage(m, 3, encodeVec3(sf.Grav))
	m = appendMessage(m, 4, encodeQuat(sf.Quat))
	if sf.DeltaTime != 0 {
		m = appendVarintField(m, 5, uint64(uint32(sf.DeltaTime)))
	}
	if sf.HasMag {
		m = appendMessage(m, 6, encodeVec3(sf.Mag))
		m = appendMessage(m, 7, encodeVec3(sf.MagCal))
	}
	return m
}

func encodeTouchEvent(te TouchEvent) []byte {
	var m []byte
	m = appendVarintField(m, 1, uint64(te.Type))
	m = appendVarintField(m, 2, uint64(uint32(te.ActionIndex)))
	for _, id := range te.PointerIDs {
		m = appendVarintField(m, 3, uint64(uint32(id)))
	}
	for _, c := range te.Coords {
		m = appendMessage(m, 4, encodeVec2(c))
	}
	if te.DeltaTime != 0 {
		m = appendVarintField(m, 5, uint64(uint32(te.DeltaTime)))
	}
	return m
}

func encodeInfo(info Info) []byte {
	var m []byte
	m = appendVarintField(m, 1, uint64(info.Hand))
	m = appendString(m, 2, info.AppID)
	m = appendString(m, 3, info.AppVersion)
	// Fields 4 and 5 carry model descriptors on the wire and are
	// never written here; the extension fields start at 6.
	m = appendVarintField(m, 6, uint64(uint32(info.BatteryPercent)))
	m = appendMessage(m, 7, encodeVec2(info.ScreenResolution))
	if info.HapticsAvailable {
		m = appendVarintField(m, 8, 1)
	}
	return m
}

func encodeVec2(v Vec2) []byte {
	var m []byte
	m = appendFloatField(m, 1, v.X)
	m = appendFloatField(m, 2, v.Y)
	return m
}

func encodeVec3(v Vec3) []byte {
	var m []byte
	m = appendFloatField(m, 1, v.X)
	m = appendFloatField(m, 2, v.Y)
	m = appendFloatField(m, 3, v.Z)
	return m
}

func encodeQuat(q Quat) []byte {
	var m []byte
	m = appendFloatField(m, 1, q.X)
	m = appendFloatField(m, 2, q.Y)
	m = appendFloatField(m, 3, q.Z)
	m = appendFloatField(m, 4, q.W)
	return m
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFloatField(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}
