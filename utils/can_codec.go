package utils

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// EncodeFrame packs values into a frame. Missing signals take their
// default; every value is clamped to the signal's [min, max].
func (m *SignalMap) EncodeFrame(frameName string, values map[string]float64) (can.Frame, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return can.Frame{}, err
	}

	var payload uint64
	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		v = clamp(v, s.Min, s.Max)

		raw := int64(math.Round((v - s.Offset) / s.Factor))
		raw = clampRaw(raw, s.BitLength, s.Signed)
		payload = setBits(payload, s.StartBit, s.BitLength, uint64(raw))
	}

	f := can.Frame{
		ID:     fd.ID,
		Length: uint8(fd.DLC),
	}
	for i := 0; i < fd.DLC; i++ {
		f.Data[i] = byte(payload >> (8 * i))
	}
	return f, nil
}

// DecodeFrame unpacks a received frame into physical signal values
func (m *SignalMap) DecodeFrame(f can.Frame) (*FrameDef, map[string]float64, error) {
	fd, err := m.FrameByID(f.ID)
	if err != nil {
		return nil, nil, err
	}
	if int(f.Length) < fd.DLC {
		return nil, nil, fmt.Errorf("frame 0x%X expects DLC %d, got %d", f.ID, fd.DLC, f.Length)
	}

	var payload uint64
	for i := 0; i < fd.DLC; i++ {
		payload |= uint64(f.Data[i]) << (8 * i)
	}

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		raw := signExtend(getBits(payload, s.StartBit, s.BitLength), s.BitLength, s.Signed)
		out[s.Name] = float64(raw)*s.Factor + s.Offset
	}
	return fd, out, nil
}
