package utils

import "sort"

// Frame directions as seen from the flight controller
const (
	DirectionTX = "tx"
	DirectionRX = "rx"
)

type SignalDef struct {
	Name      string
	StartBit  int
	BitLength int
	Signed    bool
	Factor    float64
	Offset    float64
	Min       float64
	Max       float64
	Default   float64
	Unit      string
	Comment   string
}

type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string
	CycleMS   int
	Signals   []SignalDef
}

// Signal looks up a signal by name
func (fd *FrameDef) Signal(name string) (SignalDef, bool) {
	for _, s := range fd.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return SignalDef{}, false
}

// SignalMap indexes the rig's CAN frames by id and by name
type SignalMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

func (m *SignalMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
