package control

// Rotor identifies one actuator output of the rig
type Rotor int

const (
	MainRotor Rotor = iota
	TailRotor
)

func (r Rotor) String() string {
	switch r {
	case MainRotor:
		return "main"
	case TailRotor:
		return "tail"
	default:
		return "unknown"
	}
}

// Actuator accepts a duty command for one rotor.
// Implementations must not call back into the Controller.
type Actuator interface {
	SetDuty(rotor Rotor, frequencyHz uint32, dutyPercent int)
}

// SlotResetter zeroes the incremental yaw slot counter once the
// absolute reference has been found.
type SlotResetter interface {
	ResetYawSlots()
}

// ClampInt clamps value between min and max
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampFloat clamps value between min and max
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
