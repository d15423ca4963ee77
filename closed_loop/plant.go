package main

import "math"

// PlantConfig describes the simulated rig
type PlantConfig struct {
	HoverDutyPct     float64 `json:"hover_duty_pct"`       // main duty that holds height
	ClimbGain        float64 `json:"climb_gain"`           // %/s per duty point above hover
	TailBalance      float64 `json:"tail_balance"`         // tail duty per main duty that cancels rotor torque
	YawGain          float64 `json:"yaw_gain"`             // slots/s per unbalanced tail duty point
	TotalSlots       int     `json:"total_slots"`          // slots per revolution
	MarkerSlot       float64 `json:"marker_slot"`          // absolute position of the reference marker
	StartPositionAbs float64 `json:"start_position_slots"` // absolute yaw at power-up
}

// DefaultPlantConfig returns a light rig that hovers near 12% main duty
func DefaultPlantConfig() PlantConfig {
	return PlantConfig{
		HoverDutyPct:     12,
		ClimbGain:        1.0,
		TailBalance:      0.8,
		YawGain:          4,
		TotalSlots:       448,
		MarkerSlot:       100,
		StartPositionAbs: 0,
	}
}

// RigPlant is a first-order model of the helicopter on its stand: height
// rate follows main duty, yaw rate follows the tail/main torque balance.
type RigPlant struct {
	cfg PlantConfig

	heightPct float64
	yawAbs    float64 // absolute yaw in slots, never reset
	zero      float64 // absolute yaw where the encoder reads 0

	crossing    bool
	crossingPos int
}

func NewRigPlant(cfg PlantConfig) *RigPlant {
	return &RigPlant{
		cfg:    cfg,
		yawAbs: cfg.StartPositionAbs,
		zero:   cfg.StartPositionAbs,
	}
}

// Step advances the model by dt seconds under the given duties
func (p *RigPlant) Step(dt, mainDuty, tailDuty float64) {
	rate := p.cfg.ClimbGain * (mainDuty - p.cfg.HoverDutyPct)
	p.heightPct = math.Max(0, math.Min(100, p.heightPct+rate*dt))

	// Skids hold yaw while on the ground.
	if p.heightPct <= 0 {
		return
	}

	before := p.markerLap()
	p.yawAbs += p.cfg.YawGain * (tailDuty - p.cfg.TailBalance*mainDuty) * dt
	if p.markerLap() != before {
		p.crossing = true
		p.crossingPos = p.Slots()
	}
}

func (p *RigPlant) markerLap() float64 {
	return math.Floor((p.yawAbs - p.cfg.MarkerSlot) / float64(p.cfg.TotalSlots))
}

// HeightPercent returns altitude as a percentage of its range
func (p *RigPlant) HeightPercent() int {
	return int(math.Round(p.heightPct))
}

// Slots returns the incremental encoder count
func (p *RigPlant) Slots() int {
	return int(math.Round(p.yawAbs - p.zero))
}

// ResetSlots zeroes the encoder at the current position
func (p *RigPlant) ResetSlots() {
	p.zero = p.yawAbs
}

// TakeCrossing reports a marker crossing since the last call
func (p *RigPlant) TakeCrossing() (int, bool) {
	if !p.crossing {
		return 0, false
	}
	p.crossing = false
	return p.crossingPos, true
}
