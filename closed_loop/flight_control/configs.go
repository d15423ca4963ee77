package control

import (
	"math"
	"time"
)

// PIDGains holds the gains of one control axis
type PIDGains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`

	// IntegralLimit clamps the error accumulator to ±limit. Zero disables it.
	IntegralLimit float64 `json:"integral_limit"`
}

// Config holds the flight-control constants
type Config struct {
	Height PIDGains `json:"height"`
	Yaw    PIDGains `json:"yaw"`

	DeltaTS float64 `json:"delta_t_s"`

	MinDuty int `json:"min_duty_pct"`
	MaxDuty int `json:"max_duty_pct"`
	OffDuty int `json:"off_duty_pct"`

	MainFrequencyHz uint32 `json:"main_frequency_hz"`
	TailFrequencyHz uint32 `json:"tail_frequency_hz"`

	HeightStep    int `json:"height_step_pct"`
	YawStep       int `json:"yaw_step_slots"`
	MinHeight     int `json:"min_height_pct"`
	MaxHeight     int `json:"max_height_pct"`
	TakeOffHeight int `json:"take_off_height_pct"`
	TotalSlots    int `json:"total_slots"`

	// Takeoff reference search
	YawFindStart     int `json:"yaw_find_start"`
	YawFindStep      int `json:"yaw_find_step"`
	YawFindThreshold int `json:"yaw_find_threshold"`
	MaxSearchTicks   int `json:"max_search_ticks"` // 0 = search forever

	// Landing
	LandingBand      int  `json:"landing_band_slots"`
	LandingStep      int  `json:"landing_step_pct"`
	LandedHeightBand int  `json:"landed_height_band_pct"`
	LandingHeightPID bool `json:"landing_height_pid"`

	ResetPIDOnModeChange bool `json:"reset_pid_on_mode_change"`
}

// DefaultConfig returns the rig constants the firmware was tuned with
func DefaultConfig() Config {
	return Config{
		Height: PIDGains{Kp: 1.3, Ki: 0.05, Kd: 8.9},
		Yaw:    PIDGains{Kp: 1.9, Ki: 0.6, Kd: 0.03},

		DeltaTS: 0.01,

		MinDuty: 2,
		MaxDuty: 98,
		OffDuty: 0,

		MainFrequencyHz: 200,
		TailFrequencyHz: 200,

		HeightStep:    10,
		YawStep:       19,
		MinHeight:     0,
		MaxHeight:     100,
		TakeOffHeight: 10,
		TotalSlots:    448,

		YawFindStart:     15,
		YawFindStep:      15,
		YawFindThreshold: 2,

		LandingBand:      10,
		LandingStep:      10,
		LandedHeightBand: 2,
	}
}

// DeltaT returns the control period as a duration
func (c Config) DeltaT() time.Duration {
	return time.Duration(math.Round(c.DeltaTS * float64(time.Second)))
}
