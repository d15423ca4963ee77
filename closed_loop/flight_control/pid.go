package control

import (
	"math"
	"time"

	"go.einride.tech/pid"
)

// PIDEngine is one discrete PID loop producing a duty percentage.
// There is no anti-windup unless IntegralLimit is set in the gains.
type PIDEngine struct {
	gains   PIDGains
	dt      time.Duration
	minDuty int
	maxDuty int

	ctrl pid.Controller

	// State
	err    int
	output int
}

// NewPIDEngine creates a PID loop sampled every dt with its output clamped to [minDuty, maxDuty]
func NewPIDEngine(gains PIDGains, dt time.Duration, minDuty, maxDuty int) *PIDEngine {
	return &PIDEngine{
		gains:   gains,
		dt:      dt,
		minDuty: minDuty,
		maxDuty: maxDuty,
		ctrl: pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: gains.Kp,
				IntegralGain:     gains.Ki,
				DerivativeGain:   gains.Kd,
			},
		},
	}
}

// Update runs one step of the loop.
//
// Returns: the integer error and the clamped duty percentage
func (e *PIDEngine) Update(reference, current int) (int, int) {
	e.ctrl.Update(pid.ControllerInput{
		ReferenceSignal:  float64(reference),
		ActualSignal:     float64(current),
		SamplingInterval: e.dt,
	})

	raw := e.ctrl.State.ControlSignal
	if limit := e.gains.IntegralLimit; limit > 0 {
		st := &e.ctrl.State
		clamped := ClampFloat(st.ControlErrorIntegral, -limit, limit)
		if clamped != st.ControlErrorIntegral {
			st.ControlErrorIntegral = clamped
			raw = e.gains.Kp*st.ControlError + e.gains.Ki*clamped + e.gains.Kd*st.ControlErrorDerivative
			st.ControlSignal = raw
		}
	}

	e.err = reference - current
	e.output = e.clampDuty(raw)
	return e.err, e.output
}

// clampDuty saturates before truncating so huge signals never overflow
func (e *PIDEngine) clampDuty(raw float64) int {
	if math.IsNaN(raw) || raw < float64(e.minDuty) {
		return e.minDuty
	}
	if raw > float64(e.maxDuty) {
		return e.maxDuty
	}
	return int(raw)
}

// Reset clears the loop state
func (e *PIDEngine) Reset() {
	e.ctrl.State = pid.ControllerState{}
	e.err = 0
	e.output = 0
}

// Error returns the most recent error
func (e *PIDEngine) Error() int {
	return e.err
}

// Output returns the most recent clamped output
func (e *PIDEngine) Output() int {
	return e.output
}

// Integral returns the error accumulator
func (e *PIDEngine) Integral() float64 {
	return e.ctrl.State.ControlErrorIntegral
}

// Diagnostics returns current loop state for logging/debugging
func (e *PIDEngine) Diagnostics() PIDDiagnostics {
	st := e.ctrl.State
	return PIDDiagnostics{
		Error:      e.err,
		Integral:   st.ControlErrorIntegral,
		Derivative: st.ControlErrorDerivative,
		P:          e.gains.Kp * st.ControlError,
		I:          e.gains.Ki * st.ControlErrorIntegral,
		D:          e.gains.Kd * st.ControlErrorDerivative,
		Output:     e.output,
	}
}

// PIDDiagnostics contains PID internal state for monitoring
type PIDDiagnostics struct {
	Error      int
	Integral   float64
	Derivative float64
	P          float64
	I          float64
	D          float64
	Output     int
}
