package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	control "heli-flight-core/closed_loop/flight_control"
)

// Operator actions a scenario can schedule
const (
	ActionTakeOff = "takeoff"
	ActionLand    = "land"
	ActionLanded  = "landed"
	ActionUp      = "up"
	ActionDown    = "down"
	ActionCW      = "cw"
	ActionCCW     = "ccw"
)

// Scenario defines a complete rig run
type Scenario struct {
	Meta     ScenarioMeta    `json:"meta"`
	Timing   ScenarioTiming  `json:"timing"`
	Frames   ScenarioFrames  `json:"frames"`
	Events   []ScenarioEvent `json:"events"`
	AutoLand bool            `json:"auto_land"`

	// Overrides on top of the defaults, decoded by ControlConfig and PlantConfig
	Control json.RawMessage `json:"control,omitempty"`
	Plant   json.RawMessage `json:"plant,omitempty"`
}

// ScenarioMeta contains scenario metadata
type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// ScenarioTiming defines timing parameters
type ScenarioTiming struct {
	DtS          float64 `json:"dt_s"`
	DurationS    float64 `json:"duration_s"`
	LogHz        float64 `json:"log_hz"`
	RealTimeMode bool    `json:"real_time_mode"`
}

// ScenarioFrames names the CAN map frames the runner uses
type ScenarioFrames struct {
	Actuator string `json:"actuator"`
	Encoder  string `json:"encoder"`
	Sensor   string `json:"sensor"`
	Marker   string `json:"marker"`
}

// ScenarioEvent is one operator input at time T
type ScenarioEvent struct {
	T       float64 `json:"t"`
	Action  string  `json:"action"`
	Comment string  `json:"comment,omitempty"`
}

// LoadScenario loads a scenario from JSON file
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes, defaults and validates a scenario
func ParseScenario(data []byte) (Scenario, error) {
	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}

	if scen.Timing.DurationS <= 0 {
		return Scenario{}, fmt.Errorf("invalid duration_s: %f", scen.Timing.DurationS)
	}
	if scen.Timing.DtS < 0 {
		return Scenario{}, fmt.Errorf("invalid dt_s: %f", scen.Timing.DtS)
	}
	if scen.Timing.LogHz < 0 {
		return Scenario{}, fmt.Errorf("invalid log_hz: %f", scen.Timing.LogHz)
	}

	if scen.Frames.Actuator == "" {
		scen.Frames.Actuator = "HELI_ACTUATOR_CMD"
	}
	if scen.Frames.Encoder == "" {
		scen.Frames.Encoder = "HELI_ENCODER_CMD"
	}
	if scen.Frames.Sensor == "" {
		scen.Frames.Sensor = "HELI_SENSOR_STATE"
	}
	if scen.Frames.Marker == "" {
		scen.Frames.Marker = "HELI_REF_MARKER"
	}

	for i, ev := range scen.Events {
		if ev.T < 0 {
			return Scenario{}, fmt.Errorf("event %d: negative time %f", i, ev.T)
		}
		switch ev.Action {
		case ActionTakeOff, ActionLand, ActionLanded, ActionUp, ActionDown, ActionCW, ActionCCW:
		default:
			return Scenario{}, fmt.Errorf("event %d: unknown action %q", i, ev.Action)
		}
	}
	sort.SliceStable(scen.Events, func(i, j int) bool { return scen.Events[i].T < scen.Events[j].T })

	cfg, err := scen.ControlConfig()
	if err != nil {
		return Scenario{}, err
	}
	if scen.Timing.DtS == 0 {
		scen.Timing.DtS = cfg.DeltaTS
	}
	if cfg.DeltaTS <= 0 {
		return Scenario{}, fmt.Errorf("invalid control delta_t_s: %f", cfg.DeltaTS)
	}
	if cfg.MinDuty >= cfg.MaxDuty {
		return Scenario{}, fmt.Errorf("invalid duty range [%d, %d]", cfg.MinDuty, cfg.MaxDuty)
	}
	if cfg.TotalSlots <= 0 {
		return Scenario{}, fmt.Errorf("invalid total_slots: %d", cfg.TotalSlots)
	}
	if _, err := scen.PlantConfig(); err != nil {
		return Scenario{}, err
	}

	return scen, nil
}

// ControlConfig applies the scenario's overrides to the default rig constants
func (s *Scenario) ControlConfig() (control.Config, error) {
	cfg := control.DefaultConfig()
	if len(s.Control) > 0 {
		if err := json.Unmarshal(s.Control, &cfg); err != nil {
			return control.Config{}, fmt.Errorf("control config: %w", err)
		}
	}
	return cfg, nil
}

// PlantConfig applies the scenario's overrides to the default simulated rig
func (s *Scenario) PlantConfig() (PlantConfig, error) {
	cfg := DefaultPlantConfig()
	if len(s.Plant) > 0 {
		if err := json.Unmarshal(s.Plant, &cfg); err != nil {
			return PlantConfig{}, fmt.Errorf("plant config: %w", err)
		}
	}
	return cfg, nil
}

// DueEvents returns the events scheduled at or before t, starting at index next.
// The second result is the index of the first event still pending.
func DueEvents(scen *Scenario, next int, t float64) ([]ScenarioEvent, int) {
	end := next
	for end < len(scen.Events) && scen.Events[end].T <= t {
		end++
	}
	return scen.Events[next:end], end
}
