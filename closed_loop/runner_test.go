package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.einride.tech/can"

	control "heli-flight-core/closed_loop/flight_control"
)

func newTestRunner(t *testing.T, scenJSON string) (*Runner, *recordingBus, *bytes.Buffer) {
	t.Helper()
	scen, err := ParseScenario([]byte(scenJSON))
	if err != nil {
		t.Fatalf("parse scenario: %v", err)
	}
	log, buf := newTestLogger()
	bus := &recordingBus{}
	r, err := newRunner(RunnerConfig{Simulate: true}, log, mustLoadMap(t), scen, bus, bus, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r, bus, buf
}

func frameIDs(frames []can.Frame) []uint32 {
	ids := make([]uint32, len(frames))
	for i, f := range frames {
		ids[i] = f.ID
	}
	return ids
}

func TestRunner_TakeOffFindsReference(t *testing.T) {
	r, bus, _ := newTestRunner(t, `{
		"timing": {"duration_s": 1},
		"events": [{"t": 0, "action": "takeoff"}]
	}`)
	ctx := context.Background()

	if err := r.step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := r.Controller().Mode(); got != control.TakingOff {
		t.Fatalf("expected TakingOff, got %s", got)
	}
	frames := bus.take()
	if len(frames) != 1 || frames[0].ID != 0x210 {
		t.Fatalf("expected a single actuator frame, got %v", frameIDs(frames))
	}
	_, vals, err := r.smap.DecodeFrame(frames[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if vals[sigMainDuty] != 98 || vals[sigMainFreq] != 200 {
		t.Fatalf("expected saturated main rotor at 200Hz, got %v", vals)
	}

	marker, err := r.smap.EncodeFrame("HELI_REF_MARKER", map[string]float64{sigCrossing: 42})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r.handleFrame(marker)
	if got := r.Controller().LastRefCrossing(); got != 42 {
		t.Fatalf("expected crossing 42, got %d", got)
	}

	if err := r.step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := r.Controller().Mode(); got != control.Flying {
		t.Fatalf("expected Flying, got %s", got)
	}
	frames = bus.take()
	ids := frameIDs(frames)
	if len(ids) != 2 || ids[0] != 0x212 || ids[1] != 0x210 {
		t.Fatalf("expected encoder reset before actuator frame, got %v", ids)
	}
	if r.Controller().ReferenceYaw() != 0 {
		t.Fatalf("expected yaw reference zeroed, got %d", r.Controller().ReferenceYaw())
	}
}

func TestRunner_SensorFrameUpdatesController(t *testing.T) {
	r, _, _ := newTestRunner(t, `{"timing": {"duration_s": 1}}`)

	f, err := r.smap.EncodeFrame("HELI_SENSOR_STATE", map[string]float64{
		sigHeight:   37,
		sigYawSlots: -120,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r.handleFrame(f)

	if r.Controller().CurrentHeight() != 37 || r.Controller().CurrentYaw() != -120 {
		t.Fatalf("unexpected sensor state: height=%d yaw=%d",
			r.Controller().CurrentHeight(), r.Controller().CurrentYaw())
	}
	if r.rxTick.Load() != 1 {
		t.Fatalf("expected one sensor frame counted, got %d", r.rxTick.Load())
	}
}

func TestRunner_IgnoredRequestIsLogged(t *testing.T) {
	r, _, logs := newTestRunner(t, `{
		"timing": {"duration_s": 1},
		"events": [{"t": 0, "action": "land"}]
	}`)
	if err := r.step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := r.Controller().Mode(); got != control.Landed {
		t.Fatalf("expected to stay Landed, got %s", got)
	}
	if !strings.Contains(logs.String(), "land ignored in mode Landed") {
		t.Fatalf("ignored request not logged: %q", logs.String())
	}
}

func TestRunner_AutoLand(t *testing.T) {
	r, bus, _ := newTestRunner(t, `{"timing": {"duration_s": 1}, "auto_land": true}`)
	r.Controller().SetMode(control.Landing)

	if err := r.step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := r.Controller().Mode(); got != control.Landed {
		t.Fatalf("expected Landed once on the ground, got %s", got)
	}
	if n := len(bus.take()); n != 1 {
		t.Fatalf("expected one actuator frame, got %d", n)
	}
}

func TestRunner_NoAutoLandWithoutFlag(t *testing.T) {
	r, _, _ := newTestRunner(t, `{"timing": {"duration_s": 1}}`)
	r.Controller().SetMode(control.Landing)

	if err := r.step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := r.Controller().Mode(); got != control.Landing {
		t.Fatalf("expected to stay Landing, got %s", got)
	}
}

func TestRunner_ReportsTelemetry(t *testing.T) {
	r, _, logs := newTestRunner(t, `{"timing": {"duration_s": 1, "log_hz": 100}}`)
	if r.reportEvery != 1 {
		t.Fatalf("expected a report every tick, got %d", r.reportEvery)
	}
	if err := r.step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !strings.Contains(logs.String(), "mode=Landed yaw=0 (0 deg)") {
		t.Fatalf("status line not logged: %q", logs.String())
	}
}

func TestRunner_RunCompletesAgainstSimulator(t *testing.T) {
	scen, err := ParseScenario([]byte(`{
		"timing": {"duration_s": 0.2, "real_time_mode": false},
		"events": [{"t": 0, "action": "takeoff"}]
	}`))
	if err != nil {
		t.Fatalf("parse scenario: %v", err)
	}
	smap := mustLoadMap(t)
	bus := NewSimBus(smap, scen.Frames, NewRigPlant(DefaultPlantConfig()), scen.Timing.DtS)
	log, _ := newTestLogger()
	r, err := newRunner(RunnerConfig{Simulate: true}, log, smap, scen, bus, bus, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	defer r.Close()

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.ticks < 20 {
		t.Fatalf("expected at least 20 ticks, got %d", r.ticks)
	}
	if r.Controller().CurrentHeight() <= 0 {
		t.Fatalf("expected the rig to leave the ground")
	}
}

func TestRunner_SimFastScenarioLands(t *testing.T) {
	scen, err := LoadScenario("scenarios/sim_fast.json")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	if scen.Timing.RealTimeMode || !scen.AutoLand {
		t.Fatalf("expected a non-real-time auto-land scenario")
	}
	plantCfg, err := scen.PlantConfig()
	if err != nil {
		t.Fatalf("plant config: %v", err)
	}

	smap := mustLoadMap(t)
	plant := NewRigPlant(plantCfg)
	bus := NewSimBus(smap, scen.Frames, plant, scen.Timing.DtS)
	log, logs := newTestLogger()
	r, err := newRunner(RunnerConfig{Simulate: true}, log, smap, scen, bus, bus, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	defer r.Close()

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	ctrl := r.Controller()
	if got := ctrl.Mode(); got != control.Landed {
		t.Fatalf("expected Landed at the end of the flight, got %s (height=%d ref=%d)",
			got, ctrl.CurrentHeight(), ctrl.ReferenceHeight())
	}
	if ctrl.CurrentHeight() != 0 || ctrl.OutputMain() != 0 || ctrl.OutputTail() != 0 {
		t.Fatalf("expected rig on the ground with motors off, got height=%d main=%d tail=%d",
			ctrl.CurrentHeight(), ctrl.OutputMain(), ctrl.OutputTail())
	}
	for _, want := range []string{
		"Taking off -> Flying",
		"yaw reference found, encoder reset",
		"Flying -> Landing",
		"landing complete, motors off",
	} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log is missing %q", want)
		}
	}
}
