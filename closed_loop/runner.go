package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.einride.tech/can"

	control "heli-flight-core/closed_loop/flight_control"
	"heli-flight-core/utils"
)

// Signal names in the rig CAN map
const (
	sigMainDuty   = "main_duty_pct"
	sigTailDuty   = "tail_duty_pct"
	sigMainFreq   = "main_freq_hz"
	sigTailFreq   = "tail_freq_hz"
	sigResetSlots = "reset_yaw_slots"
	sigHeight     = "height_pct"
	sigYawSlots   = "yaw_slots"
	sigCrossing   = "crossing_slot"
)

const (
	staleSensorAfter = 500 * time.Millisecond
	// how long a non-real-time step waits for the simulator's answer
	feedbackWait = 50 * time.Millisecond
)

type RunnerConfig struct {
	Interface    string
	MapPath      string
	ScenarioPath string
	Simulate     bool
	UARTPort     string
	UARTBaud     int
}

// rigCommands latches what the controller commanded during a tick so the
// runner can transmit it afterwards.
type rigCommands struct {
	mainDuty, tailDuty int
	mainFreq, tailFreq uint32
	resetPending       bool
}

func (c *rigCommands) SetDuty(rotor control.Rotor, frequencyHz uint32, dutyPercent int) {
	switch rotor {
	case control.MainRotor:
		c.mainDuty, c.mainFreq = dutyPercent, frequencyHz
	case control.TailRotor:
		c.tailDuty, c.tailFreq = dutyPercent, frequencyHz
	}
}

func (c *rigCommands) ResetYawSlots() {
	c.resetPending = true
}

func (c *rigCommands) actuatorValues() map[string]float64 {
	return map[string]float64{
		sigMainDuty: float64(c.mainDuty),
		sigTailDuty: float64(c.tailDuty),
		sigMainFreq: float64(c.mainFreq),
		sigTailFreq: float64(c.tailFreq),
	}
}

type Runner struct {
	cfg    RunnerConfig
	log    *utils.Logger
	smap   *utils.SignalMap
	scen   Scenario
	writer utils.CANWriter
	reader utils.CANReader
	closer []io.Closer

	sensorFD *utils.FrameDef
	markerFD *utils.FrameDef

	ctrl  *control.Controller
	cmds  *rigCommands
	telem *Telemetry

	dt          float64
	reportEvery uint64

	nextEvent int
	lastMode  control.Mode
	ticks     uint64
	sent      uint64
	lastRx    atomic.Int64  // unix nanos of the last sensor frame
	rxTick    atomic.Uint64 // sensor frames applied
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	smap, err := utils.LoadSignalMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}

	scen, err := LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	var (
		writer utils.CANWriter
		reader utils.CANReader
	)
	if cfg.Simulate {
		plantCfg, err := scen.PlantConfig()
		if err != nil {
			return nil, err
		}
		bus := NewSimBus(smap, scen.Frames, NewRigPlant(plantCfg), scen.Timing.DtS)
		writer, reader = bus, bus
		log.Info("Simulated rig: hover=%.0f%% marker=%.0f slots", plantCfg.HoverDutyPct, plantCfg.MarkerSlot)
	} else {
		w, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
		if err != nil {
			return nil, err
		}
		rd, err := utils.NewSocketCANReader(ctx, cfg.Interface)
		if err != nil {
			w.Close()
			return nil, err
		}
		writer, reader = w, rd
	}

	var sink io.WriteCloser
	if cfg.UARTPort != "" {
		sink, err = OpenSerialSink(cfg.UARTPort, cfg.UARTBaud)
		if err != nil {
			writer.Close()
			reader.Close()
			return nil, err
		}
	}

	r, err := newRunner(cfg, log, smap, scen, writer, reader, sink)
	if err != nil {
		writer.Close()
		reader.Close()
		if sink != nil {
			sink.Close()
		}
		return nil, err
	}
	return r, nil
}

func newRunner(cfg RunnerConfig, log *utils.Logger, smap *utils.SignalMap, scen Scenario,
	writer utils.CANWriter, reader utils.CANReader, sink io.WriteCloser) (*Runner, error) {
	ctrlCfg, err := scen.ControlConfig()
	if err != nil {
		return nil, err
	}

	for _, name := range []string{scen.Frames.Actuator, scen.Frames.Encoder, scen.Frames.Sensor, scen.Frames.Marker} {
		if _, err := smap.FrameByName(name); err != nil {
			return nil, fmt.Errorf("frame: %w", err)
		}
	}
	sensorFD, _ := smap.FrameByName(scen.Frames.Sensor)
	markerFD, _ := smap.FrameByName(scen.Frames.Marker)

	cmds := &rigCommands{}
	r := &Runner{
		cfg:      cfg,
		log:      log,
		smap:     smap,
		scen:     scen,
		writer:   writer,
		reader:   reader,
		sensorFD: sensorFD,
		markerFD: markerFD,
		ctrl:     control.NewController(ctrlCfg, cmds, cmds),
		cmds:     cmds,
		dt:       scen.Timing.DtS,
	}
	r.lastMode = r.ctrl.Mode()

	var sinkWriter io.Writer
	if sink != nil {
		sinkWriter = sink
		r.closer = append(r.closer, sink)
	}
	r.telem = NewTelemetry(log, sinkWriter, ctrlCfg.TotalSlots)
	if scen.Timing.LogHz > 0 {
		r.reportEvery = uint64(math.Max(1, math.Round(1/(scen.Timing.LogHz*r.dt))))
	}

	log.Info("Controller ready: height Kp=%.2f Ki=%.2f Kd=%.2f, yaw Kp=%.2f Ki=%.2f Kd=%.2f, dt=%.3fs",
		ctrlCfg.Height.Kp, ctrlCfg.Height.Ki, ctrlCfg.Height.Kd,
		ctrlCfg.Yaw.Kp, ctrlCfg.Yaw.Ki, ctrlCfg.Yaw.Kd, r.dt)
	return r, nil
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
	for _, c := range r.closer {
		_ = c.Close()
	}
}

// Controller exposes the flight controller, e.g. for an operator console
func (r *Runner) Controller() *control.Controller {
	return r.ctrl
}

func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting rig loop: scenario=%s duration=%.2fs dt=%.3fs iface=%s sim=%v events=%d",
		r.scen.Meta.Name, r.scen.Timing.DurationS, r.dt, r.cfg.Interface, r.cfg.Simulate, len(r.scen.Events))

	ctx, cancel := context.WithCancel(ctx)
	var rx sync.WaitGroup
	rx.Add(1)
	go func() {
		defer rx.Done()
		r.receiveLoop(ctx)
	}()
	defer rx.Wait()
	defer cancel()

	period := time.Duration(r.dt * float64(time.Second))
	endAfter := time.Duration(r.scen.Timing.DurationS * float64(time.Second))

	if !r.scen.Timing.RealTimeMode {
		// Faster than real time: only sensible against the simulator.
		for r.simTime() <= r.scen.Timing.DurationS {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.step(ctx); err != nil {
				return err
			}
			// Let the receive loop apply the sensor frame the step produced.
			r.waitForFeedback(ctx, r.ticks)
		}
		r.log.Info("Completed run. ticks=%d frames_sent=%d mode=%s", r.ticks, r.sent, r.ctrl.Mode())
		return nil
	}

	start := time.Now()
	r.lastRx.Store(start.UnixNano())
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping rig loop")
			r.log.Info("Completed run. ticks=%d frames_sent=%d", r.ticks, r.sent)
			return ctx.Err()

		case now := <-ticker.C:
			if now.Sub(start) > endAfter {
				r.log.Info("Completed run. ticks=%d frames_sent=%d mode=%s", r.ticks, r.sent, r.ctrl.Mode())
				return nil
			}

			if rxAge := now.Sub(time.Unix(0, r.lastRx.Load())); rxAge > staleSensorAfter && r.ctrl.Mode() != control.Landed {
				r.log.Warn("No sensor feedback for %.1f ms - control may be unreliable", rxAge.Seconds()*1000)
			}

			if err := r.step(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) simTime() float64 {
	return float64(r.ticks) * r.dt
}

// waitForFeedback gives the receive goroutine a bounded chance to deliver
// the sensor frame for tick before the next step.
func (r *Runner) waitForFeedback(ctx context.Context, tick uint64) {
	deadline := time.Now().Add(feedbackWait)
	for r.rxTick.Load() < tick && time.Now().Before(deadline) && ctx.Err() == nil {
		time.Sleep(50 * time.Microsecond)
	}
}

// step runs one control period: operator events, the controller tick, and
// transmission of whatever the tick commanded.
func (r *Runner) step(ctx context.Context) error {
	t := r.simTime()

	var due []ScenarioEvent
	due, r.nextEvent = DueEvents(&r.scen, r.nextEvent, t)
	for _, ev := range due {
		r.applyEvent(ev)
	}

	r.ctrl.Tick()
	r.ticks++

	if mode := r.ctrl.Mode(); mode != r.lastMode {
		r.log.Info("t=%.2f mode %s -> %s", t, r.lastMode, mode)
		if !mode.Valid() {
			r.log.Warn("Controller in unknown mode %d; no output this period", mode)
		}
		r.lastMode = mode
	}

	if r.scen.AutoLand && r.ctrl.LandingComplete() && r.ctrl.RequestMode(control.Landed) {
		r.log.Info("t=%.2f landing complete, motors off", t)
	}

	if r.cmds.resetPending {
		r.cmds.resetPending = false
		if err := r.transmit(ctx, r.scen.Frames.Encoder, map[string]float64{sigResetSlots: 1}); err != nil {
			r.log.Critical("Encoder reset failed at t=%.3f: %v", t, err)
			return err
		}
		r.log.Info("t=%.2f yaw reference found, encoder reset", t)
	}
	if err := r.transmit(ctx, r.scen.Frames.Actuator, r.cmds.actuatorValues()); err != nil {
		r.log.Critical("Transmit failed at t=%.3f: %v", t, err)
		return err
	}

	if r.ticks%100 == 0 && r.log.Enabled(utils.DEBUG) {
		h, y := r.ctrl.HeightDiagnostics(), r.ctrl.YawDiagnostics()
		r.log.Debug("PID height: err=%d P=%.1f I=%.2f D=%.1f out=%d | yaw: err=%d P=%.1f I=%.2f D=%.1f out=%d",
			h.Error, h.P, h.I, h.D, h.Output, y.Error, y.P, y.I, y.D, y.Output)
	}

	if r.reportEvery > 0 && r.ticks%r.reportEvery == 0 {
		if err := r.telem.Report(r.ctrl.Snapshot()); err != nil {
			r.log.Error("%v", err)
		}
	}
	return nil
}

func (r *Runner) applyEvent(ev ScenarioEvent) {
	switch ev.Action {
	case ActionTakeOff:
		r.requestMode(ev, control.TakingOff)
	case ActionLand:
		r.requestMode(ev, control.Landing)
	case ActionLanded:
		r.requestMode(ev, control.Landed)
	case ActionUp:
		r.ctrl.SetReferenceUp()
	case ActionDown:
		r.ctrl.SetReferenceDown()
	case ActionCW:
		r.ctrl.SetReferenceCW()
	case ActionCCW:
		r.ctrl.SetReferenceCCW()
	}
	r.log.Debug("t=%.2f event %s: ref_height=%d ref_yaw=%d", ev.T, ev.Action, r.ctrl.ReferenceHeight(), r.ctrl.ReferenceYaw())
}

func (r *Runner) requestMode(ev ScenarioEvent, target control.Mode) {
	if !r.ctrl.RequestMode(target) {
		r.log.Warn("t=%.2f %s ignored in mode %s", ev.T, ev.Action, r.ctrl.Mode())
	}
}

func (r *Runner) transmit(ctx context.Context, frameName string, values map[string]float64) error {
	frame, err := r.smap.EncodeFrame(frameName, values)
	if err != nil {
		return fmt.Errorf("encode %s: %w", frameName, err)
	}
	if err := r.writer.WriteFrame(ctx, frame); err != nil {
		return err
	}
	r.sent++
	r.log.Trace("TX id=0x%X len=%d data=% X", frame.ID, frame.Length, frame.Data[:frame.Length])
	return nil
}

// receiveLoop feeds decoded sensor and marker frames straight into the
// controller's setters, like the firmware's interrupt handlers.
func (r *Runner) receiveLoop(ctx context.Context) {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	for {
		frame, err := r.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, utils.ErrReaderClosed) {
				r.log.Error("RX stopped: %v", err)
				return
			}
			r.log.Error("RX error: %v", err)
			continue
		}
		r.handleFrame(frame)
	}
}

func (r *Runner) handleFrame(frame can.Frame) {
	r.log.Trace("RX id=0x%X len=%d data=% X", frame.ID, frame.Length, frame.Data[:frame.Length])

	switch frame.ID {
	case r.sensorFD.ID:
		_, vals, err := r.smap.DecodeFrame(frame)
		if err != nil {
			r.log.Error("RX decode: %v", err)
			return
		}
		r.ctrl.SetCurrentHeight(int(math.Round(vals[sigHeight])))
		r.ctrl.SetCurrentYaw(int(math.Round(vals[sigYawSlots])))
		r.lastRx.Store(time.Now().UnixNano())
		r.rxTick.Add(1)

	case r.markerFD.ID:
		_, vals, err := r.smap.DecodeFrame(frame)
		if err != nil {
			r.log.Error("RX decode: %v", err)
			return
		}
		slot := int(math.Round(vals[sigCrossing]))
		r.ctrl.SetLastRefCrossing(slot)
		r.log.Debug("Reference marker at slot %d", slot)
	}
}
