package control

import "sync"

// Controller owns all flight-control state. Tick is the only routine run per
// control period; the sensor setters may be called from other goroutines.
type Controller struct {
	mu sync.Mutex

	cfg   Config
	act   Actuator
	slots SlotResetter

	mode Mode

	referenceHeight int
	currentHeight   int
	referenceYaw    int
	yaw             yawTracker

	heightPID *PIDEngine
	yawPID    *PIDEngine

	yawFind     int
	searchTicks int

	outputMain int
	outputTail int
}

// Snapshot is a consistent read of the controller for telemetry
type Snapshot struct {
	Mode            Mode
	ReferenceHeight int
	CurrentHeight   int
	ReferenceYaw    int
	CurrentYaw      int
	HeightError     int
	YawError        int
	OutputMain      int
	OutputTail      int
	LastRefCrossing int
	YawFind         int
}

// NewController creates a controller in Landed mode
func NewController(cfg Config, act Actuator, slots SlotResetter) *Controller {
	dt := cfg.DeltaT()
	return &Controller{
		cfg:       cfg,
		act:       act,
		slots:     slots,
		mode:      Landed,
		yaw:       yawTracker{totalSlots: cfg.TotalSlots},
		heightPID: NewPIDEngine(cfg.Height, dt, cfg.MinDuty, cfg.MaxDuty),
		yawPID:    NewPIDEngine(cfg.Yaw, dt, cfg.MinDuty, cfg.MaxDuty),
		yawFind:   cfg.YawFindStart,
	}
}

// Tick runs one control period
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runMode()
}

func (c *Controller) updateYaw() {
	_, out := c.yawPID.Update(c.referenceYaw, c.yaw.currentYaw)
	c.drive(TailRotor, out)
}

func (c *Controller) updateHeight() {
	_, out := c.heightPID.Update(c.referenceHeight, c.currentHeight)
	c.drive(MainRotor, out)
}

func (c *Controller) drive(rotor Rotor, duty int) {
	freq := c.cfg.MainFrequencyHz
	if rotor == TailRotor {
		freq = c.cfg.TailFrequencyHz
		c.outputTail = duty
	} else {
		c.outputMain = duty
	}
	if c.act != nil {
		c.act.SetDuty(rotor, freq, duty)
	}
}

func (c *Controller) setMode(m Mode) {
	if m == c.mode {
		return
	}
	if c.cfg.ResetPIDOnModeChange {
		c.heightPID.Reset()
		c.yawPID.Reset()
	}
	if m == TakingOff {
		c.searchTicks = 0
	}
	c.mode = m
}

func (c *Controller) setReferenceHeight(height int) {
	c.referenceHeight = ClampInt(height, c.cfg.MinHeight, c.cfg.MaxHeight)
}

// SetMode forces a mode without checking the transition rules.
// Values outside the four modes are stored and make Tick a no-op.
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setMode(m)
}

// CanChangeMode reports whether an operator request for target would be honored
func (c *Controller) CanChangeMode(target Mode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canChangeMode(target)
}

// RequestMode applies an operator mode request if the transition is allowed
func (c *Controller) RequestMode(target Mode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.canChangeMode(target) {
		return false
	}
	c.setMode(target)
	return true
}

// LandingComplete reports whether a landing has brought the rig down
func (c *Controller) LandingComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode == Landing && c.landingComplete()
}

// SetCurrentHeight records the latest height reading in percent
func (c *Controller) SetCurrentHeight(height int) {
	c.mu.Lock()
	c.currentHeight = height
	c.mu.Unlock()
}

// SetCurrentYaw records the latest encoder slot count
func (c *Controller) SetCurrentYaw(yaw int) {
	c.mu.Lock()
	c.yaw.currentYaw = yaw
	c.mu.Unlock()
}

// SetLastRefCrossing records the slot count at which the reference marker fired
func (c *Controller) SetLastRefCrossing(slot int) {
	c.mu.Lock()
	c.yaw.lastRefCrossing = slot
	c.mu.Unlock()
}

// SetReferenceHeight sets the height reference, clamped to the height range
func (c *Controller) SetReferenceHeight(height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setReferenceHeight(height)
}

// SetReferenceYaw sets the yaw reference. Yaw is not bounded.
func (c *Controller) SetReferenceYaw(yaw int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.referenceYaw = yaw
}

// SetReferenceUp raises the height reference one step. Flying only.
func (c *Controller) SetReferenceUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Flying {
		c.setReferenceHeight(c.referenceHeight + c.cfg.HeightStep)
	}
}

// SetReferenceDown lowers the height reference one step. Flying only.
func (c *Controller) SetReferenceDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Flying {
		c.setReferenceHeight(c.referenceHeight - c.cfg.HeightStep)
	}
}

// SetReferenceCW turns the yaw reference one step clockwise. Flying only.
func (c *Controller) SetReferenceCW() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Flying {
		c.referenceYaw += c.cfg.YawStep
	}
}

// SetReferenceCCW turns the yaw reference one step counter-clockwise. Flying only.
func (c *Controller) SetReferenceCCW() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Flying {
		c.referenceYaw -= c.cfg.YawStep
	}
}

// Mode returns the current flight mode
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// DistanceYaw returns the yaw error of the last yaw update
func (c *Controller) DistanceYaw() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yawPID.Error()
}

// DistanceHeight returns the height error of the last height update
func (c *Controller) DistanceHeight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heightPID.Error()
}

// OutputMain returns the last duty commanded to the main rotor
func (c *Controller) OutputMain() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputMain
}

// OutputTail returns the last duty commanded to the tail rotor
func (c *Controller) OutputTail() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputTail
}

// ReferenceHeight returns the height set-point in percent
func (c *Controller) ReferenceHeight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.referenceHeight
}

// ReferenceYaw returns the yaw set-point in slots
func (c *Controller) ReferenceYaw() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.referenceYaw
}

// CurrentHeight returns the last height reading
func (c *Controller) CurrentHeight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentHeight
}

// CurrentYaw returns the last encoder slot count
func (c *Controller) CurrentYaw() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yaw.currentYaw
}

// LastRefCrossing returns the slot of the last marker crossing, 0 if none
func (c *Controller) LastRefCrossing() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yaw.lastRefCrossing
}

// YawFind returns the next target of the takeoff reference search
func (c *Controller) YawFind() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yawFind
}

// ResetPID clears both loops. The controller never does this on its own
// unless ResetPIDOnModeChange is set.
func (c *Controller) ResetPID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heightPID.Reset()
	c.yawPID.Reset()
}

// HeightDiagnostics returns the height loop state
func (c *Controller) HeightDiagnostics() PIDDiagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heightPID.Diagnostics()
}

// YawDiagnostics returns the yaw loop state
func (c *Controller) YawDiagnostics() PIDDiagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yawPID.Diagnostics()
}

// Snapshot returns every telemetry field under one lock
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Mode:            c.mode,
		ReferenceHeight: c.referenceHeight,
		CurrentHeight:   c.currentHeight,
		ReferenceYaw:    c.referenceYaw,
		CurrentYaw:      c.yaw.currentYaw,
		HeightError:     c.heightPID.Error(),
		YawError:        c.yawPID.Error(),
		OutputMain:      c.outputMain,
		OutputTail:      c.outputTail,
		LastRefCrossing: c.yaw.lastRefCrossing,
		YawFind:         c.yawFind,
	}
}
