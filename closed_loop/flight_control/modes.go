package control

// Mode is the flight mode of the rig
type Mode uint8

const (
	Landing Mode = iota
	TakingOff
	Flying
	Landed
)

func (m Mode) String() string {
	switch m {
	case Landing:
		return "Landing"
	case TakingOff:
		return "Taking off"
	case Flying:
		return "Flying"
	case Landed:
		return "Landed"
	default:
		return "Unknown"
	}
}

// Valid reports whether m is one of the four flight modes
func (m Mode) Valid() bool {
	return m <= Landed
}

// runMode dispatches the per-tick policy of the current mode.
// Unknown modes do nothing.
func (c *Controller) runMode() {
	switch c.mode {
	case Landing:
		c.tickLanding()
	case TakingOff:
		c.tickTakingOff()
	case Flying:
		c.tickFlying()
	case Landed:
		c.tickLanded()
	}
}

func (c *Controller) tickLanded() {
	c.yaw.clear()
	c.drive(MainRotor, c.cfg.OffDuty)
	c.drive(TailRotor, c.cfg.OffDuty)
}

func (c *Controller) tickTakingOff() {
	c.findYawReference()
	c.updateYaw()
	c.updateHeight()
}

func (c *Controller) tickFlying() {
	c.updateYaw()
	c.updateHeight()
}

// tickLanding turns to the nearest absolute reference and only lowers the
// height reference once yaw sits inside the landing band.
func (c *Controller) tickLanding() {
	target := c.yaw.closest()
	c.referenceYaw = target
	c.updateYaw()

	band := c.cfg.LandingBand
	if target < c.yaw.currentYaw+band && target > c.yaw.currentYaw-band {
		c.setReferenceHeight(c.referenceHeight - c.cfg.LandingStep)
	}

	if c.cfg.LandingHeightPID {
		c.updateHeight()
	}
}

// findYawReference steps the yaw reference around at take-off height until
// the marker collaborator reports a crossing. The yaw error checked here is
// the one left by the previous tick.
func (c *Controller) findYawReference() {
	c.setReferenceHeight(c.cfg.TakeOffHeight)
	c.referenceYaw = c.yawFind

	if c.yawPID.Error() < c.cfg.YawFindThreshold {
		c.yawFind += c.cfg.YawFindStep
	}
	c.searchTicks++

	if c.yaw.found() {
		if c.slots != nil {
			c.slots.ResetYawSlots()
		}
		c.referenceYaw = 0
		c.yaw.clear()
		c.setMode(Flying)
		return
	}

	if c.cfg.MaxSearchTicks > 0 && c.searchTicks >= c.cfg.MaxSearchTicks {
		c.setMode(Landing)
	}
}

// canChangeMode holds the operator transition rules. TakingOff is only left
// through its own search.
func (c *Controller) canChangeMode(target Mode) bool {
	switch {
	case target == c.mode:
		return true
	case c.mode == Landed && target == TakingOff:
		return true
	case c.mode == Flying && target == Landing:
		return true
	case c.mode == Landing && target == Landed:
		return c.landingComplete()
	default:
		return false
	}
}

func (c *Controller) landingComplete() bool {
	return c.referenceHeight == c.cfg.MinHeight &&
		c.currentHeight <= c.cfg.MinHeight+c.cfg.LandedHeightBand
}
