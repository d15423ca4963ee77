package control

// ClosestReference picks whichever of lastCrossing and lastCrossing+totalSlots
// is closer to currentYaw. Ties go to lastCrossing.
func ClosestReference(currentYaw, lastCrossing, totalSlots int) int {
	if currentYaw-lastCrossing <= (lastCrossing+totalSlots)-currentYaw {
		return lastCrossing
	}
	return lastCrossing + totalSlots
}

// yawTracker keeps the incremental yaw count and the last absolute
// reference crossing. A crossing of 0 means the marker has not been seen.
type yawTracker struct {
	totalSlots      int
	currentYaw      int
	lastRefCrossing int
}

func (t *yawTracker) found() bool {
	return t.lastRefCrossing != 0
}

func (t *yawTracker) clear() {
	t.lastRefCrossing = 0
}

func (t *yawTracker) closest() int {
	return ClosestReference(t.currentYaw, t.lastRefCrossing, t.totalSlots)
}
