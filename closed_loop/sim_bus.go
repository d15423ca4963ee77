package main

import (
	"context"
	"fmt"
	"sync"

	"go.einride.tech/can"

	"heli-flight-core/utils"
)

// SimBus is an in-memory CAN loopback around a RigPlant. Actuator frames
// advance the plant one control period and queue the resulting sensor frames.
type SimBus struct {
	smap   *utils.SignalMap
	frames ScenarioFrames
	dt     float64

	mu    sync.Mutex
	plant *RigPlant

	rx     chan can.Frame
	closed chan struct{}
	once   sync.Once
}

func NewSimBus(smap *utils.SignalMap, frames ScenarioFrames, plant *RigPlant, dt float64) *SimBus {
	return &SimBus{
		smap:   smap,
		frames: frames,
		dt:     dt,
		plant:  plant,
		rx:     make(chan can.Frame, 16),
		closed: make(chan struct{}),
	}
}

func (b *SimBus) WriteFrame(ctx context.Context, frame can.Frame) error {
	fd, vals, err := b.smap.DecodeFrame(frame)
	if err != nil {
		return fmt.Errorf("sim: %w", err)
	}

	switch fd.Name {
	case b.frames.Actuator:
		b.mu.Lock()
		b.plant.Step(b.dt, vals[sigMainDuty], vals[sigTailDuty])
		height, slots := b.plant.HeightPercent(), b.plant.Slots()
		crossing, crossed := b.plant.TakeCrossing()
		b.mu.Unlock()

		// Marker before sensor: a reader that waits for the sensor frame
		// has then seen the crossing too.
		if crossed {
			if err := b.publish(ctx, b.frames.Marker, map[string]float64{
				sigCrossing: float64(crossing),
			}); err != nil {
				return err
			}
		}
		return b.publish(ctx, b.frames.Sensor, map[string]float64{
			sigHeight:   float64(height),
			sigYawSlots: float64(slots),
		})
	case b.frames.Encoder:
		if vals[sigResetSlots] >= 1 {
			b.mu.Lock()
			b.plant.ResetSlots()
			b.mu.Unlock()
		}
	}
	return nil
}

// publish drops the oldest queued frame rather than block the control loop
func (b *SimBus) publish(ctx context.Context, frameName string, values map[string]float64) error {
	f, err := b.smap.EncodeFrame(frameName, values)
	if err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closed:
			return utils.ErrReaderClosed
		case b.rx <- f:
			return nil
		default:
			select {
			case <-b.rx:
			default:
			}
		}
	}
}

func (b *SimBus) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-b.closed:
		return can.Frame{}, utils.ErrReaderClosed
	case f := <-b.rx:
		return f, nil
	}
}

func (b *SimBus) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}
