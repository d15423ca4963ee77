package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.einride.tech/can"

	"heli-flight-core/utils"
)

const rigMapPath = "../config/can/heli_can_map.csv"

func mustLoadMap(t *testing.T) *utils.SignalMap {
	t.Helper()
	m, err := utils.LoadSignalMap(rigMapPath)
	if err != nil {
		t.Fatalf("load map: %v", err)
	}
	return m
}

func defaultFrames() ScenarioFrames {
	return ScenarioFrames{
		Actuator: "HELI_ACTUATOR_CMD",
		Encoder:  "HELI_ENCODER_CMD",
		Sensor:   "HELI_SENSOR_STATE",
		Marker:   "HELI_REF_MARKER",
	}
}

// drain reads every frame currently queued on r
func drain(t *testing.T, r utils.CANReader) []can.Frame {
	t.Helper()
	var out []can.Frame
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		f, err := r.ReadFrame(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("read: %v", err)
			}
			return out
		}
		out = append(out, f)
	}
}

// recordingBus captures transmitted frames and never receives any
type recordingBus struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (b *recordingBus) WriteFrame(_ context.Context, f can.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, f)
	return nil
}

func (b *recordingBus) ReadFrame(ctx context.Context) (can.Frame, error) {
	<-ctx.Done()
	return can.Frame{}, ctx.Err()
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) take() []can.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.frames
	b.frames = nil
	return out
}

func newTestLogger() (*utils.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return utils.NewWriterLogger(&buf, utils.DEBUG), &buf
}
