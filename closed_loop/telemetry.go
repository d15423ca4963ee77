package main

import (
	"fmt"
	"io"

	"go.bug.st/serial"

	control "heli-flight-core/closed_loop/flight_control"
	"heli-flight-core/utils"
)

// Telemetry reports the controller state to the log and, if set, a UART
type Telemetry struct {
	log        *utils.Logger
	sink       io.Writer
	totalSlots int
}

func NewTelemetry(log *utils.Logger, sink io.Writer, totalSlots int) *Telemetry {
	return &Telemetry{log: log, sink: sink, totalSlots: totalSlots}
}

// OpenSerialSink opens the telemetry UART
func OpenSerialSink(portName string, baud int) (io.WriteCloser, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", portName, err)
	}
	return port, nil
}

func (t *Telemetry) Report(s control.Snapshot) error {
	line := FormatStatus(s, t.totalSlots)
	t.log.Info("%s", line)
	if t.sink == nil {
		return nil
	}
	if _, err := io.WriteString(t.sink, line+"\r\n"); err != nil {
		return fmt.Errorf("telemetry write: %w", err)
	}
	return nil
}

// FormatStatus renders one status line
func FormatStatus(s control.Snapshot, totalSlots int) string {
	return fmt.Sprintf("mode=%s yaw=%d (%d deg) ref_yaw=%d height=%d%% ref_height=%d%% main=%d%% tail=%d%%",
		s.Mode, s.CurrentYaw, YawDegrees(s.CurrentYaw, totalSlots), s.ReferenceYaw,
		s.CurrentHeight, s.ReferenceHeight, s.OutputMain, s.OutputTail)
}

// YawDegrees maps a slot count onto (-180, 180]
func YawDegrees(slots, totalSlots int) int {
	if totalSlots <= 0 {
		return 0
	}
	wrapped := ((slots % totalSlots) + totalSlots) % totalSlots
	deg := wrapped * 360 / totalSlots
	if deg > 180 {
		deg -= 360
	}
	return deg
}
