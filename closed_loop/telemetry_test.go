package main

import (
	"bytes"
	"strings"
	"testing"

	control "heli-flight-core/closed_loop/flight_control"
)

func TestYawDegrees(t *testing.T) {
	tests := []struct {
		slots int
		want  int
	}{
		{0, 0},
		{112, 90},
		{224, 180},
		{-112, -90},
		{336, -90},
		{448, 0},
		{560, 90},
	}
	for _, tt := range tests {
		if got := YawDegrees(tt.slots, 448); got != tt.want {
			t.Errorf("YawDegrees(%d) = %d, want %d", tt.slots, got, tt.want)
		}
	}
}

func TestTelemetry_Report(t *testing.T) {
	log, logBuf := newTestLogger()
	var sink bytes.Buffer
	telem := NewTelemetry(log, &sink, 448)

	s := control.Snapshot{
		Mode:            control.Flying,
		CurrentYaw:      112,
		ReferenceYaw:    114,
		CurrentHeight:   40,
		ReferenceHeight: 50,
		OutputMain:      61,
		OutputTail:      38,
	}
	if err := telem.Report(s); err != nil {
		t.Fatalf("report: %v", err)
	}

	want := "mode=Flying yaw=112 (90 deg) ref_yaw=114 height=40% ref_height=50% main=61% tail=38%"
	if sink.String() != want+"\r\n" {
		t.Fatalf("unexpected UART line %q", sink.String())
	}
	if !strings.Contains(logBuf.String(), want) {
		t.Fatalf("status not logged: %q", logBuf.String())
	}
}
