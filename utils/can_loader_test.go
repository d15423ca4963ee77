package utils

import (
	"strings"
	"testing"
)

func TestParseSignalMap(t *testing.T) {
	m := mustRigMap(t)

	if got := m.FrameNames(); len(got) != 2 || got[0] != "HELI_ACTUATOR_CMD" || got[1] != "HELI_SENSOR_STATE" {
		t.Fatalf("unexpected frames %v", got)
	}

	fd, err := m.FrameByID(0x210)
	if err != nil {
		t.Fatalf("FrameByID: %v", err)
	}
	if fd.Direction != DirectionTX || fd.CycleMS != 10 || len(fd.Signals) != 4 {
		t.Fatalf("unexpected frame %+v", fd)
	}
	for i := 1; i < len(fd.Signals); i++ {
		if fd.Signals[i-1].StartBit > fd.Signals[i].StartBit {
			t.Fatalf("signals not sorted by start bit")
		}
	}
	if s, ok := fd.Signal("main_freq_hz"); !ok || s.Default != 200 {
		t.Fatalf("main_freq_hz missing or wrong default: %+v", s)
	}
}

func TestParseSignalMap_Rejects(t *testing.T) {
	header := "direction,frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,signed,factor,offset,min,max,default\n"
	cases := map[string]string{
		"missing column": "direction,frame_id\ntx,1\n",
		"bad direction":  header + "up,0x1,A,10,1,s,0,8,false,1,0,0,1,0\n",
		"bad number":     header + "tx,0x1,A,ten,1,s,0,8,false,1,0,0,1,0\n",
		"zero factor":    header + "tx,0x1,A,10,1,s,0,8,false,0,0,0,1,0\n",
		"too wide":       header + "tx,0x1,A,10,1,s,4,8,false,1,0,0,1,0\n",
		"dlc mismatch":   header + "tx,0x1,A,10,1,s,0,8,false,1,0,0,1,0\ntx,0x1,A,10,2,t,8,8,false,1,0,0,1,0\n",
		"dup signal":     header + "tx,0x1,A,10,2,s,0,8,false,1,0,0,1,0\ntx,0x1,A,10,2,s,8,8,false,1,0,0,1,0\n",
		"dup name":       header + "tx,0x1,A,10,1,s,0,8,false,1,0,0,1,0\ntx,0x2,A,10,1,s,0,8,false,1,0,0,1,0\n",
	}
	for name, csv := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSignalMap(strings.NewReader(csv)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
