package utils

import (
	"strings"
	"testing"
)

const rigMapCSV = `direction,frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment
tx,0x210,HELI_ACTUATOR_CMD,10,6,main_duty_pct,0,8,little,false,1,0,0,100,0,pct,
tx,0x210,HELI_ACTUATOR_CMD,10,6,tail_duty_pct,8,8,little,false,1,0,0,100,0,pct,
tx,0x210,HELI_ACTUATOR_CMD,10,6,main_freq_hz,16,16,little,false,1,0,0,65535,200,Hz,
tx,0x210,HELI_ACTUATOR_CMD,10,6,tail_freq_hz,32,16,little,false,1,0,0,65535,200,Hz,
rx,0x310,HELI_SENSOR_STATE,10,6,height_pct,0,16,little,true,1,0,-32768,32767,0,pct,
rx,0x310,HELI_SENSOR_STATE,10,6,yaw_slots,16,32,little,true,1,0,-2147483648,2147483647,0,slots,
`

func mustRigMap(t *testing.T) *SignalMap {
	t.Helper()
	m, err := ParseSignalMap(strings.NewReader(rigMapCSV))
	if err != nil {
		t.Fatalf("parse rig map: %v", err)
	}
	return m
}
