package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var requiredColumns = []string{
	"direction", "frame_id", "frame_name", "cycle_ms", "dlc",
	"signal_name", "start_bit", "bit_length", "signed",
	"factor", "offset", "min", "max", "default",
}

// LoadSignalMap reads a CAN map CSV from disk
func LoadSignalMap(csvPath string) (*SignalMap, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ParseSignalMap(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", csvPath, err)
	}
	return m, nil
}

// ParseSignalMap reads one signal per CSV row. Rows sharing a frame_id build
// up one frame. Only little-endian signals are supported.
func ParseSignalMap(r io.Reader) (*SignalMap, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range requiredColumns {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("can map missing required column: %q", k)
		}
	}

	m := &SignalMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}

	rowNum := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rowNum++

		row := csvRow{rec: rec, idx: idx}
		frameID := row.asUint32("frame_id")
		frameName := row.str("frame_name")
		direction := strings.ToLower(row.str("direction"))
		cycleMS := row.asInt("cycle_ms")
		dlc := row.asInt("dlc")

		sig := SignalDef{
			Name:      row.str("signal_name"),
			StartBit:  row.asInt("start_bit"),
			BitLength: row.asInt("bit_length"),
			Signed:    row.asBool("signed"),
			Factor:    row.asFloat("factor"),
			Offset:    row.asFloat("offset"),
			Min:       row.asFloat("min"),
			Max:       row.asFloat("max"),
			Default:   row.asFloat("default"),
			Unit:      row.str("unit"),
			Comment:   row.str("comment"),
		}
		if row.err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, row.err)
		}

		if e := row.str("endianness"); e != "" && e != "little" {
			return nil, fmt.Errorf("frame %s signal %s: unsupported endianness %q (only little supported)",
				frameName, sig.Name, e)
		}
		if direction != DirectionTX && direction != DirectionRX {
			return nil, fmt.Errorf("frame %s: invalid direction %q", frameName, direction)
		}
		if sig.BitLength <= 0 || sig.BitLength > 64 || sig.StartBit < 0 || sig.StartBit+sig.BitLength > 64 {
			return nil, fmt.Errorf("frame %s signal %s: invalid bit range %d+%d", frameName, sig.Name, sig.StartBit, sig.BitLength)
		}
		if sig.Factor == 0 {
			return nil, fmt.Errorf("frame %s signal %s: factor must be non-zero", frameName, sig.Name)
		}
		if dlc <= 0 || dlc > 8 {
			return nil, fmt.Errorf("frame %s (0x%X): invalid dlc %d", frameName, frameID, dlc)
		}
		if sig.StartBit+sig.BitLength > dlc*8 {
			return nil, fmt.Errorf("frame %s signal %s: does not fit in %d bytes", frameName, sig.Name, dlc)
		}

		fd, ok := m.ByID[frameID]
		if !ok {
			if _, dup := m.ByName[frameName]; dup {
				return nil, fmt.Errorf("frame name %s used by two ids", frameName)
			}
			fd = &FrameDef{
				ID:        frameID,
				Name:      frameName,
				DLC:       dlc,
				Direction: direction,
				CycleMS:   cycleMS,
			}
			m.ByID[frameID] = fd
			m.ByName[frameName] = fd
		}

		if fd.DLC != dlc {
			return nil, fmt.Errorf("frame %s (0x%X) has inconsistent DLC (%d vs %d)", frameName, frameID, fd.DLC, dlc)
		}
		if _, dup := fd.Signal(sig.Name); dup {
			return nil, fmt.Errorf("frame %s: duplicate signal %s", frameName, sig.Name)
		}

		fd.Signals = append(fd.Signals, sig)
	}

	for _, fd := range m.ByID {
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
	}

	return m, nil
}

func (m *SignalMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.ByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, m.FrameNames())
	}
	return fd, nil
}

func (m *SignalMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.ByID[id]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X", id)
	}
	return fd, nil
}

// csvRow keeps the first conversion error so a row can be parsed in one pass
type csvRow struct {
	rec []string
	idx map[string]int
	err error
}

func (r *csvRow) str(col string) string {
	i, ok := r.idx[col]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r *csvRow) fail(col, v string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("column %s: invalid value %q: %w", col, v, err)
	}
}

func (r *csvRow) asInt(col string) int {
	s := r.str(col)
	v, err := strconv.Atoi(s)
	if err != nil {
		r.fail(col, s, err)
	}
	return v
}

func (r *csvRow) asFloat(col string) float64 {
	s := r.str(col)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(col, s, err)
	}
	return v
}

func (r *csvRow) asBool(col string) bool {
	switch strings.ToLower(r.str(col)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func (r *csvRow) asUint32(col string) uint32 {
	s := r.str(col)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	u, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		r.fail(col, s, err)
	}
	return uint32(u)
}
