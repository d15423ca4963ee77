package utils

func bitMask(bitLen int) uint64 {
	if bitLen >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bitLen) - 1
}

func getBits(payload uint64, startBit, bitLen int) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return 0
	}
	return (payload >> startBit) & bitMask(bitLen)
}

func setBits(payload uint64, startBit, bitLen int, value uint64) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return payload
	}
	mask := bitMask(bitLen)
	payload &^= mask << startBit
	payload |= (value & mask) << startBit
	return payload
}

// signExtend interprets the low bitLen bits of u as two's complement
func signExtend(u uint64, bitLen int, signed bool) int64 {
	if !signed || bitLen >= 64 {
		return int64(u)
	}
	if u&(uint64(1)<<(bitLen-1)) == 0 {
		return int64(u)
	}
	return int64(u | ^bitMask(bitLen))
}

// clampRaw saturates raw to what bitLen bits can hold
func clampRaw(raw int64, bitLen int, signed bool) int64 {
	if bitLen <= 0 || bitLen > 63 {
		return raw
	}
	if !signed {
		max := int64(bitMask(bitLen))
		if raw < 0 {
			return 0
		}
		if raw > max {
			return max
		}
		return raw
	}
	min := -int64(1) << (bitLen - 1)
	max := int64(1)<<(bitLen-1) - 1
	if raw < min {
		return min
	}
	if raw > max {
		return max
	}
	return raw
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
