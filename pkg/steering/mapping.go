package steering

// MapChannel maps the steering channel to a target in turns. Channels
// below the dead band steer towards +|min-zero|, above it towards
// -|min-zero|. The result is clamped to [min, max].
func MapChannel(ch uint16, m ChannelMap, zero, min, max float32) float32 {
	maxOffset := abs32(min - zero)
	var offset float32
	switch {
	case ch < m.DeadLow:
		offset = maxOffset * float32(m.DeadLow-ch) / float32(m.DeadLow-m.Low)
	case ch > m.DeadHigh:
		offset = -maxOffset * float32(ch-m.DeadHigh) / float32(m.High-m.DeadHigh)
	}
	return Clamp(zero+offset, min, max)
}

// Clamp limits v to [min, max].
func Clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
