package traction

// ThrottleToRPM maps a throttle channel value to RPM. The dead band
// around neutral maps to exactly 0, outside it the map is linear up to
// the full scale channels and saturates beyond.
func ThrottleToRPM(ch float32, c Config) float32 {
	fwd := float32(c.Neutral + c.Deadband)
	rev := float32(c.Neutral - c.Deadband)
	switch {
	case ch > fwd:
		rpm := (ch - fwd) / (float32(c.ForwardFull) - fwd) * c.MaxRPM
		if rpm > c.MaxRPM {
			rpm = c.MaxRPM
		}
		return rpm
	case ch < rev:
		rpm := -(rev - ch) / (rev - float32(c.ReverseFull)) * c.MaxRPM
		if rpm < -c.MaxRPM {
			rpm = -c.MaxRPM
		}
		return rpm
	}
	return 0
}

// PercentToRPM maps a throttle percentage in [-100, 100] to RPM.
func PercentToRPM(pct float32, c Config) float32 {
	if pct > 100 {
		pct = 100
	} else if pct < -100 {
		pct = -100
	}
	return pct / 100 * c.MaxRPM
}

// Smoother is a trailing average over a FIFO indexed window.
type Smoother struct {
	samples []float32
	idx     int
	n       int
}

// NewSmoother creates a Smoother of size samples.
func NewSmoother(size int) *Smoother {
	if size < 1 {
		size = 1
	}
	return &Smoother{samples: make([]float32, size)}
}

// Add adds a sample and returns the average of the window.
func (s *Smoother) Add(v float32) float32 {
	s.samples[s.idx] = v
	s.idx = (s.idx + 1) % len(s.samples)
	if s.n < len(s.samples) {
		s.n++
	}
	var sum float32
	for i := 0; i < s.n; i++ {
		sum += s.samples[i]
	}
	return sum / float32(s.n)
}

// Reset empties the window.
func (s *Smoother) Reset() {
	s.idx, s.n = 0, 0
}
