package vad

// Enhancer applies a light gain normalization in front of the model: it
// tracks a noise floor, leaves quiet chunks untouched, and scales loud
// chunks so their peak stays at 0.9. Heavier processing hurts the model
// more than it helps on toy microphones.
type Enhancer struct {
	noiseFloor float64
}

// Reset clears the tracked noise floor.
func (e *Enhancer) Reset() {
	e.noiseFloor = 0
}

// Process returns the normalized samples. The input slice is not modified.
func (e *Enhancer) Process(samples []float32) []float32 {
	if len(samples) == 0 {
		return samples
	}
	energy := meanAbs(samples)
	if e.noiseFloor == 0 {
		e.noiseFloor = energy
	}
	if energy < e.noiseFloor*0.5 {
		return samples
	}

	var peak float32
	for _, f := range samples {
		if f < 0 {
			f = -f
		}
		if f > peak {
			peak = f
		}
	}
	if peak <= 1e-6 {
		return samples
	}
	target := peak
	if target > 0.9 {
		target = 0.9
	}
	scale := target / peak
	out := make([]float32, len(samples))
	for i, f := range samples {
		out[i] = f * scale
	}
	return out
}
