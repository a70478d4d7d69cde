package vad

import (
	"math"
	"testing"
)

func TestEnhancer_PeakNormalization(t *testing.T) {
	e := &Enhancer{}
	out := e.Process([]float32{0.95, -0.475})
	if math.Abs(float64(out[0])-0.9) > 1e-6 {
		t.Errorf("out[0] = %v; want 0.9", out[0])
	}
	if math.Abs(float64(out[1])+0.45) > 1e-6 {
		t.Errorf("out[1] = %v; want -0.45", out[1])
	}
}

func TestEnhancer_QuietChunkPassesThrough(t *testing.T) {
	e := &Enhancer{}
	// Seed the noise floor with a loud chunk.
	e.Process([]float32{0.95, -0.475})

	in := []float32{0.01, -0.01}
	out := e.Process(in)
	if out[0] != 0.01 || out[1] != -0.01 {
		t.Errorf("quiet chunk modified: %v", out)
	}
}

func TestEnhancer_BelowPeakUnchanged(t *testing.T) {
	e := &Enhancer{}
	out := e.Process([]float32{0.2, -0.1})
	if math.Abs(float64(out[0])-0.2) > 1e-6 || math.Abs(float64(out[1])+0.1) > 1e-6 {
		t.Errorf("chunk under 0.9 peak modified: %v", out)
	}
}

func TestEnhancer_Reset(t *testing.T) {
	e := &Enhancer{}
	e.Process([]float32{0.95, -0.475})
	e.Reset()

	// After a reset the floor reseeds, so a quiet chunk is no longer
	// below half the floor and goes through normalization untouched.
	out := e.Process([]float32{0.01, -0.01})
	if out[0] != 0.01 {
		t.Errorf("out[0] = %v; want 0.01", out[0])
	}

	if got := e.Process(nil); len(got) != 0 {
		t.Errorf("Process(nil) = %v; want empty", got)
	}
}
