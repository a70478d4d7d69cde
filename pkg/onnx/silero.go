package onnx

import (
	"fmt"
	"os"

	"github.com/haivivi/giztalk/go/pkg/vad"
)

const (
	sileroWindow     = 512
	sileroStateLen   = 256
	sileroSampleRate = 16000
)

// Silero runs the Silero voice-activity model and satisfies the
// segmenter's model contract. One instance serves every session: Infer is
// safe for concurrent use and all per-stream state is threaded by the
// caller.
type Silero struct {
	env     *Env
	session *Session
}

var _ vad.Model = (*Silero)(nil)

// LoadSilero loads the Silero VAD ONNX model from path.
func LoadSilero(path string) (*Silero, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: read silero model: %w", err)
	}
	return NewSilero(data)
}

// NewSilero creates a Silero model from raw ONNX bytes.
func NewSilero(modelData []byte) (*Silero, error) {
	env, err := NewEnv("silero-vad")
	if err != nil {
		return nil, err
	}
	session, err := env.NewSession(modelData)
	if err != nil {
		env.Close()
		return nil, err
	}
	return &Silero{env: env, session: session}, nil
}

// Infer scores one 512-sample window. state is the flattened 2x1x128
// recurrent state from the previous call, or zeros for a fresh stream; the
// returned next state is passed back in on the following call.
func (s *Silero) Infer(samples, state []float32) (float32, []float32, error) {
	if len(samples) != sileroWindow {
		return 0, nil, fmt.Errorf("onnx: silero window must be %d samples, got %d", sileroWindow, len(samples))
	}
	if len(state) != sileroStateLen {
		return 0, nil, fmt.Errorf("onnx: silero state must be %d floats, got %d", sileroStateLen, len(state))
	}

	input, err := NewTensor([]int64{1, sileroWindow}, samples)
	if err != nil {
		return 0, nil, err
	}
	defer input.Close()

	st, err := NewTensor([]int64{2, 1, 128}, state)
	if err != nil {
		return 0, nil, err
	}
	defer st.Close()

	sr, err := NewInt64Tensor([]int64{1}, []int64{sileroSampleRate})
	if err != nil {
		return 0, nil, err
	}
	defer sr.Close()

	outputs, err := s.session.Run(
		[]string{"input", "state", "sr"},
		[]*Tensor{input, st, sr},
		[]string{"output", "stateN"},
	)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		for _, o := range outputs {
			o.Close()
		}
	}()

	probs, err := outputs[0].FloatData()
	if err != nil {
		return 0, nil, err
	}
	if len(probs) == 0 {
		return 0, nil, fmt.Errorf("onnx: silero produced no output")
	}
	next, err := outputs[1].FloatData()
	if err != nil {
		return 0, nil, err
	}
	return probs[0], next, nil
}

// Close releases the session and environment.
func (s *Silero) Close() error {
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	if s.env != nil {
		s.env.Close()
		s.env = nil
	}
	return nil
}
