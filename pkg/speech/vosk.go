package speech

import (
	"context"
	"fmt"
	"sync"

	"github.com/haivivi/giztalk/go/pkg/buffer"
	"github.com/haivivi/giztalk/go/pkg/vosk"
)

// VoskRecognizer is the default offline recognizer. It shares one loaded
// acoustic model across all sessions and spins up a short-lived vosk
// recognizer per utterance. Needs no network, keys, or quota, which is what
// makes it the recognizer of last resort.
type VoskRecognizer struct {
	model *vosk.Model
	rate  int

	// vosk recognizers are cheap but not free; serialize creation so a
	// burst of sessions does not thrash the model.
	mu sync.Mutex
}

var _ Recognizer = (*VoskRecognizer)(nil)

// NewVoskRecognizer loads the model at path for 16 kHz input.
func NewVoskRecognizer(path string) (*VoskRecognizer, error) {
	model, err := vosk.NewModel(path)
	if err != nil {
		return nil, fmt.Errorf("speech: load vosk model: %w", err)
	}
	return &VoskRecognizer{model: model, rate: 16000}, nil
}

// Recognize decodes one complete utterance.
func (r *VoskRecognizer) Recognize(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	r.mu.Lock()
	rec, err := vosk.NewRecognizer(r.model, r.rate)
	r.mu.Unlock()
	if err != nil {
		return "", err
	}
	defer rec.Close()

	if _, err := rec.AcceptWaveform(pcm); err != nil {
		return "", err
	}
	return rec.FinalResult(), nil
}

// RecognizeStream feeds chunks into the decoder as they arrive and flushes
// when the stream closes.
func (r *VoskRecognizer) RecognizeStream(ctx context.Context, stream *buffer.ByteStream) (string, error) {
	r.mu.Lock()
	rec, err := vosk.NewRecognizer(r.model, r.rate)
	r.mu.Unlock()
	if err != nil {
		return "", err
	}
	defer rec.Close()

	ctx, cancel := context.WithTimeout(ctx, StreamTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			stream.CloseWithError(ctx.Err())
			return rec.FinalResult(), nil
		default:
		}
		chunk, err := stream.Next()
		if err != nil {
			// Closed for writing (end of utterance) or aborted; either way
			// the transcript is whatever the decoder has.
			return rec.FinalResult(), nil
		}
		if _, err := rec.AcceptWaveform(chunk); err != nil {
			return "", err
		}
	}
}

// Close releases the acoustic model.
func (r *VoskRecognizer) Close() {
	r.model.Close()
}
