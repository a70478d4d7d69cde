// Package speech adapts speech providers to the dialogue pipeline.
//
// Two contracts: a [Recognizer] turns an utterance into text, a
// [Synthesizer] turns one sentence into an audio file. Providers register
// on a [Mux] by name; a [Factory] resolves the provider named by a role's
// model configuration, caches the built adapter, and guarantees a default
// on both sides (the offline vosk recognizer and the edge synthesizer), so
// the pipeline always has something to speak with.
package speech

import (
	"context"
	"errors"
	"time"

	"github.com/haivivi/giztalk/go/pkg/buffer"
)

// StreamTimeout bounds one streaming recognition from first chunk to
// final transcript.
const StreamTimeout = 90 * time.Second

// ErrNoProvider is returned by a Mux when no provider is registered under
// the requested name.
var ErrNoProvider = errors.New("speech: no such provider")

// Recognizer converts one captured utterance to text.
//
// Recognize is the batch form over a complete PCM buffer (16 kHz mono
// 16-bit). RecognizeStream consumes chunks as the utterance is still being
// spoken and returns the final transcript once the stream is closed for
// writing or the provider reports a terminal result. Both return an empty
// string with nil error when the audio contains no recognizable speech.
type Recognizer interface {
	Recognize(ctx context.Context, pcm []byte) (string, error)
	RecognizeStream(ctx context.Context, stream *buffer.ByteStream) (string, error)
}

// Synthesizer converts one sentence of text into an audio file and returns
// its absolute path. The file is 16 kHz mono 16-bit WAV regardless of the
// provider's native container.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// SynthesizeFunc adapts a function to the Synthesizer interface.
type SynthesizeFunc func(ctx context.Context, text string) (string, error)

// Synthesize calls the underlying function.
func (f SynthesizeFunc) Synthesize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Voice is the provider-neutral rendering of a role's voice settings.
// Pitch and Speed are centered at 1.0 with nominal range [0.5, 2.0];
// providers map them to their native scales.
type Voice struct {
	Name  string
	Pitch float64
	Speed float64
}

func (v Voice) withDefaults() Voice {
	if v.Pitch == 0 {
		v.Pitch = 1.0
	}
	if v.Speed == 0 {
		v.Speed = 1.0
	}
	return v
}

// batchOverStream implements streaming recognition for providers that only
// have a batch call: buffer the whole utterance, then recognize once.
func batchOverStream(ctx context.Context, r Recognizer, stream *buffer.ByteStream) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, StreamTimeout)
	defer cancel()

	done := make(chan struct{})
	var pcm []byte
	var readErr error
	go func() {
		defer close(done)
		pcm, readErr = stream.ReadAll()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		stream.CloseWithError(ctx.Err())
		<-done
	}
	if readErr != nil {
		return "", readErr
	}
	if len(pcm) == 0 {
		return "", nil
	}
	return r.Recognize(ctx, pcm)
}
