// Package vad segments a decoded microphone stream into utterances.
//
// A Segmenter consumes PCM chunks (16 kHz mono 16-bit), scores each with a
// recurrent speech model, and walks an Idle/Speaking state machine. Speech
// onset drains a pre-roll ring so the utterance keeps the syllables spoken
// just before the trigger; sustained silence closes the utterance and trims
// the trailing silence down to a configured tail. The raw Opus frames flow
// in alongside the decoded PCM so both encodings of the utterance are
// captured for recognition and archival.
package vad

import (
	"time"
)

const (
	// WindowSamples is the model input size in samples.
	WindowSamples = 512

	// StateSize is the flattened recurrent state length (2 x 1 x 128).
	StateSize = 256

	// bytesPerMs for 16 kHz mono 16-bit PCM.
	bytesPerMs = 32

	// minChunkBytes is the smallest chunk worth scoring on its own.
	// Shorter chunks accumulate until they reach it.
	minChunkBytes = 960

	// onsetGraceFrames is how many initial frames run with softened
	// thresholds so a hot mic start is not missed.
	onsetGraceFrames = 10

	// accumFlushAfter flushes a stale small-chunk accumulator when the
	// next chunk arrives after this long.
	accumFlushAfter = 300 * time.Millisecond
)

// Model scores a fixed window of samples for speech. Implementations hold
// no per-stream state; the caller threads state between calls so a single
// model can serve many sessions.
type Model interface {
	// Infer returns the speech probability for exactly WindowSamples
	// samples given the previous recurrent state, plus the next state.
	Infer(samples, state []float32) (prob float32, next []float32, err error)
}

// Status is the per-chunk outcome of the segmenter state machine.
type Status int

const (
	NoSpeech Status = iota
	SpeechStart
	SpeechContinue
	SpeechEnd
)

func (s Status) String() string {
	switch s {
	case NoSpeech:
		return "NO_SPEECH"
	case SpeechStart:
		return "SPEECH_START"
	case SpeechContinue:
		return "SPEECH_CONTINUE"
	case SpeechEnd:
		return "SPEECH_END"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of processing one chunk.
type Result struct {
	Status Status

	// Data carries the audio attached to the event: the drained pre-roll
	// for SpeechStart, the current chunk while speech continues or ends.
	Data []byte
}

// Active reports whether the chunk belongs to a live utterance.
func (r Result) Active() bool {
	return r.Status == SpeechStart || r.Status == SpeechContinue
}

// End reports whether the chunk closed an utterance.
func (r Result) End() bool {
	return r.Status == SpeechEnd
}

// Thresholds tune the speech decision. Zero fields fall back to the
// defaults, which suit a near-field toy microphone.
type Thresholds struct {
	// Speech is the probability above which a chunk counts as speech.
	Speech float64

	// Silence is the probability below which a chunk counts as silence.
	Silence float64

	// Energy is the mean-absolute-amplitude floor; chunks quieter than
	// this are silence no matter what the model says.
	Energy float64

	// SilenceTimeout is how long silence must last before the utterance
	// closes.
	SilenceTimeout time.Duration
}

// DefaultThresholds are the stock values used when a role sets none.
var DefaultThresholds = Thresholds{
	Speech:         0.4,
	Silence:        0.3,
	Energy:         0.001,
	SilenceTimeout: 800 * time.Millisecond,
}

func (t Thresholds) withDefaults() Thresholds {
	if t.Speech == 0 {
		t.Speech = DefaultThresholds.Speech
	}
	if t.Silence == 0 {
		t.Silence = DefaultThresholds.Silence
	}
	if t.Energy == 0 {
		t.Energy = DefaultThresholds.Energy
	}
	if t.SilenceTimeout == 0 {
		t.SilenceTimeout = DefaultThresholds.SilenceTimeout
	}
	return t
}
