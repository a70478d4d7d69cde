package vad

import (
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/haivivi/giztalk/go/pkg/buffer"
)

// Options configure a Segmenter.
type Options struct {
	Thresholds Thresholds

	// PreBufferMs is the pre-roll window carried into a new utterance.
	// Default 500.
	PreBufferMs int

	// TailKeepMs is how much trailing silence an utterance keeps after
	// the tail trim. Default 300.
	TailKeepMs int

	// Enhance enables the gain normalizer in front of the model.
	Enhance bool

	// Now is the clock, replaceable in tests. Default time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Segmenter is the per-session utterance state machine. It is owned by a
// single goroutine and is not safe for concurrent use.
type Segmenter struct {
	model Model
	enh   *Enhancer
	now   func() time.Time
	log   *slog.Logger

	th         Thresholds
	tailKeepMs int

	speaking     bool
	silenceStart time.Time
	consecSpeech int
	// silenceFrames counts trailing silent chunks appended to the capture
	// since the last confirmed speech, so the tail trim knows how many to
	// pop.
	silenceFrames int
	totalMs       int
	avgEnergy     float64
	frameCount    int

	state []float32

	preRoll *buffer.ChunkRing
	pcm     [][]byte
	opus    [][]byte

	accum     []byte
	lastAccum time.Time
}

// New creates a Segmenter scoring chunks with model. The model must not be
// nil.
func New(model Model, opts Options) *Segmenter {
	if opts.PreBufferMs <= 0 {
		opts.PreBufferMs = 500
	}
	if opts.TailKeepMs <= 0 {
		opts.TailKeepMs = 300
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	g := &Segmenter{
		model:      model,
		now:        opts.Now,
		log:        opts.Logger,
		th:         opts.Thresholds.withDefaults(),
		tailKeepMs: opts.TailKeepMs,
		state:      make([]float32, StateSize),
		preRoll:    buffer.NewChunkRing(opts.PreBufferMs * bytesPerMs),
	}
	if opts.Enhance {
		g.enh = &Enhancer{}
	}
	g.lastAccum = g.now()
	return g
}

// Process feeds one chunk through the state machine. opusFrame is the raw
// encoded frame the chunk was decoded from; pass nil when there is none.
// An empty pcm chunk (a dropped frame) is a no-op.
func (g *Segmenter) Process(opusFrame, pcm []byte) Result {
	if len(pcm) == 0 {
		return Result{Status: NoSpeech}
	}

	samples := pcmToFloats(pcm)
	chunk := pcm
	if g.enh != nil {
		samples = g.enh.Process(samples)
		chunk = floatsToPCM(samples)
	}

	energy := meanAbs(samples)
	prob := g.detect(samples)
	g.frameCount++
	if !g.speaking {
		g.preRoll.Push(chunk)
	}

	// Chunks well below a model window accumulate until there is enough
	// signal to score, or until the accumulator has sat stale too long.
	if len(chunk) < minChunkBytes && !g.speaking {
		stale := g.now().Sub(g.lastAccum) > accumFlushAfter
		g.accum = append(g.accum, chunk...)
		g.lastAccum = g.now()
		if len(g.accum) < minChunkBytes && !stale {
			return Result{Status: NoSpeech}
		}
		chunk = g.accum
		g.accum = nil
		samples = pcmToFloats(chunk)
		if g.enh != nil {
			samples = g.enh.Process(samples)
			chunk = floatsToPCM(samples)
		}
		energy = meanAbs(samples)
		prob = g.detect(samples)
	}

	frameMs := len(pcm) / bytesPerMs

	var isSpeech, hasEnergy bool
	if g.frameCount < onsetGraceFrames {
		hasEnergy = energy > g.th.Energy*0.3
		isSpeech = float64(prob) > g.th.Speech*0.6 && hasEnergy
	} else {
		hasEnergy = energy > g.th.Energy
		isSpeech = float64(prob) > g.th.Speech && hasEnergy
	}
	isSilence := float64(prob) < g.th.Silence ||
		(float64(prob) < g.th.Speech && !hasEnergy) ||
		energy < g.th.Energy

	g.updateEnergy(energy, isSilence)
	g.updateSilence(isSilence, frameMs)
	g.log.Debug("vad chunk",
		"prob", prob, "energy", energy, "avg_energy", g.avgEnergy,
		"speaking", g.speaking)

	if !g.speaking && isSpeech {
		g.pcm = g.pcm[:0]
		g.opus = g.opus[:0]
		g.setSpeaking(true)
		g.silenceFrames = 0
		g.accum = nil
		g.lastAccum = g.now()
		data := g.preRoll.Bytes()
		g.preRoll.Reset()
		if len(data) == 0 {
			data = chunk
		}
		g.appendCapture(data, opusFrame)
		return Result{Status: SpeechStart, Data: data}
	}

	if g.speaking && isSilence {
		silence := g.now().Sub(g.silenceStart)
		if !g.silenceStart.IsZero() && silence > g.th.SilenceTimeout {
			g.setSpeaking(false)
			g.trimTail(int(silence.Milliseconds()))
			g.silenceFrames = 0
			if g.enh != nil {
				g.enh.Reset()
			}
			g.state = make([]float32, StateSize)
			g.accum = nil
			g.lastAccum = g.now()
			return Result{Status: SpeechEnd, Data: chunk}
		}
		g.appendCapture(chunk, opusFrame)
		g.silenceFrames++
		return Result{Status: SpeechContinue, Data: chunk}
	}

	if g.speaking {
		g.appendCapture(chunk, opusFrame)
		g.silenceFrames = 0
		return Result{Status: SpeechContinue, Data: chunk}
	}

	return Result{Status: NoSpeech}
}

// PCM returns the captured utterance as decoded chunks, oldest first.
func (g *Segmenter) PCM() [][]byte {
	out := make([][]byte, len(g.pcm))
	copy(out, g.pcm)
	return out
}

// Opus returns the raw frames matching the captured utterance.
func (g *Segmenter) Opus() [][]byte {
	out := make([][]byte, len(g.opus))
	copy(out, g.opus)
	return out
}

// Duration returns the total audio observed since the last Reset.
func (g *Segmenter) Duration() time.Duration {
	return time.Duration(g.totalMs) * time.Millisecond
}

// Speaking reports whether an utterance is open.
func (g *Segmenter) Speaking() bool {
	return g.speaking
}

// Reset returns the Segmenter to its initial state, dropping all captured
// audio and the model state.
func (g *Segmenter) Reset() {
	g.speaking = false
	g.silenceStart = time.Time{}
	g.consecSpeech = 0
	g.silenceFrames = 0
	g.totalMs = 0
	g.avgEnergy = 0
	g.frameCount = 0
	g.state = make([]float32, StateSize)
	g.preRoll.Reset()
	g.pcm = nil
	g.opus = nil
	g.accum = nil
	g.lastAccum = g.now()
	if g.enh != nil {
		g.enh.Reset()
	}
}

func (g *Segmenter) appendCapture(pcm, opusFrame []byte) {
	if len(pcm) > 0 {
		cp := make([]byte, len(pcm))
		copy(cp, pcm)
		g.pcm = append(g.pcm, cp)
	}
	if len(opusFrame) > 0 {
		cp := make([]byte, len(opusFrame))
		copy(cp, opusFrame)
		g.opus = append(g.opus, cp)
	}
}

func (g *Segmenter) setSpeaking(speaking bool) {
	g.speaking = speaking
	if speaking {
		g.silenceStart = time.Time{}
	} else if g.silenceStart.IsZero() {
		g.silenceStart = g.now()
	}
}

func (g *Segmenter) updateSilence(silent bool, frameMs int) {
	g.totalMs += frameMs
	if silent {
		g.consecSpeech = 0
		if g.silenceStart.IsZero() {
			g.silenceStart = g.now()
		}
		return
	}
	g.consecSpeech++
	// A lone speech-ish chunk inside a pause is noise; two in a row
	// restart the silence clock.
	if g.consecSpeech >= 2 {
		g.silenceStart = time.Time{}
		g.silenceFrames = 0
	}
}

func (g *Segmenter) updateEnergy(energy float64, silent bool) {
	if g.avgEnergy == 0 {
		g.avgEnergy = energy
		return
	}
	smoothing := 0.95
	if silent {
		smoothing = 0.85
	}
	g.avgEnergy = smoothing*g.avgEnergy + (1-smoothing)*energy
}

// trimTail pops trailing silent chunks so that about tailKeepMs of silence
// remains on the captured utterance.
func (g *Segmenter) trimTail(silenceMs int) {
	toRemove := silenceMs - g.tailKeepMs
	if toRemove <= 0 || g.silenceFrames == 0 || silenceMs == 0 {
		return
	}
	frames := (g.silenceFrames*toRemove + silenceMs - 1) / silenceMs
	if frames > g.silenceFrames {
		frames = g.silenceFrames
	}
	for i := 0; i < frames; i++ {
		if len(g.pcm) > 0 {
			g.pcm = g.pcm[:len(g.pcm)-1]
		}
		if len(g.opus) > 0 {
			g.opus = g.opus[:len(g.opus)-1]
		}
	}
}

// detect scores samples against the model. Short chunks are zero-padded to
// one window; long chunks slide a half-overlapping window and keep the
// highest probability. Model failures score as silence.
func (g *Segmenter) detect(samples []float32) float32 {
	switch {
	case len(samples) == 0:
		return 0
	case len(samples) == WindowSamples:
		return g.infer(samples)
	case len(samples) < WindowSamples:
		win := make([]float32, WindowSamples)
		copy(win, samples)
		return g.infer(win)
	default:
		var maxProb float32
		step := WindowSamples / 2
		for off := 0; off+WindowSamples <= len(samples); off += step {
			if p := g.infer(samples[off : off+WindowSamples]); p > maxProb {
				maxProb = p
			}
		}
		return maxProb
	}
}

func (g *Segmenter) infer(win []float32) float32 {
	prob, next, err := g.model.Infer(win, g.state)
	if err != nil {
		g.log.Warn("vad inference failed", "err", err)
		return 0
	}
	if len(next) == StateSize {
		g.state = next
	}
	if prob > 1 {
		prob = 1
	}
	return prob
}

func pcmToFloats(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

func floatsToPCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(f*32767.0)))
	}
	return out
}

func meanAbs(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, f := range samples {
		if f < 0 {
			sum -= float64(f)
		} else {
			sum += float64(f)
		}
	}
	return sum / float64(len(samples))
}
