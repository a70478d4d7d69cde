package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/giztalk/go/pkg/buffer"
	"github.com/haivivi/giztalk/go/pkg/llm"
	"github.com/haivivi/giztalk/go/pkg/sentence"
	"github.com/haivivi/giztalk/go/pkg/session"
	"github.com/haivivi/giztalk/go/pkg/speech"
	"github.com/haivivi/giztalk/go/pkg/wire"
)

const (
	// fallbackText is spoken when the token stream dies mid-turn.
	fallbackText = "抱歉，我在处理您的请求时遇到问题。"

	// DefaultTtsMaxRetry and DefaultTtsRetryDelay bound per-sentence
	// synthesis retries.
	DefaultTtsMaxRetry   = 1
	DefaultTtsRetryDelay = time.Second

	popIdle = 60 * time.Millisecond
)

// SynthesizerOptions configure a Synthesizer.
type SynthesizerOptions struct {
	Session *session.Session
	TTS     speech.Synthesizer
	Logger  *slog.Logger

	// MaxRetry and RetryDelay override the defaults when positive.
	MaxRetry   int
	RetryDelay time.Duration

	// Timeout bounds each provider call. Zero leaves only the provider
	// client's own deadline.
	Timeout time.Duration

	// MaxConcurrent bounds in-flight provider calls for this turn.
	// Sentences still reach the player in cut order. Zero or one keeps
	// synthesis serial.
	MaxConcurrent int

	// Sleep replaces time.Sleep in tests.
	Sleep func(time.Duration)
}

// Synthesizer turns the token stream of one model reply into synthesized
// sentences and hands them to the Player in cut order.
//
// Two goroutines: the feeder reads tokens through the sentencer, the
// worker pops sentences and calls TTS. Results of a superseded turn are
// dropped by the session ownership check, so an abort never has to wait
// for an in-flight provider call.
type Synthesizer struct {
	sess       *session.Session
	tts        speech.Synthesizer
	player     *Player
	log        *slog.Logger
	maxRetry   int
	retryDelay time.Duration
	timeout    time.Duration
	maxConc    int
	sleep      func(time.Duration)

	mu    sync.Mutex
	queue []*sentence.Sentence

	aborted atomic.Bool
	last    atomic.Bool
	done    atomic.Bool
	running atomic.Bool
}

// NewSynthesizer creates a Synthesizer. Attach its Player with
// AttachPlayer before feeding it.
func NewSynthesizer(opts SynthesizerOptions) *Synthesizer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = DefaultTtsMaxRetry
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultTtsRetryDelay
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Synthesizer{
		sess:       opts.Session,
		tts:        opts.TTS,
		log:        opts.Logger.With("session", opts.Session.ID),
		maxRetry:   opts.MaxRetry,
		retryDelay: opts.RetryDelay,
		timeout:    opts.Timeout,
		maxConc:    opts.MaxConcurrent,
		sleep:      opts.Sleep,
	}
}

// AttachPlayer binds the downstream player.
func (y *Synthesizer) AttachPlayer(p *Player) {
	y.player = p
}

// Append enqueues one sentence of reply text and wakes the worker.
func (y *Synthesizer) Append(text string) {
	if y.aborted.Load() || text == "" {
		return
	}
	s := sentence.New(text)
	s.AssistantTimeMs = y.sess.AssistantTimeMs()
	y.mu.Lock()
	y.queue = append(y.queue, s)
	y.mu.Unlock()
	if y.running.CompareAndSwap(false, true) {
		go y.work()
	}
}

// SetLast marks the reply complete; the worker exits once the queue is
// empty.
func (y *Synthesizer) SetLast() {
	y.last.Store(true)
	// A reply that produced no sentences still needs the worker to run so
	// the player observes the turn ending.
	if y.running.CompareAndSwap(false, true) {
		go y.work()
	}
}

// StartSynthesis spawns the feeder reading the model's token stream
// through the sentencer. A stream error on a live turn speaks the
// fallback sentence instead of going silent.
func (y *Synthesizer) StartSynthesis(stream *llm.Stream) {
	go func() {
		cutter := sentence.NewSentencer()
		for {
			c, err := stream.Next()
			if errors.Is(err, buffer.ErrIteratorDone) {
				for _, text := range cutter.Flush() {
					y.Append(text)
				}
				y.SetLast()
				return
			}
			if err != nil {
				y.log.Error("token stream failed", "err", err)
				if !y.aborted.Load() {
					y.Append(fallbackText)
				}
				y.SetLast()
				return
			}
			if y.aborted.Load() {
				return
			}
			for _, text := range cutter.Feed(c.Text) {
				y.Append(text)
			}
		}
	}()
}

// Abort cancels the turn and drops queued sentences.
func (y *Synthesizer) Abort(reason string) {
	if y.aborted.CompareAndSwap(false, true) {
		y.log.Info("synthesis aborted", "reason", reason)
	}
	y.mu.Lock()
	y.queue = nil
	y.mu.Unlock()
}

// Aborted reports whether the turn was cancelled.
func (y *Synthesizer) Aborted() bool {
	return y.aborted.Load()
}

// InDialog reports whether the turn is still producing sentences.
func (y *Synthesizer) InDialog() bool {
	return !y.done.Load() && !y.aborted.Load()
}

func (y *Synthesizer) pop() *sentence.Sentence {
	y.mu.Lock()
	defer y.mu.Unlock()
	if len(y.queue) == 0 {
		return nil
	}
	s := y.queue[0]
	y.queue = y.queue[1:]
	return s
}

// work pops sentences in cut order and keeps up to maxConc provider calls
// in flight. Each sentence waits for its predecessor before delivering, so
// the player still sees cut order whatever the completion order.
func (y *Synthesizer) work() {
	defer y.done.Store(true)
	slots := make(chan struct{}, y.maxConc)
	prev := make(chan struct{})
	close(prev)
	var wg sync.WaitGroup
	for !y.aborted.Load() {
		s := y.pop()
		if s == nil {
			if y.last.Load() {
				break
			}
			y.sleep(popIdle)
			continue
		}
		slots <- struct{}{}
		turn, ready := prev, make(chan struct{})
		prev = ready
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(ready)
			ok := y.synthesize(s)
			<-slots
			<-turn
			if ok {
				y.deliver(s)
			}
		}()
	}
	wg.Wait()
}

// synthesize runs TTS for one sentence, reporting whether it is playable.
// A sentence that exhausts its retries is dropped from the reply.
func (y *Synthesizer) synthesize(s *sentence.Sentence) bool {
	if s.IsOnlyEmoji() || s.TextForSpeech() == "" {
		return true
	}

	ctx := context.Background()
	cancel := func() {}
	if y.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
	}
	s.BeginSynthesis = time.Now()
	path, err := y.tts.Synthesize(ctx, s.TextForSpeech())
	s.EndSynthesis = time.Now()
	cancel()
	if err != nil {
		s.RetryCount++
		s.IsRetry = true
		// Cue the device that the reply is delayed, not dead.
		y.sess.SendText(wire.NewLlmEmotion(y.sess.ID, "happy"))
		if s.RetryCount <= y.maxRetry {
			y.log.Warn("synthesis failed, retrying",
				"seq", s.Seq, "attempt", s.RetryCount, "err", err)
			y.sleep(y.retryDelay)
			if y.aborted.Load() {
				return false
			}
			return y.synthesize(s)
		}
		y.log.Error("synthesis failed, giving up", "seq", s.Seq, "err", err)
		return false
	}
	s.SetAudio(path)
	return true
}

func (y *Synthesizer) deliver(s *sentence.Sentence) {
	if y.aborted.Load() || !y.sess.OwnsSpeaker(y) {
		return
	}
	if y.player == nil {
		return
	}
	y.player.Append(s)
	y.player.Play()
}
