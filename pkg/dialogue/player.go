package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/giztalk/go/pkg/audio/codec/ogg"
	"github.com/haivivi/giztalk/go/pkg/audio/codec/opus"
	"github.com/haivivi/giztalk/go/pkg/audio/pcm"
	"github.com/haivivi/giztalk/go/pkg/audio/resampler"
	"github.com/haivivi/giztalk/go/pkg/sentence"
	"github.com/haivivi/giztalk/go/pkg/session"
	"github.com/haivivi/giztalk/go/pkg/storage"
	"github.com/haivivi/giztalk/go/pkg/store"
	"github.com/haivivi/giztalk/go/pkg/wire"
)

const (
	frameDuration = 60 * time.Millisecond

	// playLeadFrames starts the paced clock two frames in the past so the
	// device buffer fills before real-time pacing takes over.
	playLeadFrames = 2

	// sentenceGapFrames is the paced gap inserted between sentences.
	sentenceGapFrames = 5

	// textOnlyPause is how long a sentence with no audio holds the floor.
	textOnlyPause = 500 * time.Millisecond

	// drainGrace separates the last frame from the stop event.
	drainGrace = 500 * time.Millisecond
)

// producer is the Player's view of the synthesizer feeding it.
type producer interface {
	InDialog() bool
	Aborted() bool
}

// PlayerOptions configure a Player.
type PlayerOptions struct {
	Session *session.Session

	// Files receives the merged assistant recording. Nil skips merging.
	Files storage.FileStore

	// Messages records the merged recording's path on the assistant row.
	Messages *store.Messages

	Logger *slog.Logger

	// Now and Sleep are the paced clock, replaceable in tests. Defaults
	// are time.Now and time.Sleep.
	Now   func() time.Time
	Sleep func(time.Duration)

	// Frames loads the playable frames of a synthesized audio file.
	// Default reads a WAV and encodes it.
	Frames func(path string) ([]opus.Frame, error)
}

// Player drains a queue of synthesized sentences onto the channel, pacing
// Opus frames against an absolute clock so jitter never accumulates.
//
// One goroutine drains; Play is an idempotent spawn so the synthesizer can
// call it after every append. The drain keeps waiting while the producer
// is still mid-turn even if the queue runs empty.
type Player struct {
	sess     *session.Session
	src      producer
	files    storage.FileStore
	messages *store.Messages
	log      *slog.Logger
	now      func() time.Time
	sleep    func(time.Duration)
	frames   func(path string) ([]opus.Frame, error)

	mu     sync.Mutex
	queue  []*sentence.Sentence
	merged []opus.Frame

	playing atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
}

// NewPlayer creates a Player fed by src.
func NewPlayer(opts PlayerOptions, src producer) *Player {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	p := &Player{
		sess:     opts.Session,
		src:      src,
		files:    opts.Files,
		messages: opts.Messages,
		log:      opts.Logger.With("session", opts.Session.ID),
		now:      opts.Now,
		sleep:    opts.Sleep,
		frames:   opts.Frames,
		done:     make(chan struct{}),
	}
	if p.frames == nil {
		p.frames = wavFrames
	}
	return p
}

// Append enqueues a synthesized sentence.
func (p *Player) Append(s *sentence.Sentence) {
	p.mu.Lock()
	p.queue = append(p.queue, s)
	p.mu.Unlock()
}

// Play starts the drain goroutine if it is not already running.
func (p *Player) Play() {
	if p.playing.CompareAndSwap(false, true) {
		go p.run()
	}
}

// Stop cancels pacing and drops whatever is still queued. The drain exits
// without signaling tts stop; the caller that stopped us sends its own.
func (p *Player) Stop() {
	p.stopped.Store(true)
	p.mu.Lock()
	p.queue = nil
	p.mu.Unlock()
}

// Done is closed when the drain goroutine exits. Test hook.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

func (p *Player) pop() *sentence.Sentence {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	s := p.queue[0]
	p.queue = p.queue[1:]
	return s
}

func (p *Player) run() {
	defer close(p.done)

	start := p.now()
	pos := -playLeadFrames * frameDuration

	for !p.stopped.Load() {
		s := p.pop()
		if s == nil {
			if p.src != nil && p.src.InDialog() && !p.src.Aborted() {
				p.sleep(frameDuration)
				continue
			}
			break
		}
		pos = p.playSentence(s, start, pos)
	}

	if p.stopped.Load() || (p.src != nil && p.src.Aborted()) {
		return
	}

	p.sleep(drainGrace)
	if err := p.sess.SendText(wire.NewTtsStop(p.sess.ID)); err != nil {
		p.log.Warn("tts stop not delivered", "err", err)
	}
	p.sess.SetInWakeupReply(false)
	p.mergeRecording()
	if p.sess.CloseAfterChat() {
		p.log.Info("closing session after final reply")
		p.sess.CloseChannel()
	}
}

// playSentence sends one sentence and returns the advanced play position.
func (p *Player) playSentence(s *sentence.Sentence, start time.Time, pos time.Duration) time.Duration {
	if s.AudioPath == "" {
		// Text-only: announce and hold the floor briefly.
		if !s.IsOnlyEmoji() {
			p.sess.SendText(wire.NewTtsSentence(p.sess.ID, s.Text))
		}
		p.sendMoods(s)
		p.sleep(textOnlyPause)
		return pos
	}

	frames, err := p.frames(s.AudioPath)
	if err != nil {
		p.log.Error("unreadable sentence audio", "path", s.AudioPath, "err", err)
		return pos
	}
	p.sess.SendText(wire.NewTtsSentence(p.sess.ID, s.Text))
	p.sendMoods(s)
	if s.ShouldMerge {
		p.mu.Lock()
		p.merged = append(p.merged, frames...)
		p.mu.Unlock()
	}

	for _, f := range frames {
		if p.stopped.Load() || !p.sess.HasChannel() {
			return pos
		}
		if p.src != nil && p.src.Aborted() {
			return pos
		}
		p.sess.Touch()
		// Absolute target per frame; drift does not accumulate.
		if d := start.Add(pos).Sub(p.now()); d > 0 {
			p.sleep(d)
		}
		if err := p.sess.SendBinary(f); err != nil {
			p.log.Warn("frame not delivered", "err", err)
			return pos
		}
		pos += frameDuration
	}
	return pos + sentenceGapFrames*frameDuration
}

func (p *Player) sendMoods(s *sentence.Sentence) {
	for _, mood := range s.Moods() {
		p.sess.SendText(wire.NewLlmEmotion(p.sess.ID, mood))
	}
}

// mergeRecording writes the frames played this turn as one OGG/Opus file
// named by the assistant timestamp and records the path on the persisted
// assistant row.
func (p *Player) mergeRecording() {
	p.mu.Lock()
	frames := p.merged
	p.merged = nil
	p.mu.Unlock()
	if len(frames) == 0 || p.files == nil {
		return
	}
	device, role := p.sess.Device(), p.sess.Role()
	ms := p.sess.AssistantTimeMs()
	if device == nil || role == nil || ms == 0 {
		return
	}
	ctx := context.Background()
	path := storage.AssistantAudioPath(device.ID, role.ID, time.UnixMilli(ms))
	w, err := p.files.Write(ctx, path)
	if err != nil {
		p.log.Error("assistant recording not writable", "path", path, "err", err)
		return
	}
	ow, err := ogg.NewOpusWriter(w, opus.SampleRate, opus.Channels)
	if err != nil {
		p.log.Error("assistant recording header", "err", err)
		w.Close()
		return
	}
	for _, f := range frames {
		if err := ow.Write(f); err != nil {
			p.log.Error("assistant recording frame", "err", err)
			break
		}
	}
	// OpusWriter.Close also closes the underlying artifact writer.
	if err := ow.Close(); err != nil {
		p.log.Error("assistant recording close", "err", err)
		return
	}
	if p.messages != nil {
		if err := p.messages.SetAudioPath(ctx, device.ID, role.ID, ms, store.SenderAssistant, path); err != nil {
			p.log.Error("assistant audio path not recorded", "err", err)
		}
	}
}

// wavFrames reads a synthesized WAV and encodes it into playable frames,
// resampling when the provider ignored the 16 kHz mono contract.
func wavFrames(path string) ([]opus.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	h, raw, err := pcm.DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if h.SampleRate != opus.SampleRate || h.Channels != opus.Channels {
		raw, err = resampler.Convert(raw,
			resampler.Format{SampleRate: h.SampleRate, Stereo: h.Channels == 2},
			resampler.Format{SampleRate: opus.SampleRate})
		if err != nil {
			return nil, fmt.Errorf("resample %s: %w", path, err)
		}
	}
	codec, err := opus.NewCodec()
	if err != nil {
		return nil, err
	}
	defer codec.Close()
	return codec.Encode(raw, false), nil
}
