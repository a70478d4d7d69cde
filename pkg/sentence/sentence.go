package sentence

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

var seqCounter atomic.Int64

// Sentence is one synthesis unit cut from a model reply. Seq is unique and
// monotonic for the life of the process, so units that were synthesized
// concurrently can still be played back in the order they were cut.
type Sentence struct {
	Seq  int64
	Text string

	// AudioPath is the synthesized audio file. Empty until synthesis
	// succeeds, and stays empty for text-only sentences.
	AudioPath string

	// ShouldMerge marks the sentence for inclusion in the merged
	// assistant recording.
	ShouldMerge bool

	// AssistantTimeMs groups the sentences of one reply. It is the
	// millisecond timestamp of the assistant message they belong to.
	AssistantTimeMs int64

	RetryCount int
	IsRetry    bool

	CreatedAt      time.Time
	BeginSynthesis time.Time
	EndSynthesis   time.Time

	once   sync.Once
	speech string
	moods  []string
}

// New creates a Sentence for text with the next process-wide sequence
// number.
func New(text string) *Sentence {
	return &Sentence{
		Seq:         seqCounter.Add(1),
		Text:        text,
		ShouldMerge: true,
		CreatedAt:   time.Now(),
	}
}

func (s *Sentence) process() {
	s.once.Do(func() {
		s.speech, s.moods = ProcessSentence(s.Text)
	})
}

// TextForSpeech returns the text handed to the voice provider: Text with
// markup, kaomoji, and emoji removed.
func (s *Sentence) TextForSpeech() string {
	s.process()
	return s.speech
}

// Moods returns one mood per emoji stripped from the text.
func (s *Sentence) Moods() []string {
	s.process()
	return s.moods
}

// IsOnlyEmoji reports whether the sentence is essentially just emoji: it
// carries at least one mood and at most four runes of raw text. Such
// sentences are worth an emotion event but not a synthesis round trip.
func (s *Sentence) IsOnlyEmoji() bool {
	s.process()
	return len(s.moods) > 0 && utf8.RuneCountInString(strings.TrimSpace(s.Text)) <= 4
}

// SetAudio records the synthesized audio file. A path that does not exist
// on disk is ignored.
func (s *Sentence) SetAudio(path string) {
	if _, err := os.Stat(path); err != nil {
		slog.Error("synthesized audio file missing", "path", path, "err", err)
		return
	}
	s.AudioPath = path
}

// SynthesisDuration returns how long synthesis took for this sentence.
func (s *Sentence) SynthesisDuration() time.Duration {
	return s.EndSynthesis.Sub(s.BeginSynthesis)
}
