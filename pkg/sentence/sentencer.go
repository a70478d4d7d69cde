// Package sentence cuts a streamed language-model reply into units ready
// for speech synthesis. A Sentencer consumes tokens as they arrive and
// emits a sentence as soon as a boundary is reached, so synthesis can start
// long before the model finishes; the Sentence record then carries each
// unit through synthesis and playback with a process-wide ordering number.
package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	endRunes     = "。！？!?"
	pauseRunes   = "，、；,;"
	newlineRunes = "\n\r"

	// minLen is the minimum rune count a sentence must reach before a
	// boundary may cut it. Shorter fragments keep accumulating.
	minLen = 5

	// contextMax bounds the look-behind window used by the decimal guard
	// around ".".
	contextMax = 20
)

// Sentencer assembles streamed tokens into sentences.
//
// A boundary is a terminal rune (。！？!? or a bare "."), a newline, or,
// once minLen runes have accumulated, a pause rune, an emoji, or a kaomoji
// anywhere in the buffer. A "." between two digits is part of a decimal
// number such as "3.14" and never ends a sentence; deciding that needs the
// rune after the dot, so the verdict for "digit." is deferred by one rune.
//
// A Sentencer is not safe for concurrent use. The zero value is usable but
// callers normally go through NewSentencer.
type Sentencer struct {
	current []rune
	context []rune

	// pendingDot is set after a "." preceded by a digit: whether that dot
	// ended the sentence depends on the rune that follows it.
	pendingDot bool
}

// NewSentencer returns an empty Sentencer.
func NewSentencer() *Sentencer {
	return &Sentencer{
		current: make([]rune, 0, 64),
		context: make([]rune, 0, contextMax),
	}
}

// Feed consumes one streamed token and returns the sentences it completed,
// in order. Most calls return nil.
func (s *Sentencer) Feed(token string) []string {
	var out []string
	for _, ch := range token {
		if s.pendingDot {
			s.pendingDot = false
			if !unicode.IsDigit(ch) {
				// Not a decimal after all, the dot ended the sentence.
				if text, ok := s.cut(); ok {
					out = append(out, text)
				}
			}
		}

		s.context = append(s.context, ch)
		if len(s.context) > contextMax {
			s.context = s.context[len(s.context)-contextMax:]
		}
		s.current = append(s.current, ch)

		isEnd := strings.ContainsRune(endRunes, ch)
		isNewline := strings.ContainsRune(newlineRunes, ch)

		if ch == '.' {
			if len(s.context) >= 2 && unicode.IsDigit(s.context[len(s.context)-2]) {
				// Could be "3.14"; hold the verdict until the next rune.
				s.pendingDot = true
			} else {
				isEnd = true
			}
		}

		shouldSend := isEnd || isNewline
		if !shouldSend && len(s.current) >= minLen {
			shouldSend = strings.ContainsRune(pauseRunes, ch) ||
				IsEmoji(ch) ||
				ContainsKaomoji(string(s.current))
		}
		if shouldSend {
			if text, ok := s.cut(); ok {
				out = append(out, text)
			}
		}
	}
	return out
}

// Flush returns whatever is still buffered as the final sentence, if
// anything, and resets the Sentencer. The tail skips the length and content
// gates so a model that stops mid-sentence still gets its last words
// spoken.
func (s *Sentencer) Flush() []string {
	s.pendingDot = false
	text := strings.TrimSpace(string(s.current))
	s.current = s.current[:0]
	s.context = s.context[:0]
	if text == "" {
		return nil
	}
	return []string{text}
}

// cut tries to close the buffered sentence at the current position. The
// buffer is consumed only when the trimmed, kaomoji-free text passes the
// length and content gates; otherwise it keeps accumulating.
func (s *Sentencer) cut() (string, bool) {
	if len(s.current) < minLen {
		return "", false
	}
	text := FilterKaomoji(strings.TrimSpace(string(s.current)))
	if !substantial(text) {
		return "", false
	}
	s.current = s.current[:0]
	return text, true
}

// substantial reports whether text is worth speaking: at least minLen runes
// after trimming and at least two word runes (letters, digits, or
// underscore). Filters out fragments that are all punctuation.
func substantial(text string) bool {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minLen {
		return false
	}
	words := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			words++
			if words >= 2 {
				return true
			}
		}
	}
	return false
}
