package sentence

import (
	"regexp"
	"strings"
)

// MoodHappy is the mood attached for every emoji stripped from a sentence.
const MoodHappy = "happy"

var (
	htmlTagRE     = regexp.MustCompile(`<[^>]+>`)
	specialCharRE = regexp.MustCompile(`[@#$%&*]`)
	whitespaceRE  = regexp.MustCompile(`\s+`)

	// kaomojiRE matches ASCII faces: short parenthesized or angled runs
	// like "(^_^)" and "<o>", starred faces like "*_*", "\o/", and the
	// classic ":-)" family.
	kaomojiRE = regexp.MustCompile(`\([^)]{1,10}\)|<[^>]{1,10}>|[\\*][_-]{1,2}[\\*]|\\o/|:-?[)D(]|;-?[)]|=\\?[_/]`)
)

// IsEmoji reports whether r falls in one of the emoji blocks chat models
// commonly produce: emoticons, pictographs, transport, supplemental and
// extended-A symbols, and the legacy symbol and dingbat blocks.
func IsEmoji(r rune) bool {
	return (r >= 0x1F600 && r <= 0x1F64F) ||
		(r >= 0x1F300 && r <= 0x1F5FF) ||
		(r >= 0x1F680 && r <= 0x1F6FF) ||
		(r >= 0x1F900 && r <= 0x1F9FF) ||
		(r >= 0x1FA70 && r <= 0x1FAFF) ||
		(r >= 0x2600 && r <= 0x26FF) ||
		(r >= 0x2700 && r <= 0x27BF)
}

// CleanText normalizes model output before synthesis. Tabs and line breaks
// are dropped, HTML tags and markup punctuation are stripped, and runs of
// whitespace collapse into a single space.
func CleanText(text string) string {
	text = strings.NewReplacer("\t", "", "\n", "", "\r", "").Replace(text)
	text = htmlTagRE.ReplaceAllString(text, "")
	text = specialCharRE.ReplaceAllString(text, "")
	text = whitespaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ContainsKaomoji reports whether text contains an ASCII face.
func ContainsKaomoji(text string) bool {
	if text == "" {
		return false
	}
	return kaomojiRE.MatchString(text)
}

// FilterKaomoji removes ASCII faces from text.
func FilterKaomoji(text string) string {
	if text == "" {
		return ""
	}
	return kaomojiRE.ReplaceAllString(text, "")
}

// ProcessSentence prepares text for the voice provider. It cleans markup,
// removes kaomoji, and strips emoji; every stripped emoji contributes a
// MoodHappy entry so the provider can still color the delivery.
func ProcessSentence(text string) (speech string, moods []string) {
	if text == "" {
		return "", nil
	}
	text = FilterKaomoji(CleanText(text))
	var b strings.Builder
	for _, r := range text {
		if IsEmoji(r) {
			moods = append(moods, MoodHappy)
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String()), moods
}
