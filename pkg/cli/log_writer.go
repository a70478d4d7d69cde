package cli

import (
	"strings"
	"sync"
)

// LogWriter implements io.Writer and captures log output for terminal
// display. It keeps the most recent lines and notifies via a channel.
type LogWriter struct {
	mu    sync.Mutex
	lines []string
	limit int
	ch    chan string
}

// NewLogWriter creates a new log writer keeping at most maxLines.
func NewLogWriter(maxLines int) *LogWriter {
	if maxLines <= 0 {
		maxLines = 100
	}
	return &LogWriter{
		limit: maxLines,
		ch:    make(chan string, 100),
	}
}

// Write implements io.Writer. Multi-line input is split on newlines.
func (w *LogWriter) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	w.mu.Lock()
	for _, line := range strings.Split(text, "\n") {
		w.lines = append(w.lines, line)
		if len(w.lines) > w.limit {
			w.lines = w.lines[len(w.lines)-w.limit:]
		}
		select {
		case w.ch <- line:
		default:
		}
	}
	w.mu.Unlock()
	return len(p), nil
}

// Lines returns all buffered lines.
func (w *LogWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

// Channel returns the notification channel for new lines.
func (w *LogWriter) Channel() <-chan string {
	return w.ch
}
