package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal rendering.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	User   lipgloss.Style
	Robot  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		User:   lipgloss.NewStyle().Bold(true),
		Robot:  lipgloss.NewStyle().Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Transcript renders the device simulator view: a bordered frame with
// the conversation so far and a tail of event lines.
type Transcript struct {
	Styles  Styles
	Title   string
	Status  string
	Lines   []string // conversation lines, already styled
	Events  []string // recent wire events
	Help    string
	MaxTail int // event lines shown; zero means 6
}

// Render renders the transcript to a string sized to width.
func (t Transcript) Render(width int) string {
	if width < 20 {
		width = 80
	}
	bc := t.Styles.Border
	inner := width - 4

	var out []string
	out = append(out, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	title := t.Styles.Title.Render(t.Title)
	status := t.Styles.Help.Render("[" + t.Status + "]")
	pad := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	out = append(out, bc.Render("│")+" "+title+" "+status+strings.Repeat(" ", pad)+" "+bc.Render("│"))

	out = append(out, t.section(bc, "对话", t.Lines, inner, width)...)

	tail := t.MaxTail
	if tail <= 0 {
		tail = 6
	}
	events := t.Events
	if len(events) > tail {
		events = events[len(events)-tail:]
	}
	out = append(out, t.section(bc, "事件", events, inner, width)...)

	out = append(out, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	if t.Help != "" {
		out = append(out, t.Styles.Help.Render(t.Help))
	}
	return strings.Join(out, "\n")
}

func (t Transcript) section(bc lipgloss.Style, label string, content []string, inner, width int) []string {
	var lines []string
	labelText := t.Styles.Label.Render(label)
	pad := max(0, width-3-lipgloss.Width(labelText))
	lines = append(lines, bc.Render("├")+bc.Render("─")+labelText+bc.Render(strings.Repeat("─", pad))+bc.Render("┤"))
	for _, text := range content {
		if inner > 1 && lipgloss.Width(text) > inner {
			text = truncate(text, inner-1) + "…"
		}
		lines = append(lines, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return lines
}

// truncate cuts a string to the given display width, handling wide
// characters correctly.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	w := 0
	for i, r := range runes {
		rw := lipgloss.Width(string(r))
		if w+rw > width {
			return string(runes[:i])
		}
		w += rw
	}
	return s
}
