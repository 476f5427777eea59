package live

import (
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/szhem/osgi-utils/internal/log"
)

const (
	logPaneLines = 6   // lines shown below the entries
	maxLogLines  = 200 // lines kept for the pane
)

// logPane keeps the most recent log lines. It only receives lines when
// logging is enabled.
type logPane struct {
	visible  bool
	minLevel log.Level
	lines    []string
}

func (p *logPane) append(entry string) {
	entry = strings.TrimRight(entry, "\n")
	if entry == "" {
		return
	}
	p.lines = append(p.lines, entry)
	if over := len(p.lines) - maxLogLines; over > 0 {
		p.lines = p.lines[over:]
	}
}

// Log levels are ordered: DEBUG(0) < INFO(1) < WARN(2) < ERROR(3).
func (p logPane) matchesLevel(entry string) bool {
	level := log.LevelDebug
	switch {
	case strings.Contains(entry, "[ERROR]"):
		level = log.LevelError
	case strings.Contains(entry, "[WARN]"):
		level = log.LevelWarn
	case strings.Contains(entry, "[INFO]"):
		level = log.LevelInfo
	}
	return level >= p.minLevel
}

// View renders the last lines at or above minLevel, each cut to width.
func (p logPane) View(width int) string {
	var shown []string
	for i := len(p.lines) - 1; i >= 0 && len(shown) < logPaneLines; i-- {
		if p.matchesLevel(p.lines[i]) {
			shown = append(shown, p.lines[i])
		}
	}
	if len(shown) == 0 {
		return mutedStyle.Render("no log entries")
	}

	out := make([]string, 0, len(shown))
	for i := len(shown) - 1; i >= 0; i-- {
		out = append(out, colorizeEntry(shown[i], width))
	}
	return strings.Join(out, "\n")
}

func colorizeEntry(entry string, maxWidth int) string {
	if maxWidth > 3 && ansi.StringWidth(entry) > maxWidth {
		entry = ansi.Truncate(entry, maxWidth-3, "...")
	}
	switch {
	case strings.Contains(entry, "[ERROR]"):
		return errorStyle.Render(entry)
	case strings.Contains(entry, "[WARN]"):
		return warnStyle.Render(entry)
	default:
		return mutedStyle.Render(entry)
	}
}
