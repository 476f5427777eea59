// Package live renders a tracking collection in the terminal and redraws it
// as entries come and go.
package live

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/szhem/osgi-utils/internal/keys"
	"github.com/szhem/osgi-utils/internal/log"
	"github.com/szhem/osgi-utils/internal/pubsub"
	"github.com/szhem/osgi-utils/internal/tracker"
)

const (
	defaultWidth  = 80
	defaultHeight = 20
	chromeLines   = 5 // header, border, footer
)

// Model is the Bubble Tea model of the live view.
type Model struct {
	ctx context.Context
	col *tracker.Collection

	changes *pubsub.Listener[tracker.TrackedEntry]
	errs    <-chan pubsub.Event[error]
	logs    <-chan log.LogEvent

	keys     keys.KeyMap
	help     help.Model
	viewport viewport.Model

	entries  []tracker.TrackedEntry
	changesN int
	lastErr  string
	logPane  logPane
	width    int
	height   int
}

// New creates the view. The feeds are subscribed here, so nothing published
// after New returns is missed. ctx bounds the subscriptions.
func New(ctx context.Context, col *tracker.Collection) Model {
	m := Model{
		ctx:      ctx,
		col:      col,
		changes:  pubsub.Listen[tracker.TrackedEntry](ctx, "changes", col),
		errs:     col.Errors(ctx),
		logs:     log.Subscribe(ctx),
		keys:     keys.DefaultKeyMap(),
		help:     help.New(),
		viewport: viewport.New(defaultWidth, defaultHeight-chromeLines),
		entries:  col.Entries(),
		width:    defaultWidth,
		height:   defaultHeight,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.changes.Next(), pubsub.ListenCmd(m.ctx, m.errs)}
	if m.logs != nil {
		cmds = append(cmds, pubsub.ListenCmd(m.ctx, m.logs))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pubsub.Event[tracker.TrackedEntry]:
		m.changesN++
		m.entries = m.col.Entries()
		m.refresh()
		log.Debug(log.CatUI, "collection changed", "type", msg.Type, "size", len(m.entries))
		return m, m.changes.Next()

	case pubsub.Event[error]:
		m.lastErr = msg.Payload.Error()
		return m, pubsub.ListenCmd(m.ctx, m.errs)

	case pubsub.ClosedMsg:
		m.lastErr = msg.Feed + " feed closed"
		return m, nil

	case log.LogEvent:
		m.logPane.append(msg.Payload)
		return m, pubsub.ListenCmd(m.ctx, m.logs)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Toggle):
		if m.col.Active() {
			m.col.Stop()
		} else if err := m.col.Start(m.ctx); err != nil {
			m.lastErr = err.Error()
		}
		m.entries = m.col.Entries()
		m.refresh()
	case key.Matches(msg, m.keys.ClearError):
		m.lastErr = ""
	case key.Matches(msg, m.keys.Logs):
		m.logPane.visible = !m.logPane.visible
		m.resize()
	case key.Matches(msg, m.keys.LogLevel):
		m.logPane.minLevel = (m.logPane.minLevel + 1) % (log.LevelError + 1)
	case key.Matches(msg, m.keys.Up):
		m.viewport.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.viewport.ScrollDown(1)
	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
	}
	return m, nil
}

// resize fits the viewport between the header, the log pane and the footer.
func (m *Model) resize() {
	body := m.height - chromeLines
	if m.logPane.visible {
		body -= logPaneLines + 1
	}
	m.viewport.Width = max(m.width-4, 10)
	m.viewport.Height = max(body, 1)
}

func (m *Model) refresh() {
	if len(m.entries) == 0 {
		m.viewport.SetContent(mutedStyle.Render("no matching services"))
		return
	}
	lines := make([]string, len(m.entries))
	for i, e := range m.entries {
		lines[i] = FormatReference(e.Reference)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

// View implements tea.Model.
func (m Model) View() string {
	state := inactiveStyle.Render("○ inactive")
	if m.col.Active() {
		state = activeStyle.Render("● active")
	}
	header := fmt.Sprintf("%s %s  %s  %d entries",
		titleStyle.Render("Tracking"), filterStyle.Render(m.col.Filter()), state, len(m.entries))

	body := bodyStyle.Width(max(m.width-2, 10)).Render(m.viewport.View())

	footer := m.help.View(m.keys)
	if m.lastErr != "" {
		footer = errorStyle.Render(wordwrap.String(m.lastErr, max(m.width-2, 10))) + "\n" + footer
	}

	if !m.logPane.visible {
		return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
	}
	logs := logPaneStyle.Width(max(m.width-2, 10)).Render(m.logPane.View(max(m.width-2, 10)))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, logs, footer)
}

// Entries returns the entries currently shown.
func (m Model) Entries() []tracker.TrackedEntry {
	return m.entries
}
