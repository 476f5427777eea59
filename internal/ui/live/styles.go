package live

import "github.com/charmbracelet/lipgloss"

var (
	textMutedColor     = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#696969"}
	borderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}
	statusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	statusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	statusWarningColor = lipgloss.AdaptiveColor{Light: "#FFA500", Dark: "#FFB347"}
	filterColor        = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#94E2D5"}

	titleStyle    = lipgloss.NewStyle().Bold(true)
	filterStyle   = lipgloss.NewStyle().Foreground(filterColor)
	activeStyle   = lipgloss.NewStyle().Foreground(statusSuccessColor)
	inactiveStyle = lipgloss.NewStyle().Foreground(textMutedColor)
	errorStyle    = lipgloss.NewStyle().Foreground(statusErrorColor)
	warnStyle     = lipgloss.NewStyle().Foreground(statusWarningColor)
	mutedStyle    = lipgloss.NewStyle().Foreground(textMutedColor)

	bodyStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderDefaultColor).
			Padding(0, 1)

	logPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(borderDefaultColor)
)
