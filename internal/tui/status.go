package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/kensave/portfolio/internal/session"
	"github.com/mattn/go-runewidth"
)

const statusDot = "●"

var (
	dotStyles = map[session.Indicator]lipgloss.Style{
		session.IndicatorLoading: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		session.IndicatorWorking: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		session.IndicatorReady:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		session.IndicatorError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	statusTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// statusLine renders the indicator, the status text and the key help, cut
// to width cells. While the host is busy the spinner replaces the dot.
func statusLine(st session.Status, spinnerView string, width int) string {
	dot := dotStyles[st.Indicator].Render(statusDot)
	if st.Indicator == session.IndicatorWorking && spinnerView != "" {
		dot = spinnerView
	}

	help := "  Enter: send  Ctrl+C: quit"
	room := width - lipgloss.Width(dot) - 1
	text := st.Text
	if width > 0 {
		if runewidth.StringWidth(text+help) > room {
			help = ""
		}
		if runewidth.StringWidth(text) > room {
			text = runewidth.Truncate(text, room, "…")
		}
	}
	return dot + " " + statusTextStyle.Render(text) + helpStyle.Render(help)
}
