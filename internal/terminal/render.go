package terminal

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const (
	PromptMarker = "$"
	AIMarker     = "AI >"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	aiStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	plainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// Render styles every line and wraps it to width cells. A width below one
// disables wrapping.
func (l *Log) Render(width int) string {
	var sb strings.Builder
	for i, line := range l.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(renderLine(line, width))
	}
	return sb.String()
}

func renderLine(line Line, width int) string {
	rows := Wrap(line.Text, width)
	for i, row := range rows {
		rows[i] = styleRow(row, line.Class, i == 0)
	}
	return strings.Join(rows, "\n")
}

func styleRow(row string, class Class, first bool) string {
	switch class {
	case ClassPrompt:
		if first && strings.HasPrefix(row, PromptMarker) {
			return promptStyle.Render(PromptMarker) + plainStyle.Render(row[len(PromptMarker):])
		}
		return plainStyle.Render(row)
	case ClassAI:
		if first && strings.HasPrefix(row, AIMarker) {
			return aiStyle.Render(AIMarker) + plainStyle.Render(row[len(AIMarker):])
		}
		return plainStyle.Render(row)
	case ClassError:
		return errorStyle.Render(row)
	case ClassNotice:
		return noticeStyle.Render(row)
	case ClassBanner:
		return bannerStyle.Render(row)
	default:
		return plainStyle.Render(row)
	}
}

// Wrap breaks text into rows no wider than width display cells, preferring
// to break at spaces. Leading indentation is kept on the first row. An empty
// text yields one empty row.
func Wrap(text string, width int) []string {
	if width < 1 || runewidth.StringWidth(text) <= width {
		return []string{text}
	}

	var rows []string
	var cur strings.Builder
	curWidth := 0
	emit := func() {
		rows = append(rows, strings.TrimRight(cur.String(), " "))
		cur.Reset()
		curWidth = 0
	}

	for _, word := range splitKeepSpaces(text) {
		w := runewidth.StringWidth(word)
		if curWidth+w <= width {
			cur.WriteString(word)
			curWidth += w
			continue
		}
		if strings.TrimSpace(word) == "" {
			// Drop the space at a break.
			emit()
			continue
		}
		if curWidth > 0 {
			emit()
		}
		for _, r := range word {
			rw := runewidth.RuneWidth(r)
			if curWidth+rw > width && curWidth > 0 {
				emit()
			}
			cur.WriteRune(r)
			curWidth += rw
		}
	}
	if cur.Len() > 0 {
		emit()
	}
	return rows
}

// splitKeepSpaces splits s into alternating runs of spaces and non-spaces.
func splitKeepSpaces(s string) []string {
	var parts []string
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || (s[i] == ' ') != (s[start] == ' ') {
			parts = append(parts, s[start:i])
			start = i
		}
	}
	return parts
}

// Plain renders lines without styling, one per row.
func Plain(lines []Line) string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}
