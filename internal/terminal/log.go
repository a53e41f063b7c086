// Package terminal is the scrollback of the simulated terminal: an
// append-only list of classified lines and its styled rendering.
package terminal

// Class decides how a line is styled.
type Class int

const (
	ClassPlain Class = iota
	ClassPrompt
	ClassAI
	ClassError
	ClassNotice
	ClassBanner
)

func (c Class) String() string {
	switch c {
	case ClassPlain:
		return "plain"
	case ClassPrompt:
		return "prompt"
	case ClassAI:
		return "ai"
	case ClassError:
		return "error"
	case ClassNotice:
		return "notice"
	case ClassBanner:
		return "banner"
	default:
		return "unknown"
	}
}

// Line is one row of output. Lines are never modified once appended.
type Line struct {
	Text  string
	Class Class
}

// Log is the terminal scrollback. It is used from a single goroutine.
type Log struct {
	lines      []Line
	generation int
	scroll     bool
}

func NewLog() *Log {
	return &Log{}
}

// Append adds a line and asks the view to scroll to the bottom.
func (l *Log) Append(text string, class Class) {
	l.lines = append(l.lines, Line{Text: text, Class: class})
	l.scroll = true
}

// AppendLines appends every text with the same class.
func (l *Log) AppendLines(texts []string, class Class) {
	for _, t := range texts {
		l.Append(t, class)
	}
}

// Clear empties the log and starts a new generation.
func (l *Log) Clear() {
	l.lines = nil
	l.generation++
	l.scroll = true
}

func (l *Log) Len() int {
	return len(l.lines)
}

// Generation changes every time the log is cleared.
func (l *Log) Generation() int {
	return l.generation
}

// Lines returns a copy of every line.
func (l *Log) Lines() []Line {
	return l.Since(0)
}

// Since returns a copy of the lines appended after the first n.
func (l *Log) Since(n int) []Line {
	if n < 0 {
		n = 0
	}
	if n >= len(l.lines) {
		return nil
	}
	out := make([]Line, len(l.lines)-n)
	copy(out, l.lines[n:])
	return out
}

// TakeScroll reports whether lines changed since the last call and resets
// the flag.
func (l *Log) TakeScroll() bool {
	s := l.scroll
	l.scroll = false
	return s
}
