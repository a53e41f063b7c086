// Package session holds the UI-side state of one program run.
package session

// Indicator is the coloured dot shown next to the status text.
type Indicator int

const (
	IndicatorLoading Indicator = iota
	IndicatorWorking
	IndicatorReady
	IndicatorError
)

func (i Indicator) String() string {
	switch i {
	case IndicatorLoading:
		return "loading"
	case IndicatorWorking:
		return "working"
	case IndicatorReady:
		return "ready"
	case IndicatorError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	StatusTextLoading = "Loading"
	StatusTextWorking = "Working"
	StatusTextReady   = "Ready"
	StatusTextError   = "Error"
)

// Status is what the status bar shows.
type Status struct {
	Text      string
	Indicator Indicator
}

// Session is mutated only from the UI goroutine: by the dispatcher and the
// envelope handlers it runs. Nothing here is persisted.
type Session struct {
	modelReady   bool
	lastQuestion string
	status       Status
	pending      int
}

// New returns a session in the initial loading state.
func New() *Session {
	return &Session{
		status: Status{Text: StatusTextLoading, Indicator: IndicatorLoading},
	}
}

func (s *Session) ModelReady() bool     { return s.modelReady }
func (s *Session) LastQuestion() string { return s.lastQuestion }
func (s *Session) Status() Status       { return s.status }

// Pending counts generate requests that have not been answered yet.
func (s *Session) Pending() int { return s.pending }

// MarkReady records that the model finished loading. It cannot be undone.
func (s *Session) MarkReady() {
	s.modelReady = true
	s.status = Status{Text: StatusTextReady, Indicator: IndicatorReady}
}

// Progress shows a host status or download message.
func (s *Session) Progress(message string) {
	s.status = Status{Text: message, Indicator: IndicatorWorking}
}

// Ask records a question sent to the host. A second question before the
// first is answered simply overwrites the first.
func (s *Session) Ask(question string) {
	s.lastQuestion = question
	s.pending++
	s.status = Status{Text: StatusTextWorking, Indicator: IndicatorWorking}
}

// Answered settles one pending request.
func (s *Session) Answered() {
	if s.pending > 0 {
		s.pending--
	}
	s.status = Status{Text: StatusTextReady, Indicator: IndicatorReady}
}

// Failed records an error envelope. Errors that answer a question put the
// session back to Ready; an error while the model is still loading is
// terminal and shows the error indicator.
func (s *Session) Failed() {
	if !s.modelReady {
		s.status = Status{Text: StatusTextError, Indicator: IndicatorError}
		return
	}
	s.Answered()
}
