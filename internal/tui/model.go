// Package tui is the interactive front end: a scrolling terminal log, an
// input line, a status bar and the animated backdrop. A line-mode runner
// for non-interactive use lives alongside it.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kensave/portfolio/internal/backdrop"
	"github.com/kensave/portfolio/internal/dispatch"
	"github.com/kensave/portfolio/internal/session"
	"go.uber.org/zap"
)

const (
	// rows below the log: status bar and input line
	chromeHeight   = 2
	maxSkyHeight   = 6
	inputCharLimit = 500
)

// Options configure a Model.
type Options struct {
	Backdrop bool
	Logger   *zap.Logger
}

type Model struct {
	ctx        context.Context
	dispatcher *dispatch.Dispatcher
	receiver   Receiver
	logger     *zap.Logger

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	backdrop  bool
	started   time.Time
	frameTime float64

	width, height int
	ready         bool
	hostGone      bool
}

// New creates the model. ctx bounds the envelope listener; cancel it after
// the program exits.
func New(ctx context.Context, d *dispatch.Dispatcher, r Receiver, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "$ "
	ti.Placeholder = `Type "help" or ask about Kenneth...`
	ti.CharLimit = inputCharLimit
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = dotStyles[session.IndicatorWorking]

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return Model{
		ctx:        ctx,
		dispatcher: d,
		receiver:   r,
		logger:     logger,
		viewport:   viewport.New(80, 20),
		input:      ti,
		spinner:    s,
		backdrop:   opts.Backdrop,
		started:    time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		waitForEnvelope(m.ctx, m.receiver),
	}
	if m.backdrop {
		cmds = append(cmds, backdrop.Tick())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			m.dispatcher.Dispatch(line)
			m.refresh(false)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-m.skyHeight()-chromeHeight)
		m.input.Width = max(1, msg.Width-len(m.input.Prompt)-1)
		m.ready = true
		m.refresh(true)

	case EnvelopeMsg:
		m.dispatcher.HandleEnvelope(msg.Env)
		m.refresh(false)
		return m, waitForEnvelope(m.ctx, m.receiver)

	case ChannelClosedMsg:
		m.hostGone = true
		if m.ctx.Err() == nil {
			m.logger.Warn("worker channel closed", zap.Error(msg.Err))
		}
		return m, nil

	case backdrop.TickMsg:
		if !m.backdrop {
			return m, nil
		}
		m.frameTime = time.Time(msg).Sub(m.started).Seconds()
		return m, backdrop.Tick()

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// refresh re-renders the log into the viewport when it changed, or always
// when force is set (after a resize).
func (m *Model) refresh(force bool) {
	log := m.dispatcher.Log()
	if !log.TakeScroll() && !force {
		return
	}
	m.viewport.SetContent(log.Render(m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Model) skyHeight() int {
	if !m.backdrop {
		return 0
	}
	return min(maxSkyHeight, m.height/5)
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var parts []string
	if h := m.skyHeight(); h > 0 {
		parts = append(parts, backdrop.Frame(m.width, h, m.frameTime))
	}
	st := m.dispatcher.Session().Status()
	if m.hostGone {
		st = session.Status{Text: "AI worker stopped", Indicator: session.IndicatorError}
	}
	parts = append(parts,
		m.viewport.View(),
		statusLine(st, m.spinner.View(), m.width),
		m.input.View(),
	)
	return strings.Join(parts, "\n")
}
