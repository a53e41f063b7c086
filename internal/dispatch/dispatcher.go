// Package dispatch routes terminal input to the built-in commands or the
// model host, and applies the host's replies to the session and the log.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kensave/portfolio/internal/profile"
	"github.com/kensave/portfolio/internal/protocol"
	"github.com/kensave/portfolio/internal/session"
	"github.com/kensave/portfolio/internal/terminal"
	"go.uber.org/zap"
)

const (
	// DefaultMaxTokens and DefaultTemperature are sent with every question
	// unless configured otherwise.
	DefaultMaxTokens   = 150
	DefaultTemperature = 0.7

	loadingNotice = "🤖 AI model still loading, please wait..."
	busyNotice    = "🤖 AI is busy with earlier questions, please try again in a moment."
	errorPrefix   = "❌ AI Error: "
)

// Sender delivers envelopes to the host without waiting for a reply or for
// queue space. A full queue is reported as protocol.ErrFull.
type Sender interface {
	TrySend(env protocol.Envelope) error
}

// Options configure the questions a Dispatcher sends.
type Options struct {
	// Context is the passage answers are extracted from.
	Context string
	// MaxTokens of zero selects DefaultMaxTokens.
	MaxTokens int
	// Temperature of nil selects DefaultTemperature; zero is kept.
	Temperature *float64
	// NewRequestID defaults to random UUIDs.
	NewRequestID func() string
}

// Dispatcher is driven from the UI goroutine only.
type Dispatcher struct {
	session     *session.Session
	log         *terminal.Log
	sender      Sender
	opts        Options
	temperature float64
	logger      *zap.Logger
}

func New(s *session.Session, log *terminal.Log, sender Sender, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.Context == "" {
		opts.Context = profile.Biography()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.NewRequestID == nil {
		opts.NewRequestID = uuid.NewString
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		session:     s,
		log:         log,
		sender:      sender,
		opts:        opts,
		temperature: temperature,
		logger:      logger,
	}
}

func (d *Dispatcher) Session() *session.Session { return d.session }
func (d *Dispatcher) Log() *terminal.Log         { return d.log }

// Start prints the welcome banner and asks the host to load the model.
func (d *Dispatcher) Start() error {
	d.log.AppendLines(profile.Welcome(), terminal.ClassBanner)
	if err := d.sender.TrySend(protocol.Init{}); err != nil {
		return fmt.Errorf("send init: %w", err)
	}
	return nil
}

// Dispatch handles one submitted input line. It never waits for the host.
func (d *Dispatcher) Dispatch(line string) {
	cmd := ParseCommand(line)
	if cmd.Type == CommandTypeNone {
		return
	}

	d.log.Append(terminal.PromptMarker+" "+line, terminal.ClassPrompt)
	d.logger.Debug("dispatch", zap.Stringer("command", cmd.Type))

	switch cmd.Type {
	case CommandTypeHelp:
		d.log.AppendLines(profile.Help(), terminal.ClassPlain)
	case CommandTypeClear:
		d.log.Clear()
	case CommandTypeAbout:
		d.log.AppendLines(profile.About(), terminal.ClassPlain)
	case CommandTypeSkills:
		d.log.AppendLines(profile.Skills(), terminal.ClassPlain)
	case CommandTypeExperience:
		d.log.AppendLines(profile.Experience(), terminal.ClassPlain)
	case CommandTypeProjects:
		d.log.AppendLines(profile.Projects(), terminal.ClassPlain)
	case CommandTypeQuestion:
		d.ask(cmd.Raw)
	}
}

func (d *Dispatcher) ask(question string) {
	if !d.session.ModelReady() {
		d.log.Append(loadingNotice, terminal.ClassNotice)
		d.logger.Info("question rejected, model not ready")
		return
	}

	gen := protocol.Generate{
		SystemPrompt: d.opts.Context,
		Query:        question,
		MaxTokens:    d.opts.MaxTokens,
		Temperature:  d.temperature,
		RequestID:    d.opts.NewRequestID(),
	}
	err := d.sender.TrySend(gen)
	switch {
	case errors.Is(err, protocol.ErrFull):
		d.log.Append(busyNotice, terminal.ClassNotice)
		d.logger.Warn("question rejected, host queue full", zap.String("request_id", gen.RequestID))
	case err != nil:
		d.logger.Error("send generate failed", zap.String("request_id", gen.RequestID), zap.Error(err))
		d.HandleEnvelope(protocol.Error{Message: err.Error(), RequestID: gen.RequestID})
	default:
		d.session.Ask(question)
		d.logger.Info("question sent", zap.String("request_id", gen.RequestID), zap.Int("pending", d.session.Pending()))
	}
}

// HandleEnvelope applies a message from the host. Results are rendered in
// arrival order with no attempt to match them to a question.
func (d *Dispatcher) HandleEnvelope(env protocol.Envelope) {
	switch e := env.(type) {
	case protocol.Status:
		d.session.Progress(e.Message)
	case protocol.Progress:
		d.session.Progress(e.Message)
	case protocol.Ready:
		d.session.MarkReady()
		d.logger.Info("model ready")
	case protocol.Result:
		d.session.Answered()
		d.log.Append(terminal.AIMarker+" "+e.Data, terminal.ClassAI)
		d.log.Append("", terminal.ClassPlain)
		d.logger.Debug("answer rendered", zap.String("request_id", e.RequestID))
	case protocol.Error:
		d.session.Failed()
		d.log.Append(errorPrefix+e.Message, terminal.ClassError)
		d.logger.Warn("host reported error", zap.String("request_id", e.RequestID), zap.String("message", e.Message))
	case protocol.Init, protocol.Generate:
		d.logger.Warn("ignoring UI-bound envelope of host kind", zap.String("kind", string(env.Kind())))
	default:
		d.logger.Error("unhandled envelope", zap.String("kind", string(env.Kind())))
	}
}
