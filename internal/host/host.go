// Package host runs the question-answering model behind the worker channel.
// A Host is owned by the goroutine running Serve; it shares nothing with the
// UI except the envelopes it sends and receives.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kensave/portfolio/internal/model"
	"github.com/kensave/portfolio/internal/protocol"
	"go.uber.org/zap"
)

const (
	msgLoading    = "Loading AI model..."
	msgLoaded     = "AI model loaded successfully!"
	msgLoadFailed = "Failed to load AI model"
)

// Answerer is the extractive question-answering capability of a loaded model.
type Answerer interface {
	Answer(ctx context.Context, question, passage string, maxAnswerLen int) (model.Answer, error)
}

// LoadFunc fetches the model and returns a ready Answerer. It reports
// download progress through progress.
type LoadFunc func(ctx context.Context, progress model.ProgressFunc) (Answerer, error)

// FromLoader adapts a model.Loader to a LoadFunc.
func FromLoader(l *model.Loader) LoadFunc {
	return func(ctx context.Context, progress model.ProgressFunc) (Answerer, error) {
		p, err := l.Load(ctx, progress)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// WithTimeout bounds every load attempt to d. A zero d leaves load as is.
func WithTimeout(load LoadFunc, d time.Duration) LoadFunc {
	if d <= 0 {
		return load
	}
	return func(ctx context.Context, progress model.ProgressFunc) (Answerer, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return load(ctx, progress)
	}
}

// State is the load lifecycle of the host.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Host owns a single reusable pipeline instance. It is not safe for
// concurrent use.
type Host struct {
	modelID  string
	load     LoadFunc
	pipeline Answerer
	state    State
	logger   *zap.Logger
}

// New creates a host that loads modelID with load on the first Init.
func New(modelID string, load LoadFunc, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		modelID: modelID,
		load:    load,
		logger:  logger,
	}
}

// State reports the current lifecycle state.
func (h *Host) State() State {
	return h.state
}

// Init loads the pipeline. Calling it again once loaded is a no-op; calling it
// after a failure makes a fresh attempt.
func (h *Host) Init(ctx context.Context, progress model.ProgressFunc) error {
	if h.state == StateReady {
		h.logger.Debug("init ignored, model already loaded")
		return nil
	}

	if progress == nil {
		progress = func(model.ProgressEvent) {}
	}

	h.state = StateLoading
	h.logger.Info("loading model", zap.String("model", h.modelID))

	p, err := h.load(ctx, progress)
	if err != nil {
		h.state = StateFailed
		return &ModelLoadError{ModelID: h.modelID, Err: err}
	}

	h.pipeline = p
	h.state = StateReady
	h.logger.Info("model loaded", zap.String("model", h.modelID))
	return nil
}

// Invoke answers question from passage and returns the answer span text.
func (h *Host) Invoke(ctx context.Context, question, passage string, maxTokens int) (string, error) {
	if h.state != StateReady || h.pipeline == nil {
		return "", &InferenceError{Err: ErrNotLoaded}
	}

	ans, err := h.pipeline.Answer(ctx, question, passage, maxTokens)
	if err != nil {
		return "", &InferenceError{Err: err}
	}
	return ans.Text, nil
}

// Serve handles envelopes from port one at a time until ctx is done or the
// channel closes. Generate requests therefore never run concurrently.
func (h *Host) Serve(ctx context.Context, port *protocol.Port) error {
	h.logger.Info("host serving")
	defer h.logger.Info("host stopped")
	defer h.release()

	for {
		env, err := port.Receive(ctx)
		if err != nil {
			if errors.Is(err, protocol.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			h.logger.Warn("receive failed", zap.Error(err))
			continue
		}

		if err := h.handle(ctx, port, env); err != nil {
			if errors.Is(err, protocol.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// release closes the loaded pipeline if it holds resources.
func (h *Host) release() {
	c, ok := h.pipeline.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		h.logger.Warn("closing pipeline failed", zap.Error(err))
	}
	h.pipeline = nil
	h.state = StateIdle
}

func (h *Host) handle(ctx context.Context, port *protocol.Port, env protocol.Envelope) error {
	switch e := env.(type) {
	case protocol.Init:
		return h.handleInit(ctx, port)
	case protocol.Generate:
		return h.handleGenerate(ctx, port, e)
	case protocol.Status, protocol.Progress, protocol.Ready, protocol.Result, protocol.Error:
		h.logger.Warn("ignoring host-bound envelope of UI kind", zap.String("kind", string(env.Kind())))
		return nil
	default:
		return fmt.Errorf("unhandled envelope kind %q", env.Kind())
	}
}

func (h *Host) handleInit(ctx context.Context, port *protocol.Port) error {
	if h.state == StateReady {
		return port.Send(ctx, protocol.Ready{Message: msgLoaded})
	}

	if err := port.Send(ctx, protocol.Status{Message: msgLoading}); err != nil {
		return err
	}

	var sendErr error
	last := map[string]int{}
	err := h.Init(ctx, func(ev model.ProgressEvent) {
		if sendErr != nil || ev.Status != model.StatusDownloading {
			return
		}
		pct := ev.Percent()
		if prev, ok := last[ev.File]; pct < 0 || (ok && prev == pct) {
			return
		}
		last[ev.File] = pct
		sendErr = port.Send(ctx, protocol.Progress{
			Message: fmt.Sprintf("Downloading model: %d%%", pct),
			Percent: pct,
		})
	})
	if sendErr != nil {
		return sendErr
	}
	if err != nil {
		h.logger.Error("model load failed", zap.Error(err))
		return port.Send(ctx, protocol.Error{Message: msgLoadFailed})
	}
	return port.Send(ctx, protocol.Ready{Message: msgLoaded})
}

func (h *Host) handleGenerate(ctx context.Context, port *protocol.Port, g protocol.Generate) error {
	log := h.logger.With(zap.String("request_id", g.RequestID))
	log.Debug("generate",
		zap.String("query", g.Query),
		zap.Int("max_tokens", g.MaxTokens),
		zap.Float64("temperature", g.Temperature))

	answer, err := h.Invoke(ctx, g.Query, g.SystemPrompt, g.MaxTokens)
	if err != nil {
		log.Error("generate failed", zap.Error(err))
		cause := err
		var ie *InferenceError
		if errors.As(err, &ie) {
			cause = ie.Err
		}
		return port.Send(ctx, protocol.Error{
			Message:   "Generation failed: " + cause.Error(),
			RequestID: g.RequestID,
		})
	}
	return port.Send(ctx, protocol.Result{Data: answer, RequestID: g.RequestID})
}
