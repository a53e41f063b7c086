package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kensave/portfolio/internal/protocol"
)

// Receiver is the UI end of the worker channel.
type Receiver interface {
	Receive(ctx context.Context) (protocol.Envelope, error)
}

// EnvelopeMsg carries one envelope from the host into Update.
type EnvelopeMsg struct {
	Env protocol.Envelope
}

// ChannelClosedMsg is delivered once when the host side goes away.
type ChannelClosedMsg struct {
	Err error
}

// waitForEnvelope blocks in a command goroutine until the host sends
// something. Update re-arms it after every EnvelopeMsg, so the UI loop
// itself never waits on the host. Frames that fail to decode are skipped;
// the port has already logged them.
func waitForEnvelope(ctx context.Context, r Receiver) tea.Cmd {
	return func() tea.Msg {
		for {
			env, err := r.Receive(ctx)
			if err == nil {
				return EnvelopeMsg{Env: env}
			}
			if errors.Is(err, protocol.ErrClosed) || ctx.Err() != nil {
				return ChannelClosedMsg{Err: err}
			}
		}
	}
}
