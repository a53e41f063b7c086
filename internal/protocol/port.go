package protocol

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Send and Receive once either end of the channel
// has been closed.
var ErrClosed = errors.New("worker channel closed")

// ErrFull is returned by TrySend when the peer's queue has no room.
var ErrFull = errors.New("worker channel full")

// DefaultBuffer is the per-direction queue depth used by the program.
const DefaultBuffer = 64

// link is one direction of the channel. Only encoded bytes travel on it.
type link struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newLink(buffer int) *link {
	return &link{
		ch:     make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (l *link) close() {
	l.once.Do(func() { close(l.closed) })
}

// Port is one end of the worker channel. Sends are fire-and-forget: they only
// wait for queue space, never for the peer to handle the envelope. Envelopes
// are delivered in send order.
type Port struct {
	out    *link
	in     *link
	logger *zap.Logger
}

// Pipe creates a connected pair of ports: ui talks to host and host talks back.
func Pipe(buffer int, logger *zap.Logger) (ui *Port, host *Port) {
	if buffer < 0 {
		buffer = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	toHost := newLink(buffer)
	toUI := newLink(buffer)

	ui = &Port{out: toHost, in: toUI, logger: logger.Named("channel.ui")}
	host = &Port{out: toUI, in: toHost, logger: logger.Named("channel.host")}
	return ui, host
}

// Send encodes env and queues it for the peer.
func (p *Port) Send(ctx context.Context, env Envelope) error {
	b, err := Encode(env)
	if err != nil {
		return err
	}

	select {
	case <-p.out.closed:
		return ErrClosed
	default:
	}

	select {
	case p.out.ch <- b:
		p.logger.Debug("sent envelope", zap.String("kind", string(env.Kind())))
		return nil
	case <-p.out.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend queues env only if there is room right now. It never blocks, so
// the UI loop can call it.
func (p *Port) TrySend(env Envelope) error {
	b, err := Encode(env)
	if err != nil {
		return err
	}

	select {
	case <-p.out.closed:
		return ErrClosed
	default:
	}

	select {
	case p.out.ch <- b:
		p.logger.Debug("sent envelope", zap.String("kind", string(env.Kind())))
		return nil
	default:
		return ErrFull
	}
}

// Receive blocks for the next envelope from the peer. Envelopes still queued
// when the channel is closed may be dropped.
func (p *Port) Receive(ctx context.Context) (Envelope, error) {
	select {
	case b := <-p.in.ch:
		return p.decode(b)
	default:
	}

	select {
	case b := <-p.in.ch:
		return p.decode(b)
	case <-p.in.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Port) decode(b []byte) (Envelope, error) {
	env, err := Decode(b)
	if err != nil {
		p.logger.Warn("dropping malformed envelope", zap.Error(err), zap.ByteString("raw", b))
		return nil, err
	}
	p.logger.Debug("received envelope", zap.String("kind", string(env.Kind())))
	return env, nil
}

// Close tears down both directions. The peer's pending and future calls
// return ErrClosed.
func (p *Port) Close() {
	p.out.close()
	p.in.close()
}
