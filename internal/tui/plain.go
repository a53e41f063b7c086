package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/kensave/portfolio/internal/dispatch"
	"github.com/kensave/portfolio/internal/terminal"
	"go.uber.org/zap"
)

// printer writes lines appended to a log since the last flush.
type printer struct {
	w          io.Writer
	n          int
	generation int
}

func (p *printer) flush(log *terminal.Log) error {
	if g := log.Generation(); g != p.generation {
		p.generation, p.n = g, 0
	}
	for _, line := range log.Since(p.n) {
		if _, err := fmt.Fprintln(p.w, line.Text); err != nil {
			return err
		}
	}
	p.n = log.Len()
	return nil
}

// RunPlain drives the dispatcher from line-buffered input and prints the
// log as plain text. It returns once input is exhausted and every question
// has been answered, or when ctx is done.
func RunPlain(ctx context.Context, in io.Reader, out io.Writer, d *dispatch.Dispatcher, r Receiver, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	inputErr := make(chan error, 1)
	// The scanner goroutine may outlive RunPlain while blocked in a read;
	// it exits at the next line or EOF.
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		inputErr <- sc.Err()
	}()

	envs := make(chan EnvelopeMsg)
	closed := make(chan ChannelClosedMsg, 1)
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		for {
			switch msg := waitForEnvelope(ctx, r)().(type) {
			case EnvelopeMsg:
				select {
				case envs <- msg:
				case <-ctx.Done():
					return
				}
			case ChannelClosedMsg:
				closed <- msg
				return
			}
		}
	}()
	defer func() {
		cancel()
		<-recvDone
	}()

	p := &printer{w: out}
	status := d.Session().Status()
	eof := false

	for {
		if err := p.flush(d.Log()); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if eof && d.Session().Pending() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				eof = true
				lines = nil
				select {
				case err := <-inputErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				continue
			}
			d.Dispatch(line)
		case msg := <-envs:
			d.HandleEnvelope(msg.Env)
			if st := d.Session().Status(); st != status {
				status = st
				if _, err := fmt.Fprintf(out, "[%s] %s\n", st.Indicator, st.Text); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
		case msg := <-closed:
			logger.Warn("worker channel closed", zap.Error(msg.Err))
			if err := p.flush(d.Log()); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		}
	}
}
