package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kensave/portfolio/internal/config"
	"github.com/kensave/portfolio/internal/dispatch"
	"github.com/kensave/portfolio/internal/host"
	"github.com/kensave/portfolio/internal/logging"
	"github.com/kensave/portfolio/internal/model"
	"github.com/kensave/portfolio/internal/profile"
	"github.com/kensave/portfolio/internal/protocol"
	"github.com/kensave/portfolio/internal/session"
	"github.com/kensave/portfolio/internal/terminal"
	"github.com/kensave/portfolio/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type rootOptions struct {
	configPath string
	plain      bool
	noBackdrop bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Kenneth Sanchez's AI-powered portfolio terminal",
		Long: `portfolio is an interactive terminal about Kenneth Sanchez.

Built-in commands (help, about, skills, experience, projects, clear) answer
locally. Anything else is answered by an extractive question-answering model
that is downloaded on start.`,
		// Errors are reported by us; usage output would only add noise.
		SilenceUsage: true,
		Version:      Version,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	cmd.SetVersionTemplate(`{{printf "portfolio version %s\n" .Version}}`)

	cmd.Flags().StringVar(&opts.configPath, "config", "", "config file (default is <config dir>/config.yaml)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "line mode: read stdin and print plain text")
	cmd.Flags().BoolVar(&opts.noBackdrop, "no-backdrop", false, "disable the animated background")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.noBackdrop {
		off := false
		cfg.UI.Backdrop = &off
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting", zap.String("version", Version), zap.String("hub", cfg.Model.HubURL))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	uiPort, hostPort := protocol.Pipe(protocol.DefaultBuffer, logger.Named("channel"))

	hub := model.NewHub(cfg.Model.HubURL, nil, logger.Named("hub"))
	loader := model.NewLoader(hub, model.ModelID, model.LoaderOptions{
		CacheDir:   cfg.Model.CacheDir,
		NewSession: model.ONNXSession(cfg.Model.RuntimeLibrary),
	}, logger.Named("model"))
	h := host.New(model.ModelID, host.WithTimeout(host.FromLoader(loader), cfg.Model.DownloadTimeout), logger.Named("host"))

	d := dispatch.New(session.New(), terminal.NewLog(), uiPort, dispatch.Options{
		Context:     profile.Biography(),
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
	}, logger.Named("dispatch"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Serve(gctx, hostPort)
	})
	g.Go(func() error {
		// Leaving the UI ends the program, including a download in flight.
		defer cancel()
		defer uiPort.Close()

		if err := d.Start(); err != nil {
			return err
		}
		if opts.plain || !isTerminal() {
			return tui.RunPlain(gctx, cmd.InOrStdin(), cmd.OutOrStdout(), d, uiPort, logger.Named("plain"))
		}
		return runProgram(gctx, d, uiPort, cfg, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("exited with error", zap.Error(err))
		return err
	}
	logger.Info("bye")
	return nil
}

func runProgram(ctx context.Context, d *dispatch.Dispatcher, r tui.Receiver, cfg *config.Config, logger *zap.Logger) error {
	m := tui.New(ctx, d, r, tui.Options{
		Backdrop: cfg.UI.BackdropEnabled(),
		Logger:   logger.Named("tui"),
	})

	progOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.UI.AltScreenEnabled() {
		progOpts = append(progOpts, tea.WithAltScreen())
	}

	_, err := tea.NewProgram(m, progOpts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("run terminal UI: %w", err)
	}
	return nil
}
