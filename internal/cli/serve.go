package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sigsync/internal/config"
	"github.com/roach88/sigsync/internal/metrics"
	"github.com/roach88/sigsync/internal/store"
	"github.com/roach88/sigsync/internal/transport"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config  string
	Addr    string
	Journal string

	// Metrics overrides the process-wide collectors (for testing).
	Metrics *metrics.Metrics
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the signal server",
		Long: `Start the HTTP and WebSocket server.

Signals listed in the config file are created at startup and pinned; clients
may create ephemeral signals over HTTP, which are reclaimed once idle. When a
journal path is set every accepted event is appended to a SQLite journal
that replay and trace can inspect.

Examples:
  sigsync serve
  sigsync serve --config sigsync.cue
  sigsync serve --addr :9090 --journal ./sigsync.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to CUE config file")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(logger)

	cfg, err := loadServeConfig(opts)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.Default()
	}

	hubOpts := []transport.HubOption{
		transport.WithMetrics(m),
		transport.WithLimits(cfg.Capacity, cfg.Buffer),
		transport.WithLogger(logger),
	}

	if cfg.Journal != "" {
		logger.Info("opening journal", "path", cfg.Journal)
		st, err := store.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()

		j := store.NewJournal(st,
			store.WithJournalLogger(logger),
			store.WithBacklogHook(m.JournalBacklog),
			store.WithErrorHook(m.JournalWriteFailed),
		)
		hubOpts = append(hubOpts, transport.WithJournal(j))
	}

	hub := transport.NewHub(hubOpts...)
	if err := hub.Pin(cfg.Signals); err != nil {
		hub.Close()
		return WrapExitError(ExitFailure, "failed to create configured signals", err)
	}
	logger.Info("signals ready", "pinned", len(cfg.Signals))

	srv := transport.NewServer(hub, transport.Settings{
		Addr:        cfg.Addr,
		IdleTimeout: cfg.IdleTimeout,
		UpdateRate:  cfg.UpdateRate,
		UpdateBurst: cfg.UpdateBurst,
	}, transport.WithServerLogger(logger))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "sigsync listening on %s\n", cfg.Addr)
	if err := srv.Run(ctx); err != nil {
		return WrapExitError(ExitCommandError, "server error", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// loadServeConfig reads --config (or the defaults) and applies flag
// overrides.
func loadServeConfig(opts *ServeOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return nil, err
		}
	}
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.Journal != "" {
		cfg.Journal = opts.Journal
	}
	return cfg, nil
}
