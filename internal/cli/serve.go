package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/clock"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/config"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/history"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/proxy"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/replay"
	"github.com/SmitUplenchwar2687/Tapedeck/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		configPath string
		addr       string
		timeout    time.Duration
		hist       = defaultHistoryOptions()
	)

	cmd := &cobra.Command{
		Use:   "serve [UPSTREAM_URL]",
		Short: "Start the recording proxy in front of an upstream server",
		Long: `Starts an HTTP proxy that forwards every request to the upstream and
records the exchange in the history.

Endpoints:
  ANY  /{path}           Forwarded to the upstream (GET, POST, PUT, PATCH, DELETE)
  GET  /__history        Recorded exchanges (?limit=&after=&before=&unique=)
  POST /__replay         Replay an entry ({"id": "..."} or {"index": n})
  GET  /__health         Health check and history size
  GET  /__metrics        Prometheus metrics
  GET  /__dashboard/     Live history view
  WS   /__ws             WebSocket feed of recorded exchanges`,
		Example: `  tapedeck serve http://localhost:8080
  tapedeck serve https://api.example.com --addr :9000 --upstream-timeout 30s
  tapedeck serve --config tapedeck.yaml
  tapedeck serve http://localhost:8080 --history sqlite --history-sqlite history.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				cfg.Upstream.URL = args[0]
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("upstream-timeout") {
				cfg.Upstream.Timeout = timeout
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = root.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = root.logFormat
			}
			hist.applyConfigIfUnset(cmd, &cfg.History)
			if err := hist.normalize(); err != nil {
				return err
			}
			cfg.History = hist.toConfig()

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := setupLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()); err != nil {
				return err
			}

			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&addr, "addr", config.Default().Server.Addr, "address to listen on")
	cmd.Flags().DurationVar(&timeout, "upstream-timeout", 0, "timeout for each upstream call (0 = none)")
	hist.addFlags(cmd)

	return cmd
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

// runServer serves cfg until ctx is cancelled.
func runServer(ctx context.Context, cfg config.Config) error {
	logger := log.Logger

	l, err := openHistoryLog(ctx, cfg.History)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	store := history.Open(ctx, l, logger.With().Str("component", "history").Logger())
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("closing history")
		}
	}()

	clk := clock.NewRealClock()
	up, err := proxy.NewUpstream(cfg.Upstream.URL, cfg.Upstream.Timeout, clk)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server.Addr, store,
		proxy.NewForwarder(up, store, clk, logger.With().Str("component", "proxy").Logger()),
		replay.New(up, store, clk, logger.With().Str("component", "replay").Logger()),
		server.Options{
			Hub:    server.NewHub(logger),
			Logger: logger,
			Clock:  clk,
		},
	)

	logger.Info().
		Str("upstream", up.BaseURL()).
		Str("history", cfg.History.Backend).
		Int("entries", store.Len()).
		Msg("recording proxy ready")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
