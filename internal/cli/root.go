package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tapedeck/internal/config"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

// NewRootCmd creates the root tapedeck command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tapedeck",
		Short: "Record and replay HTTP traffic through a transparent proxy",
		Long: `Tapedeck sits between a client and an upstream HTTP server. Every request
is forwarded unchanged and the exchange is appended to a durable history,
which can be browsed page by page and replayed against the upstream.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger(opts.logLevel, opts.logFormat, cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", config.FormatConsole, "log format (console, json)")

	root.AddCommand(
		newServeCmd(opts),
		newHistoryCmd(),
		newReplayCmd(),
		newConfigCmd(),
	)

	return root
}

// setupLogger configures the global zerolog logger.
func setupLogger(level, format string, out io.Writer) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer
	switch format {
	case config.FormatConsole:
		output = zerolog.ConsoleWriter{Out: out}
	case config.FormatJSON:
		output = out
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger().Level(parsedLevel)
	zerolog.SetGlobalLevel(parsedLevel)
	return nil
}
