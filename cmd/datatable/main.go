package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vango-dev/datatable/internal/config"
	"github.com/vango-dev/datatable/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "datatable",
		Short: "URL-driven server tables",
		Long: `datatable keeps a server-paginated table's page, sort, search and
filters in the URL, and loads each page through a shared query cache.

Commands:
  • serve a demo users API with live WebSocket tables
  • encode and decode table URLs
  • print cache keys
  • fetch one page from any paginated JSON API`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				errors.DisableColors()
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored error output")

	cmd.AddCommand(
		serveCmd(),
		encodeCmd(),
		decodeCmd(),
		keyCmd(),
		fetchCmd(),
		versionCmd(),
	)
	return cmd
}

// newLogger builds the process logger from cfg and installs it as the
// slog default.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// invalidArg returns a T040 error.
func invalidArg(format string, args ...any) error {
	return errors.New(errors.CodeInvalidArgument).WithDetail(fmt.Sprintf(format, args...))
}
