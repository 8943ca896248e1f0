package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"go-meeting-transcriber/internal/app"
	"go-meeting-transcriber/internal/config"
	"go-meeting-transcriber/internal/core/services"
	"go-meeting-transcriber/internal/version"
)

// RunnerFactory builds the record-and-transcribe job for one invocation.
type RunnerFactory func(ctx context.Context, cfg config.Config, opts app.Options, logger *slog.Logger) (services.SessionRunner, error)

type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
	// Lookup replaces os.LookupEnv when set.
	Lookup    func(string) (string, bool)
	NewRunner RunnerFactory
}

// DefaultRunner wires the real adapters.
func DefaultRunner(ctx context.Context, cfg config.Config, opts app.Options, logger *slog.Logger) (services.SessionRunner, error) {
	application, err := app.New(ctx, cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	return application.Pipeline, nil
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.NewRunner == nil {
		deps.NewRunner = DefaultRunner
	}

	var configPath, logLevel string
	opts := &recordOptions{}

	rootCmd := &cobra.Command{
		Use:   "telemost-transcribe [meeting-url]",
		Short: "Join a Telemost call, record it and transcribe the audio",
		Long: "Joins a Yandex Telemost meeting as a muted guest, records the call audio until the\n" +
			"meeting ends (or until Ctrl+C with --no-wait) and prints a JSON record with the transcript.",
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Loader{Lookup: deps.Lookup, ConfigPath: configPath}.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			deps.Config = &cfg
			deps.Logger = newLogger(deps.Stderr, cfg.LogLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runRecord(cmd, deps, opts, args[0])
		},
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")
	rootCmd.SetOut(deps.Stdout)
	rootCmd.SetErr(deps.Stderr)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (TOML or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	opts.bind(rootCmd)

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewVersionCmd(deps))

	return rootCmd
}

func NewVersionCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skip config loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(deps.Stdout, version.Full()+"\n")
			return err
		},
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
