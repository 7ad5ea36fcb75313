// Package cmd implements the hotswap command line: serving and publishing
// hot updates, inspecting update files and following a published update
// stream with a mirror runtime.
package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/hotswap/config"
)

// EnvPrefix prefixes every environment override, e.g. HOTSWAP_LOG_LEVEL.
const EnvPrefix = "HOTSWAP"

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("hotswap v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	noColor    bool
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "hotswap",
		Short: "Hotswap - hot module replacement tooling",
		Long: `Hotswap publishes, serves and inspects hot updates, and can follow a
published update stream with a mirror runtime.`,
		Version:       PrintVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				color.NoColor = true
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (.yaml, .toml or .hcl)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (text|json)")
	cmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewServeCommand(flags))
	cmd.AddCommand(NewPublishCommand(flags))
	cmd.AddCommand(NewInspectCommand())
	cmd.AddCommand(NewFollowCommand(flags))

	return cmd
}

// load reads the config file, applies environment overrides and flags, and
// validates the result.
func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, EnvPrefix); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger creates a slog.Logger without touching the global one.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}
