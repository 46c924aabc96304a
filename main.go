package main

import (
	"fmt"
	"log/slog"
	"os"

	"amd-helper/config"
	"amd-helper/models"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	cfgPath  string
	debug    bool
	cfg      *config.Config
	logger   *slog.Logger
	logLevel = new(slog.LevelVar)
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           models.AppName,
		Short:         "Read a screen region out loud: capture, OCR, speech",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath(), "path to config.toml")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
	cmd.AddCommand(
		newServeCmd(),
		newTriggerCmd(),
		newCancelCmd(),
		newStatusCmd(),
		newEngineCmd(),
		newHistoryCmd(),
	)
	return cmd
}

// setup loads the config and opens the log file. A broken config is not fatal.
func setup() error {
	var err error
	cfg, err = config.LoadConfig(cfgPath)
	logfile, ferr := os.OpenFile(cfg.LogFile,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if ferr != nil {
		return fmt.Errorf("failed to open log file %s: %w", cfg.LogFile, ferr)
	}
	logLevel.Set(parseLevel(cfg.LogLevel))
	if debug {
		logLevel.Set(slog.LevelDebug)
	}
	logger = slog.New(slog.NewTextHandler(logfile, &slog.HandlerOptions{Level: logLevel}))
	if err != nil {
		logger.Warn("using default config", "path", cfgPath, "error", err)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
