package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jholhewres/gobot/pkg/gobot/config"
)

// defaultLogFile receives the log when --logfile is set and the config
// names no file.
const defaultLogFile = "gobot.log"

// loadConfig loads the config from --config or the standard locations.
// It returns the path it loaded, empty when the defaults are used.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return config.DefaultConfig(), "", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger from the config and global flags.
// The returned cleanup closes the log file, if one was opened.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, func(), error) {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	toFile, _ := cmd.Root().PersistentFlags().GetBool("logfile")

	level := parseLevel(cfg.Logging.Level)
	if verbose {
		level = slog.LevelDebug
	}

	var (
		out     io.Writer = os.Stderr
		cleanup           = func() {}
	)
	if toFile || cfg.Logging.File != "" {
		path := cfg.Logging.File
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		cleanup = func() { _ = f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
