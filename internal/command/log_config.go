package command

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joeycumines/plancoord/internal/config"
)

// logConfig holds resolved logging configuration.
type logConfig struct {
	level  slog.Level
	json   bool
	path   string
	output io.Writer
	closer io.Closer
}

// resolveLogConfig resolves logging from flags, then config (including its
// environment overrides), then schema defaults. Records go to stderr unless
// a log file is configured; the caller must close the returned closer.
func resolveLogConfig(flagLevel, flagFile string, cfg *config.Config, stderr io.Writer) (logConfig, error) {
	schema := config.DefaultSchema()
	if cfg == nil {
		cfg = config.NewConfig()
	}
	lc := logConfig{output: stderr}

	levelStr := flagLevel
	if levelStr == "" {
		levelStr = schema.Resolve(cfg, "log.level")
	}
	level, err := parseLevel(levelStr)
	if err != nil {
		return lc, err
	}
	lc.level = level

	switch format := strings.ToLower(schema.Resolve(cfg, "log.format")); format {
	case "", "text":
	case "json":
		lc.json = true
	default:
		return lc, fmt.Errorf("invalid log format: %s", format)
	}

	lc.path = flagFile
	if lc.path == "" {
		lc.path = schema.Resolve(cfg, "log.file")
	}
	if lc.path != "" {
		f, err := os.OpenFile(lc.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return lc, fmt.Errorf("failed to open log file %s: %w", lc.path, err)
		}
		lc.output = f
		lc.closer = f
	}

	return lc, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

func (lc logConfig) handler() slog.Handler {
	opts := &slog.HandlerOptions{Level: lc.level}
	if lc.json {
		return slog.NewJSONHandler(lc.output, opts)
	}
	return slog.NewTextHandler(lc.output, opts)
}

// SetupLogging installs the default slog logger described by cfg, with
// optional flag overrides. The returned function releases the log file.
func SetupLogging(flagLevel, flagFile string, cfg *config.Config, stderr io.Writer) (func() error, error) {
	lc, err := resolveLogConfig(flagLevel, flagFile, cfg, stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(lc.handler()))
	return func() error {
		if lc.closer == nil {
			return nil
		}
		return lc.closer.Close()
	}, nil
}
