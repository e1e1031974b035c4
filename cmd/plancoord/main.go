package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/plancoord/internal/command"
	"github.com/joeycumines/plancoord/internal/config"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, command.ErrGoalNotReached):
		os.Exit(2)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return err
	}

	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		// keep going on defaults so 'config' can still repair the file
		_, _ = fmt.Fprintf(stderr, "Warning: ignoring config %s: %v\n", configPath, err)
		cfg = config.NewConfig()
	}

	closeLog, err := command.SetupLogging("", "", cfg, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLog(); err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: closing log file: %v\n", err)
		}
	}()
	slog.Debug("config loaded", "path", configPath, "warnings", len(cfg.Warnings))

	registry := command.NewRegistry()
	registry.Register(command.NewHelpCommand(registry))
	registry.Register(command.NewVersionCommand(version))
	registry.Register(command.NewConfigCommand(cfg, configPath))
	registry.Register(command.NewRunCommand(cfg))

	return registry.Dispatch(ctx, args, stdout, stderr)
}
