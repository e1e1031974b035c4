package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/joeycumines/plancoord/internal/config"
	"github.com/joeycumines/plancoord/internal/coordinator"
	"github.com/joeycumines/plancoord/internal/scenario"
	"github.com/joeycumines/plancoord/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrGoalNotReached is returned by the run command when the last tick did
// not report success.
var ErrGoalNotReached = errors.New("scenario did not end in success")

// meterName scopes the run command's instruments.
const meterName = "github.com/joeycumines/plancoord"

// RunCommand simulates a scenario file and prints the per-tick trace.
type RunCommand struct {
	*BaseCommand
	config *config.Config

	agent    string
	color    string
	quiet    bool
	metrics  bool
	interval int
	budget   int
	noCache  bool
}

// NewRunCommand creates a new run command.
func NewRunCommand(cfg *config.Config) *RunCommand {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Simulate a scenario and print the coordinator trace",
			"run [options] <scenario.yaml>",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the run command. Unset flags defer to
// the [run] and [coordinator] configuration sections.
func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.agent, "agent", "", "Override the scenario's agent key")
	fs.StringVar(&c.color, "color", "", "Colour mode: auto, always, never")
	fs.BoolVar(&c.quiet, "quiet", false, "Print only the summary")
	fs.BoolVar(&c.metrics, "metrics", false, "Count coordinator events with the global OpenTelemetry meter")
	fs.IntVar(&c.interval, "min-replan-interval", -1, "Minimum ticks between plan starts while a replan is pending")
	fs.IntVar(&c.budget, "max-plan-starts", -1, "Plan starts allowed per unchanged planning context (0 = unlimited)")
	fs.BoolVar(&c.noCache, "no-cache", false, "Disable planner result caching")
}

// Execute runs the scenario.
func (c *RunCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: plancoord "+c.Usage())
		return errors.New("expected exactly one scenario file")
	}

	sc, err := scenario.LoadFile(args[0])
	if err != nil {
		return err
	}

	schema := config.DefaultSchema()
	if agent := c.agent; agent != "" {
		sc.Agent = agent
	} else if agent := schema.ResolveCommand(c.config, "run", "agent"); agent != "" {
		sc.Agent = agent
	}

	opts, err := c.coordinatorOptions(sc)
	if err != nil {
		return err
	}

	rec := telemetry.NewRecorder(c.config.GetInt("trace.capacity"))
	sinks := []telemetry.Sink{rec, &telemetry.SlogSink{Level: slog.LevelDebug, Agent: sc.Agent}}
	if c.metrics || schema.ResolveCommandBool(c.config, "run", "metrics") {
		sink, err := telemetry.NewOTelSink(otel.GetMeterProvider().Meter(meterName),
			attribute.String("scenario", sc.Name))
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}

	report, runErr := scenario.Run(ctx, sc, telemetry.Multi(sinks...), opts...)
	if report == nil {
		return runErr
	}

	colorMode := c.color
	if colorMode == "" {
		colorMode = schema.Resolve(c.config, "color")
	}
	color := colorEnabled(colorMode, stdout)

	if !c.quiet && schema.ResolveCommandBool(c.config, "run", "trace") {
		renderTrace(stdout, report, color)
	}
	renderSummary(stdout, report, rec, color)

	if runErr != nil {
		return runErr
	}
	if !report.Succeeded() {
		return ErrGoalNotReached
	}
	return nil
}

// coordinatorOptions layers flags over the [coordinator] section. A flag
// also clears the matching scenario override, so the command line wins.
func (c *RunCommand) coordinatorOptions(sc *scenario.Scenario) ([]coordinator.Option, error) {
	if c.interval < -1 {
		return nil, fmt.Errorf("-min-replan-interval must be -1 or non-negative, got %d", c.interval)
	}
	if c.budget < -1 {
		return nil, fmt.Errorf("-max-plan-starts must be -1 or non-negative, got %d", c.budget)
	}
	if int64(c.interval) > math.MaxUint32 || int64(c.budget) > math.MaxUint32 {
		return nil, errors.New("coordinator limits must fit in 32 bits")
	}

	opts := c.config.CoordinatorOptions()
	if c.interval >= 0 {
		opts = append(opts, coordinator.WithMinReplanInterval(uint32(c.interval)))
		sc.Options.MinReplanIntervalTicks = nil
	}
	switch {
	case c.budget > 0:
		opts = append(opts, coordinator.WithMaxPlanStartsPerKey(uint32(c.budget)))
		sc.Options.MaxPlanStartsPerKey = nil
	case c.budget == 0:
		opts = append(opts, func(o *coordinator.Options) {
			o.LimitPlanStarts = false
			o.MaxPlanStartsPerKey = 0
		})
		sc.Options.MaxPlanStartsPerKey = nil
	}
	if c.noCache {
		opts = append(opts, coordinator.WithCache(false))
		sc.Options.CacheEnabled = nil
	}
	return opts, nil
}
