package command

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/joeycumines/plancoord/internal/config"
)

// HelpCommand displays help information for commands.
type HelpCommand struct {
	*BaseCommand
	registry *Registry
}

// NewHelpCommand creates a new help command.
func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{
		BaseCommand: NewBaseCommand(
			"help",
			"Display help information for commands",
			"help [command]",
		),
		registry: registry,
	}
}

// Execute displays help information.
func (c *HelpCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stdout, "plancoord - drive planners through a throttled, budgeted plan lifecycle")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Usage: plancoord <command> [options] [args...]")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Available commands:")

		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		for _, name := range c.registry.List() {
			if cmd, err := c.registry.Get(name); err == nil {
				_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, cmd.Description())
			}
		}
		_ = w.Flush()

		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Use 'plancoord help <command>' for more information about a specific command (includes flags).")
		return nil
	}

	cmd, err := c.registry.Get(args[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Command: %s\n", cmd.Name())
	_, _ = fmt.Fprintf(stdout, "Description: %s\n", cmd.Description())
	_, _ = fmt.Fprintf(stdout, "Usage: plancoord %s\n", cmd.Usage())

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	buf := &bytes.Buffer{}
	fs.SetOutput(buf)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	if buf.Len() > 0 {
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Flags:")
		_, _ = fmt.Fprint(stdout, buf.String())
	}
	return nil
}

// VersionCommand displays version information.
type VersionCommand struct {
	*BaseCommand
	version string
}

// NewVersionCommand creates a new version command.
func NewVersionCommand(version string) *VersionCommand {
	return &VersionCommand{
		BaseCommand: NewBaseCommand(
			"version",
			"Display version information",
			"version",
		),
		version: version,
	}
}

// Execute displays version information.
func (c *VersionCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return errors.New("unexpected arguments")
	}
	_, _ = fmt.Fprintf(stdout, "plancoord version %s\n", c.version)
	return nil
}

// ConfigCommand shows, validates and edits configuration.
type ConfigCommand struct {
	*BaseCommand
	config     *config.Config
	configPath string
	showAll    bool
}

// NewConfigCommand creates a new config command. An empty configPath
// resolves the default location when a value is set.
func NewConfigCommand(cfg *config.Config, configPath string) *ConfigCommand {
	return &ConfigCommand{
		BaseCommand: NewBaseCommand(
			"config",
			"Manage configuration settings",
			"config [options] [validate|schema|<key> [value]]",
		),
		config:     cfg,
		configPath: configPath,
	}
}

// SetupFlags configures the flags for the config command.
func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.showAll, "all", false, "Show all configuration, including sections and effective coordinator settings")
}

// Execute manages configuration.
func (c *ConfigCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	schema := config.DefaultSchema()

	if len(args) == 0 {
		if !c.showAll {
			_, _ = fmt.Fprintln(stdout, "Configuration management:")
			_, _ = fmt.Fprintln(stdout, "  config <key>          - Get configuration value")
			_, _ = fmt.Fprintln(stdout, "  config <key> <value>  - Set configuration value")
			_, _ = fmt.Fprintln(stdout, "  config --all          - Show all configuration")
			_, _ = fmt.Fprintln(stdout, "  config validate       - Validate configuration")
			_, _ = fmt.Fprintln(stdout, "  config schema         - Show configuration schema")
			return nil
		}
		c.showConfig(stdout, schema)
		return nil
	}

	switch args[0] {
	case "validate":
		return c.executeValidate(stdout, schema)
	case "schema":
		_, _ = fmt.Fprint(stdout, schema.FormatHelp())
		return nil
	}

	switch len(args) {
	case 1:
		key := args[0]
		value := schema.Resolve(c.config, key)
		if _, exists := c.config.GetGlobalOption(key); value != "" || exists {
			_, _ = fmt.Fprintf(stdout, "%s: %s\n", key, value)
		} else {
			_, _ = fmt.Fprintf(stdout, "Configuration key '%s' not found\n", key)
		}
		return nil

	case 2:
		key, value := args[0], args[1]
		if schema.Lookup("", key) == nil {
			_, _ = fmt.Fprintf(stderr, "Warning: %q is not a known global option\n", key)
		}
		c.config.SetGlobalOption(key, value)

		path := c.configPath
		if path == "" {
			path, _ = config.GetConfigPath()
		}
		if path != "" {
			if err := config.SetKeyInFile(path, key, value); err != nil {
				_, _ = fmt.Fprintf(stderr, "Warning: failed to persist config to disk: %v\n", err)
			}
		}
		_, _ = fmt.Fprintf(stdout, "Set configuration: %s = %s\n", key, value)
		return nil
	}

	_, _ = fmt.Fprintln(stderr, "Invalid number of arguments")
	return errors.New("invalid arguments")
}

func (c *ConfigCommand) showConfig(stdout io.Writer, schema *config.ConfigSchema) {
	_, _ = fmt.Fprintln(stdout, "Global configuration:")
	for _, opt := range schema.SectionOptions("") {
		_, _ = fmt.Fprintf(stdout, "  %s: %s\n", opt.Key, schema.Resolve(c.config, opt.Key))
	}

	cc := c.config.Coordinator
	_, _ = fmt.Fprintf(stdout, "\n[%s]\n", config.CoordinatorSection)
	_, _ = fmt.Fprintf(stdout, "  min-replan-interval-ticks: %d\n", cc.MinReplanIntervalTicks)
	_, _ = fmt.Fprintf(stdout, "  max-plan-starts-per-key: %d\n", cc.MaxPlanStartsPerKey)
	_, _ = fmt.Fprintf(stdout, "  cache-enabled: %t\n", cc.CacheEnabled)

	sections := make([]string, 0, len(c.config.Commands))
	for name := range c.config.Commands {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	for _, name := range sections {
		_, _ = fmt.Fprintf(stdout, "\n[%s]\n", name)
		keys := make([]string, 0, len(c.config.Commands[name]))
		for key := range c.config.Commands[name] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			_, _ = fmt.Fprintf(stdout, "  %s: %s\n", key, c.config.Commands[name][key])
		}
	}
}

func (c *ConfigCommand) executeValidate(stdout io.Writer, schema *config.ConfigSchema) error {
	issues := config.ValidateConfig(c.config, schema)
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid.")
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "Configuration has %d issue(s):\n", len(issues))
	for _, issue := range issues {
		_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
	}
	return nil
}
