package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joeycumines/plancoord/internal/coordinator"
)

// CoordinatorSection is the section holding coordinator defaults.
const CoordinatorSection = "coordinator"

// Config represents the application configuration.
type Config struct {
	// Global options that apply to all commands
	Global map[string]string
	// Command-specific options
	Commands map[string]map[string]string
	// Coordinator holds the parsed [coordinator] section.
	Coordinator CoordinatorConfig
	// Warnings contains any warnings generated during config loading
	Warnings []string
}

// CoordinatorConfig mirrors coordinator.Options. MaxPlanStartsPerKey of zero
// means unlimited.
type CoordinatorConfig struct {
	MinReplanIntervalTicks uint32
	MaxPlanStartsPerKey    uint32
	CacheEnabled           bool
}

// NewConfig creates a new empty configuration.
func NewConfig() *Config {
	return &Config{
		Global:   make(map[string]string),
		Commands: make(map[string]map[string]string),
		Coordinator: CoordinatorConfig{
			CacheEnabled: true,
		},
		Warnings: make([]string, 0),
	}
}

// Load loads configuration from the default config file path.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads configuration from the specified file path. A missing
// file yields an empty configuration.
//
// Symlinks are rejected.
func LoadFromPath(path string) (*Config, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader loads configuration from an io.Reader.
//
// The format is line based: "optionName remainingLineIsTheValue", with
// "[section]" headers and "#" comments. Options before the first header are
// global.
func LoadFromReader(r io.Reader) (*Config, error) {
	config := NewConfig()
	scanner := bufio.NewScanner(r)

	var section string
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(strings.Trim(line, "[]"))
			if section != CoordinatorSection && config.Commands[section] == nil {
				config.Commands[section] = make(map[string]string)
			}
			continue
		}

		name, value, _ := strings.Cut(line, " ")
		value = strings.TrimSpace(value)

		switch section {
		case "":
			config.Global[name] = value
		case CoordinatorSection:
			if err := parseCoordinatorOption(&config.Coordinator, name, value); err != nil {
				return nil, fmt.Errorf("line %d: invalid coordinator option %q: %w", lineNo, name, err)
			}
		default:
			config.Commands[section][name] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	for _, issue := range ValidateConfig(config, DefaultSchema()) {
		config.addWarning("%s", issue)
	}

	return config, nil
}

func (c *Config) addWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	slog.Warn("[Config] " + msg)
}

// parseCoordinatorOption parses one [coordinator] line:
//   - min-replan-interval-ticks <uint32> (default: 0, no throttle)
//   - max-plan-starts-per-key <uint32> (default: 0, unlimited)
//   - cache-enabled <bool> (default: true)
func parseCoordinatorOption(cc *CoordinatorConfig, name, value string) error {
	switch name {
	case "min-replan-interval-ticks":
		n, err := parseUint32(value)
		if err != nil {
			return err
		}
		cc.MinReplanIntervalTicks = n

	case "max-plan-starts-per-key":
		n, err := parseUint32(value)
		if err != nil {
			return err
		}
		cc.MaxPlanStartsPerKey = n

	case "cache-enabled":
		enabled, err := parseBool(value)
		if err != nil {
			return err
		}
		cc.CacheEnabled = enabled

	default:
		return fmt.Errorf("unknown coordinator option: %s", name)
	}
	return nil
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid unsigned integer value %q: %w", s, err)
	}
	return uint32(n), nil
}

// parseBool parses a boolean value from string.
// Accepts: true, false, 1, 0, yes, no, on, off (case-insensitive)
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// CoordinatorOptions converts the [coordinator] section.
func (c *Config) CoordinatorOptions() []coordinator.Option {
	cc := c.Coordinator
	opts := []coordinator.Option{
		coordinator.WithMinReplanInterval(cc.MinReplanIntervalTicks),
		coordinator.WithCache(cc.CacheEnabled),
	}
	if cc.MaxPlanStartsPerKey > 0 {
		opts = append(opts, coordinator.WithMaxPlanStartsPerKey(cc.MaxPlanStartsPerKey))
	}
	return opts
}

// GetGlobalOption returns a global configuration option.
func (c *Config) GetGlobalOption(name string) (string, bool) {
	value, exists := c.Global[name]
	return value, exists
}

// GetCommandOption returns a command-specific configuration option.
// It first checks command-specific options, then falls back to global options.
func (c *Config) GetCommandOption(command, name string) (string, bool) {
	if cmdOptions, exists := c.Commands[command]; exists {
		if value, exists := cmdOptions[name]; exists {
			return value, true
		}
	}
	return c.GetGlobalOption(name)
}

// SetGlobalOption sets a global configuration option.
func (c *Config) SetGlobalOption(name, value string) {
	c.Global[name] = value
}

// SetCommandOption sets a command-specific configuration option.
func (c *Config) SetCommandOption(command, name, value string) {
	if c.Commands[command] == nil {
		c.Commands[command] = make(map[string]string)
	}
	c.Commands[command][name] = value
}

// HasWarnings returns true if there are any warnings.
func (c *Config) HasWarnings() bool {
	return len(c.Warnings) > 0
}
