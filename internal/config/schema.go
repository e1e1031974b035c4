package config

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// OptionType represents the expected type of a configuration option value.
type OptionType string

const (
	// TypeString is a plain string value (the default for all config values).
	TypeString OptionType = "string"
	// TypeBool is a boolean value (true/false/yes/no/1/0/on/off).
	TypeBool OptionType = "bool"
	// TypeInt is an integer value.
	TypeInt OptionType = "int"
	// TypeUint is a non-negative integer that fits in 32 bits.
	TypeUint OptionType = "uint"
	// TypeEnum is one of ConfigOption.Choices.
	TypeEnum OptionType = "enum"
)

// ConfigOption declares a single configuration option with its type, default,
// documentation, and environment variable override.
type ConfigOption struct {
	// Key is the option name as it appears in the config file (kebab-case).
	Key string
	// Type is the expected value type for validation.
	Type OptionType
	// Choices lists the accepted values of a TypeEnum option.
	Choices []string
	// Default is the default value as a string, or "" for no default.
	Default string
	// Description is a human-readable description of the option.
	Description string
	// Section is "" for global options, or a command/section name.
	Section string
	// EnvVar is the environment variable that overrides this option, or "".
	EnvVar string
}

// ConfigSchema declares the expected configuration options for the application.
// It is used for validation, documentation, typed getters, and env var mapping.
type ConfigSchema struct {
	options   []*ConfigOption
	byKey     map[string]*ConfigOption
	bySection map[string]map[string]*ConfigOption
}

// NewSchema creates a new empty ConfigSchema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{
		byKey:     make(map[string]*ConfigOption),
		bySection: make(map[string]map[string]*ConfigOption),
	}
}

// Register adds a ConfigOption to the schema. Duplicate keys within the same
// section are silently overwritten (last registration wins).
func (s *ConfigSchema) Register(opt ConfigOption) {
	ref := new(ConfigOption)
	*ref = opt
	s.options = append(s.options, ref)
	if opt.Section == "" {
		s.byKey[opt.Key] = ref
		return
	}
	if s.bySection[opt.Section] == nil {
		s.bySection[opt.Section] = make(map[string]*ConfigOption)
	}
	s.bySection[opt.Section][opt.Key] = ref
}

// RegisterAll adds multiple ConfigOptions to the schema.
func (s *ConfigSchema) RegisterAll(opts []ConfigOption) {
	for _, opt := range opts {
		s.Register(opt)
	}
}

// Options returns every registered option, in registration order.
func (s *ConfigSchema) Options() []ConfigOption {
	out := make([]ConfigOption, 0, len(s.options))
	for _, o := range s.options {
		out = append(out, *o)
	}
	return out
}

// Lookup returns the ConfigOption for a key in a given section ("" for global).
// Returns nil if the key is not registered.
func (s *ConfigSchema) Lookup(section, key string) *ConfigOption {
	if section == "" {
		return s.byKey[key]
	}
	return s.bySection[section][key]
}

// IsKnown returns true if the key is registered in the given section.
// Global keys are known in every section.
func (s *ConfigSchema) IsKnown(section, key string) bool {
	if section != "" && s.bySection[section][key] != nil {
		return true
	}
	return s.byKey[key] != nil
}

// SectionOptions returns all registered options for a section ("" for global).
func (s *ConfigSchema) SectionOptions(section string) []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, *o)
		}
	}
	return out
}

// Sections returns the sorted non-empty section names.
func (s *ConfigSchema) Sections() []string {
	out := make([]string, 0, len(s.bySection))
	for sec := range s.bySection {
		out = append(out, sec)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the effective value for a global config key by checking,
// in order: the schema's environment variable, the config value, the schema
// default. Returns "" if the key is not found anywhere.
func (s *ConfigSchema) Resolve(c *Config, key string) string {
	opt := s.Lookup("", key)
	if opt != nil && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if v, ok := c.GetGlobalOption(key); ok {
		return v
	}
	if opt != nil {
		return opt.Default
	}
	return ""
}

// ResolveCommand is Resolve for a command section, falling back to the
// global value and then to the section or global default.
func (s *ConfigSchema) ResolveCommand(c *Config, section, key string) string {
	if v, ok := c.GetCommandOption(section, key); ok {
		return v
	}
	if opt := s.Lookup(section, key); opt != nil {
		return opt.Default
	}
	return s.Resolve(c, key)
}

// ValidateConfig checks a loaded Config against the schema and returns a
// sorted list of human-readable issues: unknown options and values that do
// not match the declared type.
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string

	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := validateValue(opt, value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}

	for section, opts := range c.Commands {
		for key, value := range opts {
			if !s.IsKnown(section, key) {
				issues = append(issues, fmt.Sprintf("unknown option for command %q: %q (value: %q)", section, key, value))
				continue
			}
			opt := s.Lookup(section, key)
			if opt == nil {
				opt = s.Lookup("", key)
			}
			if err := validateValue(opt, value); err != nil {
				issues = append(issues, fmt.Sprintf("option %q in [%s]: %v", key, section, err))
			}
		}
	}

	sort.Strings(issues)
	return issues
}

func validateValue(opt *ConfigOption, value string) error {
	switch opt.Type {
	case TypeString, "":
		return nil
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeUint:
		if _, err := parseUint32(value); err != nil {
			return fmt.Errorf("expected uint, got %q", value)
		}
	case TypeEnum:
		if !slices.Contains(opt.Choices, strings.ToLower(value)) {
			return fmt.Errorf("expected one of %s, got %q", strings.Join(opt.Choices, "|"), value)
		}
	default:
		return fmt.Errorf("unknown option type %q", opt.Type)
	}
	return nil
}

// GetString returns the global option value for key, or "" if not set.
func (c *Config) GetString(key string) string {
	v, _ := c.GetGlobalOption(key)
	return v
}

// GetBool returns the global option value for key parsed as a boolean. Returns
// false if the key is not set or the value cannot be parsed.
func (c *Config) GetBool(key string) bool {
	b, err := parseBool(c.GetString(key))
	return err == nil && b
}

// GetInt returns the global option value for key parsed as an integer. Returns
// 0 if the key is not set or the value cannot be parsed.
func (c *Config) GetInt(key string) int {
	i, err := strconv.Atoi(c.GetString(key))
	if err != nil {
		return 0
	}
	return i
}

// FormatHelp returns a human-readable reference of all registered options,
// grouped by section.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder

	if globals := s.SectionOptions(""); len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}

	for _, sec := range s.Sections() {
		fmt.Fprintf(&b, "\n[%s] Options:\n", sec)
		for _, o := range s.SectionOptions(sec) {
			writeOptionHelp(&b, o)
		}
	}

	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	fmt.Fprintf(b, "  %-30s %s", o.Key, o.Description)
	parts := make([]string, 0, 3)
	switch o.Type {
	case TypeString, "":
	case TypeEnum:
		parts = append(parts, "one of: "+strings.Join(o.Choices, ", "))
	default:
		parts = append(parts, fmt.Sprintf("type: %s", o.Type))
	}
	if o.Default != "" {
		parts = append(parts, fmt.Sprintf("default: %s", o.Default))
	}
	if o.EnvVar != "" {
		parts = append(parts, fmt.Sprintf("env: %s", o.EnvVar))
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// DefaultSchema returns the schema of every known plancoord option. It is
// the single source of truth for option names, types, defaults and
// environment overrides.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.RegisterAll(defaultGlobalOptions())
	s.RegisterAll(defaultSectionOptions())
	return s
}

func defaultGlobalOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "color", Type: TypeEnum, Choices: []string{"auto", "always", "never"}, Default: "auto", Description: "Colour mode for terminal output", EnvVar: "PLANCOORD_COLOR"},

		{Key: "log.level", Type: TypeEnum, Choices: []string{"debug", "info", "warn", "error"}, Default: "warn", Description: "Log level", EnvVar: "PLANCOORD_LOG_LEVEL"},
		{Key: "log.file", Type: TypeString, Description: "Log file path; stderr when unset", EnvVar: "PLANCOORD_LOG_FILE"},
		{Key: "log.format", Type: TypeEnum, Choices: []string{"text", "json"}, Default: "text", Description: "Log record format"},

		{Key: "trace.capacity", Type: TypeInt, Default: "4096", Description: "Events retained by the run trace recorder"},
	}
}

func defaultSectionOptions() []ConfigOption {
	return []ConfigOption{
		// parsed into Config.Coordinator; listed here for 'config schema'
		{Key: "min-replan-interval-ticks", Section: CoordinatorSection, Type: TypeUint, Default: "0", Description: "Minimum ticks between plan starts while a replan is pending"},
		{Key: "max-plan-starts-per-key", Section: CoordinatorSection, Type: TypeUint, Default: "0", Description: "Plan starts allowed per unchanged planning context (0 = unlimited)"},
		{Key: "cache-enabled", Section: CoordinatorSection, Type: TypeBool, Default: "true", Description: "Reuse the planner result while the planning context is unchanged"},

		{Key: "agent", Section: "run", Type: TypeString, Description: "Override the scenario's agent key"},
		{Key: "trace", Section: "run", Type: TypeBool, Default: "true", Description: "Print the per-tick trace table"},
		{Key: "metrics", Section: "run", Type: TypeBool, Default: "false", Description: "Count coordinator events with the global OpenTelemetry meter"},
	}
}

// ResolveCommandBool is ResolveCommand parsed as a boolean; unparsable
// values read as false.
func (s *ConfigSchema) ResolveCommandBool(c *Config, section, key string) bool {
	b, err := parseBool(s.ResolveCommand(c, section, key))
	return err == nil && b
}
