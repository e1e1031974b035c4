package config

import (
	"strings"
	"testing"
)

func TestSchemaRegisterAndLookup(t *testing.T) {
	t.Parallel()
	s := NewSchema()
	if len(s.Options()) != 0 {
		t.Fatalf("expected empty options, got %d", len(s.Options()))
	}

	s.RegisterAll([]ConfigOption{
		{Key: "color", Type: TypeString, Default: "auto"},
		{Key: "agent", Type: TypeString, Section: "run"},
		{Key: "color", Type: TypeString, Default: "never"},
	})

	if got := len(s.Options()); got != 3 {
		t.Fatalf("expected 3 options, got %d", got)
	}
	if opt := s.Lookup("", "color"); opt == nil || opt.Default != "never" {
		t.Fatalf("expected last registration to win, got %+v", opt)
	}
	if s.Lookup("run", "color") != nil {
		t.Fatalf("section lookup must not fall back to globals")
	}
	if !s.IsKnown("run", "color") {
		t.Fatalf("global keys are known in every section")
	}
	if !s.IsKnown("run", "agent") || s.IsKnown("", "agent") {
		t.Fatalf("section keys are only known in their section")
	}
	if got := s.Sections(); len(got) != 1 || got[0] != "run" {
		t.Fatalf("unexpected sections %v", got)
	}
}

func TestValidateValue(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		opt   ConfigOption
		value string
		ok    bool
	}{
		{ConfigOption{Type: TypeString}, "anything", true},
		{ConfigOption{Type: TypeBool}, "yes", true},
		{ConfigOption{Type: TypeBool}, "maybe", false},
		{ConfigOption{Type: TypeInt}, "-3", true},
		{ConfigOption{Type: TypeInt}, "3.5", false},
		{ConfigOption{Type: TypeUint}, "7", true},
		{ConfigOption{Type: TypeUint}, "-7", false},
		{ConfigOption{Type: TypeEnum, Choices: []string{"a", "b"}}, "B", true},
		{ConfigOption{Type: TypeEnum, Choices: []string{"a", "b"}}, "c", false},
		{ConfigOption{Type: "weird"}, "x", false},
	} {
		err := validateValue(&tc.opt, tc.value)
		if (err == nil) != tc.ok {
			t.Errorf("%s %q: got err=%v, want ok=%v", tc.opt.Type, tc.value, err, tc.ok)
		}
	}
}

func TestResolve(t *testing.T) {
	s := DefaultSchema()
	cfg := NewConfig()

	t.Setenv("PLANCOORD_LOG_LEVEL", "")
	if got := s.Resolve(cfg, "log.format"); got != "text" {
		t.Fatalf("expected schema default, got %q", got)
	}
	cfg.SetGlobalOption("log.format", "json")
	if got := s.Resolve(cfg, "log.format"); got != "json" {
		t.Fatalf("expected config value, got %q", got)
	}

	cfg.SetGlobalOption("log.level", "info")
	t.Setenv("PLANCOORD_LOG_LEVEL", "debug")
	if got := s.Resolve(cfg, "log.level"); got != "debug" {
		t.Fatalf("expected env override, got %q", got)
	}

	if got := s.Resolve(cfg, "nope"); got != "" {
		t.Fatalf("expected empty value for unknown key, got %q", got)
	}
}

func TestResolveCommand(t *testing.T) {
	t.Parallel()
	s := DefaultSchema()
	cfg := NewConfig()

	if got := s.ResolveCommand(cfg, "run", "trace"); got != "true" {
		t.Fatalf("expected section default, got %q", got)
	}
	cfg.SetCommandOption("run", "trace", "false")
	if got := s.ResolveCommand(cfg, "run", "trace"); got != "false" {
		t.Fatalf("expected section value, got %q", got)
	}
	cfg.SetGlobalOption("trace.capacity", "16")
	if got := s.ResolveCommand(cfg, "run", "trace.capacity"); got != "16" {
		t.Fatalf("expected global fallback, got %q", got)
	}
}

func TestTypedGetters(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	cfg.SetGlobalOption("b", "on")
	cfg.SetGlobalOption("i", "42")
	cfg.SetGlobalOption("bad", "x")

	if !cfg.GetBool("b") || cfg.GetBool("bad") || cfg.GetBool("missing") {
		t.Errorf("GetBool mismatch")
	}
	if cfg.GetInt("i") != 42 || cfg.GetInt("bad") != 0 {
		t.Errorf("GetInt mismatch")
	}
	if cfg.GetString("missing") != "" {
		t.Errorf("GetString mismatch")
	}
}

func TestDefaultSchemaFormatHelp(t *testing.T) {
	t.Parallel()
	help := DefaultSchema().FormatHelp()
	for _, want := range []string{
		"Global Options:",
		"log.level",
		"one of: debug, info, warn, error",
		"env: PLANCOORD_LOG_LEVEL",
		"[coordinator] Options:",
		"min-replan-interval-ticks",
		"type: uint",
		"[run] Options:",
	} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}
}

func TestDefaultSchemaCoversCoordinatorParser(t *testing.T) {
	t.Parallel()
	for _, opt := range DefaultSchema().SectionOptions(CoordinatorSection) {
		var cc CoordinatorConfig
		if err := parseCoordinatorOption(&cc, opt.Key, opt.Default); err != nil {
			t.Errorf("schema default for %q does not parse: %v", opt.Key, err)
		}
	}
}
