package command

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"
)

type stubCommand struct {
	*BaseCommand
	verbose bool
	args    []string
	calls   int
}

func newStubCommand(name string) *stubCommand {
	return &stubCommand{BaseCommand: NewBaseCommand(name, "Stub "+name, name+" [options]")}
}

func (c *stubCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "v", false, "verbose")
}

func (c *stubCommand) Execute(_ context.Context, args []string, _, _ io.Writer) error {
	c.calls++
	c.args = args
	return nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(newStubCommand("zeta"))
	r.Register(newStubCommand("alpha"))

	cmd, err := r.Get("alpha")
	if err != nil {
		t.Fatalf("Get(alpha): %v", err)
	}
	if cmd.Name() != "alpha" {
		t.Errorf("expected alpha, got %q", cmd.Name())
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}

	if got := strings.Join(r.List(), ","); got != "alpha,zeta" {
		t.Errorf("expected sorted names, got %q", got)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first, second := newStubCommand("x"), newStubCommand("x")
	r.Register(first)
	r.Register(second)

	if err := r.Dispatch(context.Background(), []string{"x"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if first.calls != 0 || second.calls != 1 {
		t.Errorf("expected only the replacement to run, got %d and %d", first.calls, second.calls)
	}
}

func TestDispatch_ParsesFlags(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	stub := newStubCommand("stub")
	r.Register(stub)

	if err := r.Dispatch(context.Background(), []string{"stub", "-v", "a", "b"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !stub.verbose {
		t.Error("expected -v to be parsed")
	}
	if strings.Join(stub.args, " ") != "a b" {
		t.Errorf("expected positional args, got %v", stub.args)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	err := NewRegistry().Dispatch(context.Background(), []string{"nope"}, io.Discard, &stderr)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if !strings.Contains(stderr.String(), "Unknown command: nope") {
		t.Errorf("unexpected stderr: %q", stderr.String())
	}
}

func TestDispatch_BadFlag(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(newStubCommand("stub"))

	var stderr bytes.Buffer
	if err := r.Dispatch(context.Background(), []string{"stub", "-bogus"}, io.Discard, &stderr); err == nil {
		t.Fatal("expected a flag error")
	}
	if !strings.Contains(stderr.String(), "Usage: plancoord stub [options]") {
		t.Errorf("expected usage on stderr, got %q", stderr.String())
	}
}

func TestDispatch_HelpFlagMapsToHelp(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		r := NewRegistry()
		r.Register(NewHelpCommand(r))
		r.Register(newStubCommand("stub"))

		var stdout bytes.Buffer
		if err := r.Dispatch(context.Background(), args, &stdout, io.Discard); err != nil {
			t.Fatalf("Dispatch(%v): %v", args, err)
		}
		out := stdout.String()
		if !strings.Contains(out, "Available commands:") || !strings.Contains(out, "Stub stub") {
			t.Errorf("Dispatch(%v): unexpected help output:\n%s", args, out)
		}
	}
}
