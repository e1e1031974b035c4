package probe

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	btmod "github.com/joeycumines/plancoord/internal/bt"
	"github.com/joeycumines/plancoord/internal/coordinator"
	"github.com/joeycumines/plancoord/internal/exprcache"
)

// programs caches predicates compiled against map environments. Builtins
// are disabled so every identifier names a blackboard key, including keys
// such as count or len.
var programs = exprcache.New(exprcache.DefaultSize,
	expr.AsBool(),
	expr.AllowUndefinedVariables(),
	expr.DisableAllBuiltins(),
)

// ExprPredicate is a boolean expr-lang expression over blackboard entries,
// e.g. `hasTool && !(carrying ?? false)`. Undefined keys evaluate to nil.
// Operators are available; builtin functions are not.
type ExprPredicate struct {
	expression string
}

// NewExprPredicate compiles expression.
func NewExprPredicate(expression string) (*ExprPredicate, error) {
	if expression == "" {
		return nil, errors.New("probe: empty expression")
	}
	if _, err := programs.Program(expression); err != nil {
		return nil, err
	}
	return &ExprPredicate{expression: expression}, nil
}

// String returns the source expression.
func (p *ExprPredicate) String() string {
	return p.expression
}

// Eval evaluates the predicate against a snapshot of bb.
func (p *ExprPredicate) Eval(bb *btmod.Blackboard) (bool, error) {
	program, err := programs.Program(p.expression)
	if err != nil {
		return false, err
	}
	env := map[string]any{}
	if bb != nil {
		if snap := bb.Snapshot(); snap != nil {
			env = snap
		}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("probe: evaluate %q: %w", p.expression, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("probe: expression %q returned %T, not bool", p.expression, out)
	}
	return b, nil
}

// Done adapts the predicate to a coordinator Done probe. Evaluation errors
// are logged and read as "not done".
func Done[W any](p *ExprPredicate) func(coordinator.Frame[W]) bool {
	return func(f coordinator.Frame[W]) bool {
		ok, err := p.Eval(f.Blackboard)
		if err != nil {
			slog.Warn("done predicate failed", "agent", f.Agent, "tick", f.Tick, "error", err)
			return false
		}
		return ok
	}
}
