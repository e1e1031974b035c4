package pabt

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr"
	pabtpkg "github.com/joeycumines/go-pabt"
	"github.com/joeycumines/plancoord/internal/exprcache"
)

// FuncCondition matches with a Go function.
type FuncCondition struct {
	key     any
	matchFn func(any) bool
}

var _ pabtpkg.Condition = (*FuncCondition)(nil)

// NewFuncCondition creates a condition on key matched by fn.
func NewFuncCondition(key any, fn func(any) bool) *FuncCondition {
	return &FuncCondition{key: key, matchFn: fn}
}

// Key implements pabtpkg.Condition.
func (c *FuncCondition) Key() any { return c.key }

// Match implements pabtpkg.Condition.
func (c *FuncCondition) Match(value any) bool {
	if c == nil || c.matchFn == nil {
		return false
	}
	return c.matchFn(value)
}

// Equals matches when the value at key is == expected.
func Equals(key, expected any) *FuncCondition {
	return NewFuncCondition(key, func(v any) bool { return v == expected })
}

// NotNil matches any value present at key.
func NotNil(key any) *FuncCondition {
	return NewFuncCondition(key, func(v any) bool { return v != nil })
}

// IsNil matches a missing or nil value at key.
func IsNil(key any) *FuncCondition {
	return NewFuncCondition(key, func(v any) bool { return v == nil })
}

// Effect is a key/value pair an action is expected to produce.
type Effect struct {
	key   any
	value any
}

var _ pabtpkg.Effect = (*Effect)(nil)

// NewEffect creates an effect.
func NewEffect(key, value any) *Effect {
	return &Effect{key: key, value: value}
}

// Key implements pabtpkg.Effect.
func (e *Effect) Key() any { return e.key }

// Value implements pabtpkg.Effect.
func (e *Effect) Value() any { return e.value }

// ExprEnv is the evaluation environment of an ExprCondition: the value
// under the condition's key, as "value".
type ExprEnv struct {
	Value any `expr:"value"`
}

var programs = exprcache.New(exprcache.DefaultSize,
	expr.Env(ExprEnv{}),
	expr.AsBool(),
	expr.AllowUndefinedVariables(),
)

// SetExprCacheSize resizes the compiled program cache shared by every
// ExprCondition.
func SetExprCacheSize(size int) {
	programs.Resize(size)
}

// ExprCondition matches with an expr-lang expression over "value", e.g.
// `value != nil && value > 3`. Programs are compiled on first use and shared
// through an LRU.
type ExprCondition struct {
	key        any
	expression string

	mu      sync.Mutex
	lastErr error
}

var _ pabtpkg.Condition = (*ExprCondition)(nil)

// NewExprCondition creates a condition on key. The expression is compiled
// eagerly so syntax errors surface here rather than as silent mismatches.
func NewExprCondition(key any, expression string) (*ExprCondition, error) {
	if expression == "" {
		return nil, fmt.Errorf("pabt: empty expression for key %v", key)
	}
	if _, err := programs.Program(expression); err != nil {
		return nil, err
	}
	return &ExprCondition{key: key, expression: expression}, nil
}

// Key implements pabtpkg.Condition.
func (c *ExprCondition) Key() any { return c.key }

// Expression returns the source expression.
func (c *ExprCondition) Expression() string { return c.expression }

// Match implements pabtpkg.Condition. Evaluation errors count as no match;
// see LastError.
func (c *ExprCondition) Match(value any) bool {
	if c == nil {
		return false
	}
	ok, err := c.eval(value)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	if err != nil {
		slog.Error("pabt expression condition failed", "expression", c.expression, "value", fmt.Sprintf("%v", value), "error", err)
	}
	return ok
}

func (c *ExprCondition) eval(value any) (bool, error) {
	program, err := programs.Program(c.expression)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, ExprEnv{Value: value})
	if err != nil {
		return false, fmt.Errorf("pabt: evaluate %q: %w", c.expression, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("pabt: expression %q returned %T, not bool", c.expression, out)
	}
	return b, nil
}

// LastError returns the error from the most recent Match, if any.
func (c *ExprCondition) LastError() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
