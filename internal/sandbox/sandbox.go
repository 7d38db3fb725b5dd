// Package sandbox runs user-supplied code and expressions in an isolated
// yaegi interpreter with a wall-clock cap. Each evaluation gets a fresh
// interpreter: nothing leaks between blocks, and a hung snippet only costs
// its own deadline.
package sandbox

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/blockflow/blockflow/internal/ctxlog"
)

// DefaultTimeout caps code evaluation when the block does not set its own.
const DefaultTimeout = 5 * time.Second

// Outcome is the result of one sandbox evaluation.
type Outcome struct {
	// Value is the value of the final expression, or nil.
	Value any
	// Logs is everything the snippet printed to stdout/stderr.
	Logs string
}

// Sandbox evaluates snippets. The zero value is not usable; use New.
type Sandbox struct {
	timeout time.Duration
}

// New creates a sandbox with the given default timeout. Zero means
// DefaultTimeout.
func New(timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sandbox{timeout: timeout}
}

// Run evaluates code with the resolved inputs bound to the identifier
// `inputs` (a map[string]any). The value of the last expression is returned.
// Any interpreter panic or timeout surfaces as an error, never as a crash.
func (s *Sandbox) Run(ctx context.Context, code string, inputs map[string]any, timeout time.Duration) (out Outcome, err error) {
	logger := ctxlog.FromContext(ctx)
	if timeout <= 0 {
		timeout = s.timeout
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Sandbox evaluation panicked.", "panic", r)
			err = fmt.Errorf("code evaluation panicked: %v", r)
		}
	}()

	var output strings.Builder
	i := interp.New(interp.Options{Stdout: &output, Stderr: &output})
	if err := i.Use(stdlib.Symbols); err != nil {
		return Outcome{}, fmt.Errorf("loading stdlib symbols: %w", err)
	}
	if err := i.Use(interp.Exports{
		"blockenv/blockenv": {"Inputs": reflect.ValueOf(inputs)},
	}); err != nil {
		return Outcome{}, fmt.Errorf("binding inputs: %w", err)
	}
	if _, err := i.Eval(`import "blockenv"`); err != nil {
		return Outcome{}, fmt.Errorf("importing input bindings: %w", err)
	}
	if _, err := i.Eval(`var inputs = blockenv.Inputs`); err != nil {
		return Outcome{}, fmt.Errorf("declaring inputs: %w", err)
	}

	// Leading import declarations must be evaluated on their own; the
	// interpreter rejects a snippet mixing imports and statements.
	imports, body := splitImports(code)
	for _, imp := range imports {
		if _, err := i.Eval(imp); err != nil {
			return Outcome{}, fmt.Errorf("importing %q failed: %w", imp, err)
		}
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := i.EvalWithContext(evalCtx, body)
	if err != nil {
		if evalCtx.Err() == context.DeadlineExceeded {
			return Outcome{Logs: output.String()}, fmt.Errorf("code evaluation timed out after %s", timeout)
		}
		return Outcome{Logs: output.String()}, fmt.Errorf("code evaluation failed: %w", err)
	}

	var value any
	if v.IsValid() && v.CanInterface() {
		value = v.Interface()
	}
	return Outcome{Value: value, Logs: output.String()}, nil
}

// splitImports separates the leading import declarations from the rest of
// the snippet. Imports are only recognized before the first statement,
// matching where Go allows them.
func splitImports(code string) (imports []string, body string) {
	lines := strings.Split(code, "\n")
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			i++
			continue
		}
		if !strings.HasPrefix(trimmed, "import ") && !strings.HasPrefix(trimmed, "import(") {
			break
		}
		if strings.Contains(trimmed, "(") && !strings.Contains(trimmed, ")") {
			// Parenthesized import block spanning multiple lines.
			decl := []string{lines[i]}
			i++
			for i < len(lines) {
				decl = append(decl, lines[i])
				done := strings.TrimSpace(lines[i]) == ")"
				i++
				if done {
					break
				}
			}
			imports = append(imports, strings.Join(decl, "\n"))
			continue
		}
		imports = append(imports, trimmed)
		i++
	}
	return imports, strings.Join(lines[i:], "\n")
}

// Bool evaluates an expression expected to yield a boolean, as condition
// blocks require.
func (s *Sandbox) Bool(ctx context.Context, expression string, timeout time.Duration) (bool, error) {
	out, err := s.Run(ctx, expression, nil, timeout)
	if err != nil {
		return false, err
	}
	b, ok := out.Value.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q yielded %T, want bool", expression, out.Value)
	}
	return b, nil
}

// String evaluates an expression expected to yield a string, as router
// blocks require for route selection.
func (s *Sandbox) String(ctx context.Context, expression string, timeout time.Duration) (string, error) {
	out, err := s.Run(ctx, expression, nil, timeout)
	if err != nil {
		return "", err
	}
	str, ok := out.Value.(string)
	if !ok {
		return "", fmt.Errorf("expression %q yielded %T, want string", expression, out.Value)
	}
	return str, nil
}

// Number evaluates an expression expected to yield a number, as evaluator
// rubrics require for scoring.
func (s *Sandbox) Number(ctx context.Context, expression string, inputs map[string]any, timeout time.Duration) (float64, error) {
	out, err := s.Run(ctx, expression, inputs, timeout)
	if err != nil {
		return 0, err
	}
	switch n := out.Value.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expression %q yielded %T, want number", expression, out.Value)
	}
}
