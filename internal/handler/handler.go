// Package handler implements one execution strategy per block kind behind a
// common contract. Handlers are assembled into an explicit priority-ordered
// chain at startup and injected into the engine; there are no module-level
// registries.
package handler

import (
	"context"
	"fmt"

	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/sandbox"
	"github.com/blockflow/blockflow/internal/tool"
)

// SelectedBranchKey is the reserved output field condition and router
// handlers use to tell the engine which outgoing branch is active.
const SelectedBranchKey = "selectedBranch"

// Handler executes one kind of block. Execute receives the block's config
// params with every template already resolved; its returned map is merged
// into the block's record in the run state.
type Handler interface {
	CanHandle(b *graph.Block) bool
	Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error)
}

// ExecutionError wraps any failure from a tool invocation, code execution,
// or timeout, tagged with the block and tool it came from. Retryable guides
// the engine's per-block retry policy.
type ExecutionError struct {
	BlockID   string
	ToolID    string
	Message   string
	Retryable bool
	Err       error
}

func (e *ExecutionError) Error() string {
	suffix := ""
	if e.ToolID != "" {
		suffix = fmt.Sprintf(" (tool %s)", e.ToolID)
	}
	if e.Err != nil {
		return fmt.Sprintf("block %s%s: %s: %v", e.BlockID, suffix, e.Message, e.Err)
	}
	return fmt.Sprintf("block %s%s: %s", e.BlockID, suffix, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Chain is the fixed priority list of handlers ending in the catch-all
// generic handler.
type Chain struct {
	handlers []Handler
}

// NewChain builds the standard chain. The order is load-bearing: specific
// kinds come first, the generic tool dispatcher catches everything else.
func NewChain(tools tool.Invoker, sb *sandbox.Sandbox) *Chain {
	return &Chain{handlers: []Handler{
		&Starter{},
		&Condition{sandbox: sb},
		&Router{sandbox: sb},
		&Function{sandbox: sb},
		&Evaluator{sandbox: sb},
		&Agent{tools: tools},
		&API{tools: tools},
		&Response{},
		&VariableSet{},
		&Generic{tools: tools},
	}}
}

// Dispatch runs the block through the first handler that accepts it.
func (c *Chain) Dispatch(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	for _, h := range c.handlers {
		if h.CanHandle(b) {
			return h.Execute(ctx, b, inputs, rs)
		}
	}
	return nil, &ExecutionError{BlockID: b.ID, Message: fmt.Sprintf("no handler accepts kind %q", b.Kind)}
}

// getString reads a string input, tolerating absence.
func getString(inputs map[string]any, key string) string {
	s, _ := inputs[key].(string)
	return s
}

// getMap reads a map input, tolerating absence.
func getMap(inputs map[string]any, key string) map[string]any {
	m, _ := inputs[key].(map[string]any)
	return m
}

// getFloat reads a numeric input across the types JSON decoding produces.
func getFloat(inputs map[string]any, key string) float64 {
	switch n := inputs[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
