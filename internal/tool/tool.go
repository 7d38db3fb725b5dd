// Package tool defines the engine's only external contract: the
// tool-invocation boundary. Handlers normalize every external call into a
// Result before anything is written to the run state.
package tool

import (
	"context"
	"fmt"
	"sync"
)

// Result is the normalized outcome of one tool invocation.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output"`
	Error   string         `json:"error,omitempty"`
}

// Failure builds a failed Result from a message.
func Failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Invoker performs work on behalf of a block. Implementations make network
// calls, run model inference, or script results in tests. A returned error
// means the invocation could not be attempted at all; a Result with
// Success=false means it was attempted and failed.
type Invoker interface {
	Invoke(ctx context.Context, toolID string, params map[string]any) (Result, error)
}

// Func adapts a function to a single tool implementation.
type Func func(ctx context.Context, params map[string]any) (Result, error)

// Registry routes tool ids to their implementations. It is populated once
// at startup and passed into the engine; no module-level singletons.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Func
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Func)}
}

// Register adds a tool implementation. Registering the same id twice is a
// programmer error.
func (r *Registry) Register(toolID string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[toolID]; exists {
		panic(fmt.Sprintf("tool %q already registered", toolID))
	}
	r.tools[toolID] = fn
}

// Invoke implements Invoker by dispatching to the registered tool.
func (r *Registry) Invoke(ctx context.Context, toolID string, params map[string]any) (Result, error) {
	r.mu.RLock()
	fn, ok := r.tools[toolID]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("unknown tool %q", toolID)
	}
	return fn(ctx, params)
}
