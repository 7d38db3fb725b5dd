package handler

import (
	"context"

	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/sandbox"
)

// Function runs user-supplied code in the sandbox with a wall-clock cap.
// The final expression's value and anything the code printed both land in
// the block's output; a throw becomes an error status on the block, never
// an engine crash.
type Function struct {
	sandbox *sandbox.Sandbox
}

func (h *Function) CanHandle(b *graph.Block) bool { return b.Kind == graph.KindFunction }

func (h *Function) Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	code := getString(inputs, "code")
	if code == "" {
		return nil, &ExecutionError{BlockID: b.ID, Message: "function block has no code"}
	}

	out, err := h.sandbox.Run(ctx, code, inputs, b.Timeout)
	if err != nil {
		return nil, &ExecutionError{BlockID: b.ID, Message: "function execution failed", Err: err}
	}

	return map[string]any{
		"result": out.Value,
		"stdout": out.Logs,
	}, nil
}
