package handler

import (
	"context"
	"fmt"

	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/tool"
)

// Generic is the catch-all at the end of the chain: it dispatches any block
// carrying a tool binding straight to the invocation boundary.
type Generic struct {
	tools tool.Invoker
}

func (h *Generic) CanHandle(b *graph.Block) bool { return true }

func (h *Generic) Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	cfg, ok := b.Config.(*graph.GenericConfig)
	if !ok {
		return nil, &ExecutionError{BlockID: b.ID, Message: fmt.Sprintf("kind %q carries no tool binding", b.Kind)}
	}

	args := getMap(inputs, "args")
	res, err := h.tools.Invoke(ctx, cfg.ToolID, args)
	if err != nil {
		return nil, &ExecutionError{BlockID: b.ID, ToolID: cfg.ToolID, Message: "tool invocation failed", Retryable: true, Err: err}
	}
	if !res.Success {
		return nil, &ExecutionError{BlockID: b.ID, ToolID: cfg.ToolID, Message: res.Error, Retryable: true}
	}
	return res.Output, nil
}
