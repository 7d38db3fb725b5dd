package handler

import (
	"context"
	"fmt"

	"github.com/blockflow/blockflow/internal/ctxlog"
	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/sandbox"
)

// Router evaluates a selection expression yielding one of the declared
// route keys and activates only the matching outgoing edge.
type Router struct {
	sandbox *sandbox.Sandbox
}

func (h *Router) CanHandle(b *graph.Block) bool { return b.Kind == graph.KindRouter }

func (h *Router) Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	expression := getString(inputs, "expression")
	if expression == "" {
		return nil, &ExecutionError{BlockID: b.ID, Message: "router block has an empty expression"}
	}

	route, err := h.sandbox.String(ctx, expression, b.Timeout)
	if err != nil {
		return nil, &ExecutionError{BlockID: b.ID, Message: "route selection failed", Err: err}
	}

	declared, _ := inputs["routes"].([]any)
	known := false
	for _, r := range declared {
		if r == route {
			known = true
			break
		}
	}
	if !known {
		return nil, &ExecutionError{
			BlockID: b.ID,
			Message: fmt.Sprintf("selection yielded undeclared route %q", route),
		}
	}

	ctxlog.FromContext(ctx).Debug("Route selected.", "blockId", b.ID, "route", route)
	return map[string]any{
		"route":           route,
		SelectedBranchKey: route,
	}, nil
}
