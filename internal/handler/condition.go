package handler

import (
	"context"

	"github.com/blockflow/blockflow/internal/ctxlog"
	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/sandbox"
)

// Condition evaluates one boolean expression and activates exactly one of
// the block's two branch-labeled outgoing edges.
type Condition struct {
	sandbox *sandbox.Sandbox
}

func (h *Condition) CanHandle(b *graph.Block) bool { return b.Kind == graph.KindCondition }

func (h *Condition) Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	expression := getString(inputs, "expression")
	if expression == "" {
		return nil, &ExecutionError{BlockID: b.ID, Message: "condition block has an empty expression"}
	}

	result, err := h.sandbox.Bool(ctx, expression, b.Timeout)
	if err != nil {
		return nil, &ExecutionError{BlockID: b.ID, Message: "condition evaluation failed", Err: err}
	}

	branch := graph.BranchFalse
	if result {
		branch = graph.BranchTrue
	}
	ctxlog.FromContext(ctx).Debug("Condition evaluated.", "blockId", b.ID, "branch", branch)

	return map[string]any{
		"result":          result,
		SelectedBranchKey: branch,
	}, nil
}
