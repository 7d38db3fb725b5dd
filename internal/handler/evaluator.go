package handler

import (
	"context"

	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/sandbox"
)

// Evaluator scores an upstream value against a rubric expression. The
// rubric sees the resolved target as inputs["target"] and must yield a
// number; the block passes when the score reaches the threshold.
type Evaluator struct {
	sandbox *sandbox.Sandbox
}

func (h *Evaluator) CanHandle(b *graph.Block) bool { return b.Kind == graph.KindEvaluator }

func (h *Evaluator) Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	rubric := getString(inputs, "rubric")
	if rubric == "" {
		return nil, &ExecutionError{BlockID: b.ID, Message: "evaluator block has no rubric"}
	}

	score, err := h.sandbox.Number(ctx, rubric, map[string]any{"target": inputs["target"]}, b.Timeout)
	if err != nil {
		return nil, &ExecutionError{BlockID: b.ID, Message: "rubric evaluation failed", Err: err}
	}

	threshold := getFloat(inputs, "threshold")
	return map[string]any{
		"score":  score,
		"passed": score >= threshold,
	}, nil
}
