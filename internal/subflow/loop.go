package subflow

import (
	"context"
	"fmt"

	"github.com/blockflow/blockflow/internal/ctxlog"
	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
)

// Loop runs a loop block's subgraph sequentially, once per iteration,
// threading the iteration scope through a forked run state each time.
type Loop struct {
	runner Runner
}

func NewLoop(r Runner) *Loop {
	return &Loop{runner: r}
}

// Execute drives every iteration and merges the exit outputs in order.
// A zero-iteration loop completes immediately with an empty result set.
func (l *Loop) Execute(ctx context.Context, wf *graph.Workflow, block *graph.Block, inputs map[string]any, st *runstate.Context) (map[string]any, error) {
	cfg, ok := block.Config.(*graph.LoopConfig)
	if !ok {
		return nil, fmt.Errorf("block %s: config is not a loop config", block.ID)
	}
	group := wf.Group(block.ID)
	if group == nil {
		return nil, fmt.Errorf("block %s: loop has no enclosed group", block.ID)
	}

	var items []any
	var keys []string
	var total int
	switch cfg.LoopType {
	case graph.LoopFor:
		total = cfg.Count
		if total < 0 {
			return nil, fmt.Errorf("block %s: loop count must not be negative, got %d", block.ID, total)
		}
	case graph.LoopForEach:
		var err error
		items, keys, err = collectionItems(inputs["collection"])
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", block.ID, err)
		}
		total = len(items)
	default:
		return nil, fmt.Errorf("block %s: unknown loop type %q", block.ID, cfg.LoopType)
	}

	logger := ctxlog.FromContext(ctx)
	sub := Subgraph(wf, group)
	results := make([]any, 0, total)

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scope := map[string]any{"currentIteration": i}
		if items != nil {
			scope["currentItem"] = items[i]
		}
		if keys != nil {
			scope["currentKey"] = keys[i]
		}
		child := st.Fork(map[string]any{"loop": scope})

		logger.DebugContext(ctx, "Loop iteration starting.", "block", block.ID, "iteration", i, "total", total)

		runErr := l.runner.RunSubgraph(ctx, sub, child)
		exitStatus := child.Status(group.Exit)
		exitOutput, _ := child.Output(group.Exit)

		if runErr != nil || exitStatus == runstate.StatusError {
			if block.OnError == graph.ErrorContinue {
				logger.WarnContext(ctx, "Loop iteration failed, continuing.", "block", block.ID, "iteration", i)
				results = append(results, nil)
				continue
			}
			if runErr == nil {
				runErr = fmt.Errorf("exit block %s reported an error", group.Exit)
			}
			return nil, fmt.Errorf("block %s: iteration %d failed: %w", block.ID, i, runErr)
		}
		results = append(results, flatten(exitOutput))
	}

	return map[string]any{"results": results, "count": len(results)}, nil
}

// flatten unwraps nil exit outputs so merged results read as plain values.
func flatten(output map[string]any) any {
	if output == nil {
		return nil
	}
	return output
}
