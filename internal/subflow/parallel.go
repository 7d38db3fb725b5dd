package subflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blockflow/blockflow/internal/ctxlog"
	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
)

// DefaultFanout caps how many parallel instances run at once.
const DefaultFanout = 8

// Parallel runs a parallel block's subgraph once per instance, fanning
// the instances out over goroutines and merging outputs in index order.
type Parallel struct {
	runner Runner
	fanout int
}

func NewParallel(r Runner, fanout int) *Parallel {
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	return &Parallel{runner: r, fanout: fanout}
}

// Execute fans out all instances, waits for every one of them, then
// aggregates per the block's failure policy. A failing instance never
// disturbs its siblings; their outputs stay in the merge either way.
func (p *Parallel) Execute(ctx context.Context, wf *graph.Workflow, block *graph.Block, inputs map[string]any, st *runstate.Context) (map[string]any, error) {
	cfg, ok := block.Config.(*graph.ParallelConfig)
	if !ok {
		return nil, fmt.Errorf("block %s: config is not a parallel config", block.ID)
	}
	group := wf.Group(block.ID)
	if group == nil {
		return nil, fmt.Errorf("block %s: parallel has no enclosed group", block.ID)
	}

	var items []any
	var total int
	switch cfg.ParallelType {
	case graph.ParallelCount:
		total = cfg.Count
		if total < 0 {
			return nil, fmt.Errorf("block %s: parallel count must not be negative, got %d", block.ID, total)
		}
	case graph.ParallelCollection:
		var err error
		items, _, err = collectionItems(inputs["collection"])
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", block.ID, err)
		}
		total = len(items)
	default:
		return nil, fmt.Errorf("block %s: unknown parallel type %q", block.ID, cfg.ParallelType)
	}

	if total == 0 {
		return map[string]any{"results": []any{}, "count": 0, "statuses": []any{}}, nil
	}

	logger := ctxlog.FromContext(ctx)
	sub := Subgraph(wf, group)

	results := make([]any, total)
	errs := make([]error, total)

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.fanout)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			scope := map[string]any{"currentIndex": i}
			if items != nil {
				scope["currentItem"] = items[i]
			}
			child := st.Fork(map[string]any{"parallel": scope})

			logger.DebugContext(ctx, "Parallel instance starting.", "block", block.ID, "index", i, "total", total)

			runErr := p.runner.RunSubgraph(ctx, sub, child)
			exitStatus := child.Status(group.Exit)
			if runErr == nil && exitStatus == runstate.StatusError {
				runErr = fmt.Errorf("exit block %s reported an error", group.Exit)
			}
			if runErr != nil {
				errs[i] = runErr
				return
			}
			exitOutput, _ := child.Output(group.Exit)
			results[i] = flatten(exitOutput)
		}(i)
	}
	wg.Wait()

	statuses := make([]any, total)
	var failed []string
	for i, err := range errs {
		if err != nil {
			statuses[i] = string(runstate.StatusError)
			failed = append(failed, fmt.Sprintf("instance %d: %v", i, err))
			continue
		}
		statuses[i] = string(runstate.StatusSuccess)
	}

	output := map[string]any{
		"results":  results,
		"count":    total,
		"statuses": statuses,
	}

	switch {
	case len(failed) == 0:
		return output, nil
	case cfg.FailurePolicy == graph.FailAllErrors && len(failed) < total:
		output["errors"] = failed
		return output, nil
	default:
		return nil, &PartialFailureError{
			BlockID: block.ID,
			Message: fmt.Sprintf("%d of %d instances failed: %s", len(failed), total, strings.Join(failed, "; ")),
			Output:  output,
		}
	}
}
