// Package engine schedules and executes workflow graphs. It walks the DAG
// with a bounded worker pool, resolves each block's templated inputs against
// the run state, dispatches the block through the handler chain, and settles
// downstream readiness from the outcome.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/blockflow/blockflow/internal/ctxlog"
	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/handler"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/subflow"
	"github.com/blockflow/blockflow/internal/telemetry"
)

// DefaultWorkers is the worker pool size when Options does not set one.
const DefaultWorkers = 4

// Options tunes an Engine.
type Options struct {
	// Workers is the number of concurrent block executions per run.
	Workers int
	// DefaultTimeout bounds a block's execution when the block itself does
	// not declare one. Zero means no bound.
	DefaultTimeout time.Duration
	// Fanout caps concurrent parallel-block instances.
	Fanout int
}

// Engine executes workflows. It is safe for concurrent use; all per-run
// state lives in the run, never on the Engine.
type Engine struct {
	chain    *handler.Chain
	sink     telemetry.Sink
	workers  int
	timeout  time.Duration
	loop     *subflow.Loop
	parallel *subflow.Parallel
}

// New creates an engine around a handler chain and a telemetry sink.
func New(chain *handler.Chain, sink telemetry.Sink, opts Options) *Engine {
	if sink == nil {
		sink = telemetry.Discard{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	e := &Engine{
		chain:   chain,
		sink:    sink,
		workers: workers,
		timeout: opts.DefaultTimeout,
	}
	e.loop = subflow.NewLoop(e)
	e.parallel = subflow.NewParallel(e, opts.Fanout)
	return e
}

// PolicyHaltError is the run-level failure produced when a block errors and
// its error policy is halt. It wraps the block's own error.
type PolicyHaltError struct {
	BlockID string
	Err     error
}

func (e *PolicyHaltError) Error() string {
	return fmt.Sprintf("run halted by block %s: %v", e.BlockID, e.Err)
}

func (e *PolicyHaltError) Unwrap() error { return e.Err }

// Result is the frozen outcome of one run.
type Result struct {
	RunID      string                          `json:"runId"`
	WorkflowID string                          `json:"workflowId"`
	Status     runstate.RunStatus              `json:"status"`
	Output     map[string]any                  `json:"output,omitempty"`
	Error      string                          `json:"error,omitempty"`
	Blocks     map[string]runstate.BlockRecord `json:"blocks"`
	Duration   time.Duration                   `json:"duration"`
	Usage      runstate.LedgerSnapshot         `json:"usage"`
}

// Execute validates the workflow and runs it to completion. The returned
// error is nil for a completed run, a *graph.ValidationError when the
// workflow is rejected up front, a *PolicyHaltError when a halt-policy
// block failed, or the context's error when the run was cancelled.
func (e *Engine) Execute(ctx context.Context, wf *graph.Workflow, st *runstate.Context) (*Result, error) {
	if err := graph.Validate(wf); err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx).With("workflowID", wf.ID, "runID", st.RunID)
	ctx = ctxlog.WithLogger(ctx, logger)

	logger.InfoContext(ctx, "Run starting.", "blocks", len(wf.Blocks))
	st.SetRunStatus(runstate.RunRunning)
	e.sink.Emit(telemetry.Event{
		Kind:       telemetry.RunStart,
		RunID:      st.RunID,
		WorkflowID: wf.ID,
		At:         time.Now(),
	})

	frozen, runErr := e.execute(ctx, wf, st)

	switch {
	case ctx.Err() != nil:
		st.SetRunStatus(runstate.RunCancelled)
		if runErr == nil {
			runErr = ctx.Err()
		}
	case runErr != nil:
		st.SetRunStatus(runstate.RunFailed)
	default:
		st.SetRunStatus(runstate.RunCompleted)
	}

	res := &Result{
		RunID:      st.RunID,
		WorkflowID: wf.ID,
		Status:     st.RunStatus(),
		Output:     finalOutput(wf, st, frozen),
		Blocks:     st.Records(),
		Duration:   st.Duration(),
		Usage:      st.Ledger().Snapshot(),
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}

	e.sink.Emit(telemetry.Event{
		Kind:       telemetry.RunEnd,
		RunID:      st.RunID,
		WorkflowID: wf.ID,
		Status:     string(res.Status),
		Error:      res.Error,
		At:         time.Now(),
		Duration:   res.Duration,
	})
	logger.InfoContext(ctx, "Run finished.", "status", res.Status, "duration", res.Duration)

	return res, runErr
}

// RunSubgraph executes a container block's subgraph against a forked state.
// Loop and parallel controllers call it once per iteration or instance.
func (e *Engine) RunSubgraph(ctx context.Context, wf *graph.Workflow, st *runstate.Context) error {
	_, err := e.execute(ctx, wf, st)
	return err
}

// finalOutput picks the run's result payload: the response block's frozen
// fields when one resolved, otherwise the outputs of successful sink blocks
// (blocks with no outgoing edges), keyed by block name.
func finalOutput(wf *graph.Workflow, st *runstate.Context, frozen map[string]any) map[string]any {
	if frozen != nil {
		return frozen
	}
	hasOutgoing := make(map[string]bool)
	for _, e := range wf.Edges {
		hasOutgoing[e.Source] = true
	}
	out := make(map[string]any)
	for _, b := range wf.Blocks {
		if wf.Grouped(b.ID) || hasOutgoing[b.ID] {
			continue
		}
		if st.Status(b.ID) != runstate.StatusSuccess {
			continue
		}
		output, ok := st.Output(b.ID)
		if !ok {
			continue
		}
		key := b.Name
		if key == "" {
			key = b.ID
		}
		out[key] = output
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		for _, v := range out {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}
	return out
}
