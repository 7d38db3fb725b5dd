package subflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/subflow"
	"github.com/blockflow/blockflow/internal/variables"
)

// scriptRunner stands in for the engine: each RunSubgraph call registers
// the exit block and completes it with the scope values it observed.
type scriptRunner struct {
	mu    sync.Mutex
	calls int
	// failOn makes the numbered call (1-based) fail.
	failOn int
}

func (r *scriptRunner) RunSubgraph(ctx context.Context, wf *graph.Workflow, st *runstate.Context) error {
	r.mu.Lock()
	r.calls++
	call := r.calls
	r.mu.Unlock()

	if r.failOn != 0 && call == r.failOn {
		return fmt.Errorf("scripted failure on call %d", call)
	}

	out := map[string]any{"call": call}
	if item, err := st.Lookup([]string{"loop", "currentItem"}); err == nil && item != nil {
		out["item"] = item
	}
	if key, err := st.Lookup([]string{"loop", "currentKey"}); err == nil && key != nil {
		out["key"] = key
	}
	if idx, err := st.Lookup([]string{"parallel", "currentIndex"}); err == nil && idx != nil {
		out["index"] = idx
	}

	st.Register("work", "work")
	st.Complete("work", out)
	return nil
}

func loopWorkflow(cfg *graph.LoopConfig, onError graph.ErrorPolicy) (*graph.Workflow, *graph.Block) {
	owner := &graph.Block{ID: "each", Kind: graph.KindLoop, Enabled: true, OnError: onError, Config: cfg}
	wf := &graph.Workflow{
		ID:     "wf",
		Blocks: []*graph.Block{owner, {ID: "work", Kind: graph.KindFunction, Enabled: true, Config: &graph.FunctionConfig{Code: "1"}}},
		Groups: []graph.Group{{Owner: "each", Kind: graph.GroupLoop, Blocks: []string{"work"}, Entry: "work", Exit: "work"}},
	}
	return wf, owner
}

func parallelWorkflow(cfg *graph.ParallelConfig) (*graph.Workflow, *graph.Block) {
	owner := &graph.Block{ID: "fan", Kind: graph.KindParallel, Enabled: true, Config: cfg}
	wf := &graph.Workflow{
		ID:     "wf",
		Blocks: []*graph.Block{owner, {ID: "work", Kind: graph.KindFunction, Enabled: true, Config: &graph.FunctionConfig{Code: "1"}}},
		Groups: []graph.Group{{Owner: "fan", Kind: graph.GroupParallel, Blocks: []string{"work"}, Entry: "work", Exit: "work"}},
	}
	return wf, owner
}

func TestLoopForEachIteratesArrayInOrder(t *testing.T) {
	t.Parallel()
	runner := &scriptRunner{}
	loop := subflow.NewLoop(runner)

	wf, owner := loopWorkflow(&graph.LoopConfig{LoopType: graph.LoopForEach}, graph.ErrorHalt)
	st := runstate.New("wf", variables.New(nil))

	out, err := loop.Execute(context.Background(), wf, owner, map[string]any{"collection": []any{"a", "b", "c"}}, st)
	require.NoError(t, err)
	assert.Equal(t, 3, out["count"])

	results := out["results"].([]any)
	require.Len(t, results, 3)
	for i, want := range []string{"a", "b", "c"} {
		m := results[i].(map[string]any)
		assert.Equal(t, want, m["item"])
		// Sequential: the i-th iteration is the i-th call.
		assert.Equal(t, i+1, m["call"])
	}
}

func TestLoopForEachIteratesMapInSortedKeyOrder(t *testing.T) {
	t.Parallel()
	runner := &scriptRunner{}
	loop := subflow.NewLoop(runner)

	wf, owner := loopWorkflow(&graph.LoopConfig{LoopType: graph.LoopForEach}, graph.ErrorHalt)
	st := runstate.New("wf", variables.New(nil))

	collection := map[string]any{"c": 3, "a": 1, "b": 2}
	out, err := loop.Execute(context.Background(), wf, owner, map[string]any{"collection": collection}, st)
	require.NoError(t, err)

	results := out["results"].([]any)
	require.Len(t, results, 3)
	keys := make([]any, 3)
	for i := range results {
		keys[i] = results[i].(map[string]any)["key"]
	}
	assert.Equal(t, []any{"a", "b", "c"}, keys)
}

func TestLoopHaltsOnIterationFailure(t *testing.T) {
	t.Parallel()
	runner := &scriptRunner{failOn: 2}
	loop := subflow.NewLoop(runner)

	wf, owner := loopWorkflow(&graph.LoopConfig{LoopType: graph.LoopFor, Count: 3}, graph.ErrorHalt)
	st := runstate.New("wf", variables.New(nil))

	_, err := loop.Execute(context.Background(), wf, owner, nil, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iteration 1 failed")
	// The loop stops at the failure; the third iteration never runs.
	assert.Equal(t, 2, runner.calls)
}

func TestLoopContinuePolicyRecordsNilAndKeepsGoing(t *testing.T) {
	t.Parallel()
	runner := &scriptRunner{failOn: 2}
	loop := subflow.NewLoop(runner)

	wf, owner := loopWorkflow(&graph.LoopConfig{LoopType: graph.LoopFor, Count: 3}, graph.ErrorContinue)
	st := runstate.New("wf", variables.New(nil))

	out, err := loop.Execute(context.Background(), wf, owner, nil, st)
	require.NoError(t, err)

	results := out["results"].([]any)
	require.Len(t, results, 3)
	assert.NotNil(t, results[0])
	assert.Nil(t, results[1])
	assert.NotNil(t, results[2])
	assert.Equal(t, 3, runner.calls)
}

func TestLoopZeroCountCompletesImmediately(t *testing.T) {
	t.Parallel()
	runner := &scriptRunner{}
	loop := subflow.NewLoop(runner)

	wf, owner := loopWorkflow(&graph.LoopConfig{LoopType: graph.LoopFor, Count: 0}, graph.ErrorHalt)
	st := runstate.New("wf", variables.New(nil))

	out, err := loop.Execute(context.Background(), wf, owner, nil, st)
	require.NoError(t, err)
	assert.Equal(t, 0, out["count"])
	assert.Empty(t, out["results"])
	assert.Zero(t, runner.calls)
}

func TestLoopRejectsScalarCollection(t *testing.T) {
	t.Parallel()
	loop := subflow.NewLoop(&scriptRunner{})

	wf, owner := loopWorkflow(&graph.LoopConfig{LoopType: graph.LoopForEach}, graph.ErrorHalt)
	st := runstate.New("wf", variables.New(nil))

	_, err := loop.Execute(context.Background(), wf, owner, map[string]any{"collection": 42}, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array or mapping")
}

func TestLoopRejectsNullCollection(t *testing.T) {
	t.Parallel()
	runner := &scriptRunner{}
	loop := subflow.NewLoop(runner)

	wf, owner := loopWorkflow(&graph.LoopConfig{LoopType: graph.LoopForEach}, graph.ErrorHalt)
	st := runstate.New("wf", variables.New(nil))

	// A collection reference that resolves to null is a mistake, not an
	// empty iteration set.
	_, err := loop.Execute(context.Background(), wf, owner, map[string]any{"collection": nil}, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolved to null")
	assert.Zero(t, runner.calls)
}

func TestParallelRejectsNullCollection(t *testing.T) {
	t.Parallel()
	runner := &scriptRunner{}
	par := subflow.NewParallel(runner, 2)

	wf, owner := parallelWorkflow(&graph.ParallelConfig{
		ParallelType: graph.ParallelCollection, FailurePolicy: graph.FailAnyError,
	})
	st := runstate.New("wf", variables.New(nil))

	_, err := par.Execute(context.Background(), wf, owner, nil, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolved to null")
	assert.Zero(t, runner.calls)
}

func TestParallelMergesByIndex(t *testing.T) {
	t.Parallel()
	par := subflow.NewParallel(&scriptRunner{}, 2)

	wf, owner := parallelWorkflow(&graph.ParallelConfig{
		ParallelType: graph.ParallelCount, Count: 4, FailurePolicy: graph.FailAnyError,
	})
	st := runstate.New("wf", variables.New(nil))

	out, err := par.Execute(context.Background(), wf, owner, nil, st)
	require.NoError(t, err)
	assert.Equal(t, 4, out["count"])

	results := out["results"].([]any)
	require.Len(t, results, 4)
	for i := range results {
		m := results[i].(map[string]any)
		// The merge is ordered by instance index, not completion order.
		assert.Equal(t, i, m["index"])
	}
}

func TestParallelCollectionFanOut(t *testing.T) {
	t.Parallel()
	par := subflow.NewParallel(&scriptRunner{}, 0)

	wf, owner := parallelWorkflow(&graph.ParallelConfig{
		ParallelType: graph.ParallelCollection, FailurePolicy: graph.FailAnyError,
	})
	st := runstate.New("wf", variables.New(nil))

	out, err := par.Execute(context.Background(), wf, owner, map[string]any{"collection": []any{"x", "y"}}, st)
	require.NoError(t, err)
	assert.Equal(t, 2, out["count"])
}

func TestParallelAnyErrorPolicyFailsWithPartialOutput(t *testing.T) {
	t.Parallel()
	par := subflow.NewParallel(&scriptRunner{failOn: 2}, 1)

	wf, owner := parallelWorkflow(&graph.ParallelConfig{
		ParallelType: graph.ParallelCount, Count: 3, FailurePolicy: graph.FailAnyError,
	})
	st := runstate.New("wf", variables.New(nil))

	_, err := par.Execute(context.Background(), wf, owner, nil, st)
	require.Error(t, err)

	var partial *subflow.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "fan", partial.BlockID)
	require.NotNil(t, partial.Output)

	statuses := partial.Output["statuses"].([]any)
	assert.Contains(t, statuses, "error")
	assert.Contains(t, statuses, "success")
}

func TestParallelAllErrorsPolicySucceedsOnPartialFailure(t *testing.T) {
	t.Parallel()
	par := subflow.NewParallel(&scriptRunner{failOn: 1}, 1)

	wf, owner := parallelWorkflow(&graph.ParallelConfig{
		ParallelType: graph.ParallelCount, Count: 2, FailurePolicy: graph.FailAllErrors,
	})
	st := runstate.New("wf", variables.New(nil))

	out, err := par.Execute(context.Background(), wf, owner, nil, st)
	require.NoError(t, err)
	assert.NotEmpty(t, out["errors"])
}

func TestParallelZeroInstances(t *testing.T) {
	t.Parallel()
	runner := &scriptRunner{}
	par := subflow.NewParallel(runner, 1)

	wf, owner := parallelWorkflow(&graph.ParallelConfig{
		ParallelType: graph.ParallelCount, Count: 0, FailurePolicy: graph.FailAnyError,
	})
	st := runstate.New("wf", variables.New(nil))

	out, err := par.Execute(context.Background(), wf, owner, nil, st)
	require.NoError(t, err)
	assert.Equal(t, 0, out["count"])
	assert.Zero(t, runner.calls)
}

func TestSubgraphIncludesNestedGroups(t *testing.T) {
	t.Parallel()

	wf := &graph.Workflow{
		ID: "wf",
		Blocks: []*graph.Block{
			{ID: "outer", Kind: graph.KindLoop, Enabled: true, Config: &graph.LoopConfig{LoopType: graph.LoopFor, Count: 1}},
			{ID: "prep", Kind: graph.KindFunction, Enabled: true, Config: &graph.FunctionConfig{Code: "1"}},
			{ID: "inner", Kind: graph.KindLoop, Enabled: true, Config: &graph.LoopConfig{LoopType: graph.LoopFor, Count: 1}},
			{ID: "deep", Kind: graph.KindFunction, Enabled: true, Config: &graph.FunctionConfig{Code: "1"}},
			{ID: "outside", Kind: graph.KindFunction, Enabled: true, Config: &graph.FunctionConfig{Code: "1"}},
		},
		Edges: []graph.Edge{
			{Source: "prep", Target: "inner"},
			{Source: "outside", Target: "outer"},
		},
		Groups: []graph.Group{
			{Owner: "outer", Kind: graph.GroupLoop, Blocks: []string{"prep", "inner"}, Entry: "prep", Exit: "inner"},
			{Owner: "inner", Kind: graph.GroupLoop, Blocks: []string{"deep"}, Entry: "deep", Exit: "deep"},
		},
	}

	sub := subflow.Subgraph(wf, wf.Group("outer"))

	ids := make([]string, 0, len(sub.Blocks))
	for _, b := range sub.Blocks {
		ids = append(ids, b.ID)
	}
	assert.ElementsMatch(t, []string{"prep", "inner", "deep"}, ids)
	require.Len(t, sub.Edges, 1)
	assert.Equal(t, "prep", sub.Edges[0].Source)
	require.Len(t, sub.Groups, 1)
	assert.Equal(t, "inner", sub.Groups[0].Owner)
	assert.True(t, sub.Grouped("deep"))
}
