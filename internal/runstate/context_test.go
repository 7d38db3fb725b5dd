package runstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockflow/blockflow/internal/variables"
)

func TestContext_WriteOnceDiscipline(t *testing.T) {
	ctx := New("wf", nil)
	ctx.Register("a", "alpha")
	ctx.MarkRunning("a")
	ctx.Complete("a", map[string]any{"x": 1})

	assert.Equal(t, StatusSuccess, ctx.Status("a"))
	assert.Panics(t, func() { ctx.Complete("a", nil) })
}

func TestContext_SkipAfterTerminalIsNoop(t *testing.T) {
	ctx := New("wf", nil)
	ctx.Register("a", "")
	ctx.Complete("a", map[string]any{"x": 1})
	ctx.Skip("a")
	assert.Equal(t, StatusSuccess, ctx.Status("a"))
}

func TestLookup_BlockOutputByNameAndID(t *testing.T) {
	ctx := New("wf", nil)
	ctx.Register("blk-1", "fetch")
	ctx.Complete("blk-1", map[string]any{"body": map[string]any{"count": 3}})

	byName, err := ctx.Lookup([]string{"fetch", "body", "count"})
	require.NoError(t, err)
	assert.Equal(t, 3, byName)

	byID, err := ctx.Lookup([]string{"blk-1", "body", "count"})
	require.NoError(t, err)
	assert.Equal(t, 3, byID)
}

func TestLookup_SkippedBlockIsAnError(t *testing.T) {
	ctx := New("wf", nil)
	ctx.Register("b", "branch")
	ctx.Skip("b")

	_, err := ctx.Lookup([]string{"branch", "out"})
	require.ErrorIs(t, err, ErrSkippedReference)
}

func TestLookup_ErroredBlockResolvesToNull(t *testing.T) {
	ctx := New("wf", nil)
	ctx.Register("b", "shaky")
	ctx.Fail("b", "boom")

	val, err := ctx.Lookup([]string{"shaky", "anything"})
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestLookup_VariablesAndScopeChain(t *testing.T) {
	vars := variables.New(map[string]any{"region": "eu-west"})
	root := New("wf", vars)
	root.Register("outer", "outer")
	root.Complete("outer", map[string]any{"n": 10})

	child := root.Fork(map[string]any{
		"loop": map[string]any{"currentIteration": 2, "currentItem": "b"},
	})

	region, err := child.Lookup([]string{"variable", "region"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west", region)

	item, err := child.Lookup([]string{"loop", "currentItem"})
	require.NoError(t, err)
	assert.Equal(t, "b", item)

	// Parent outputs stay visible from the fork.
	n, err := child.Lookup([]string{"outer", "n"})
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	// Inner scope shadows outer.
	grandchild := child.Fork(map[string]any{
		"loop": map[string]any{"currentIteration": 0, "currentItem": "z"},
	})
	item, err = grandchild.Lookup([]string{"loop", "currentItem"})
	require.NoError(t, err)
	assert.Equal(t, "z", item)
}

func TestLookup_IndexIntoSlices(t *testing.T) {
	ctx := New("wf", nil)
	ctx.Register("list", "list")
	ctx.Complete("list", map[string]any{"items": []any{"a", "b", "c"}})

	v, err := ctx.Lookup([]string{"list", "items", "1"})
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	_, err = ctx.Lookup([]string{"list", "items", "9"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_SharedAcrossForks(t *testing.T) {
	root := New("wf", nil)
	child := root.Fork(nil)
	child.Ledger().AddTokens(100, 50)
	child.Ledger().AddCost(0.25)

	snap := root.Ledger().Snapshot()
	assert.Equal(t, int64(150), snap.TotalTokens)
	assert.InDelta(t, 0.25, snap.Cost, 1e-9)
}

func TestRunStatus_TerminalStates(t *testing.T) {
	ctx := New("wf", nil)
	ctx.SetRunStatus(RunRunning)
	ctx.SetRunStatus(RunCompleted)
	ctx.SetRunStatus(RunFailed) // must not override a terminal state
	assert.Equal(t, RunCompleted, ctx.RunStatus())
}
