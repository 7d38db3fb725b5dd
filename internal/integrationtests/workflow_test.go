// End-to-end runs through the wired application: definition file in,
// result JSON out.
package integrationtests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockflow/blockflow/internal/testutil"
	"github.com/blockflow/blockflow/internal/tool"
)

func TestYAMLWorkflowWithLoopAndCondition(t *testing.T) {
	t.Parallel()

	definition := `
id: wf-batch
variables:
  orders: [11, 22, 33]
blocks:
  - id: each
    kind: loop
    config:
      loopType: forEach
      collection: "{{variable.orders}}"
  - id: charge
    kind: generic
    config:
      toolId: billing.charge
      args:
        order: "{{loop.currentItem}}"
  - id: check
    kind: condition
    config:
      expression: "{{each.count}} > 2"
  - id: summary
    kind: response
    config:
      fields:
        charged: "{{each.count}}"
  - id: alarm
    kind: function
    config:
      code: '"too few"'
edges:
  - {source: each, target: check}
  - {source: check, target: summary, sourceHandle: "true"}
  - {source: check, target: alarm, sourceHandle: "false"}
groups:
  - {owner: each, kind: loop, blocks: [charge], entry: charge, exit: charge}
`

	var charged []any
	res := testutil.RunWorkflowTest(t, "batch.yaml", definition, func(r *tool.Registry) {
		r.Register("billing.charge", func(ctx context.Context, params map[string]any) (tool.Result, error) {
			charged = append(charged, params["order"])
			return tool.Result{Success: true, Output: map[string]any{"order": params["order"]}}, nil
		})
	})

	require.NoError(t, res.Err)
	require.NotNil(t, res.Result)
	assert.Equal(t, "completed", res.Result["status"])

	output, ok := res.Result["output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), output["charged"])

	assert.Equal(t, []any{11, 22, 33}, charged)

	blocks, ok := res.Result["blocks"].(map[string]any)
	require.True(t, ok)
	alarm := blocks["alarm"].(map[string]any)
	assert.Equal(t, "skipped", alarm["status"])
}

func TestHCLWorkflowFailureSurfacesInResult(t *testing.T) {
	t.Parallel()

	definition := `
workflow "wf-fragile" {
  block "boom" {
    kind = "generic"
    config = {
      toolId = "always.fails"
    }
  }
  block "never" {
    kind = "function"
    config = { code = "1" }
  }
  edge {
    source = "boom"
    target = "never"
  }
}
`

	res := testutil.RunWorkflowTest(t, "fragile.hcl", definition, func(r *tool.Registry) {
		r.Register("always.fails", func(ctx context.Context, params map[string]any) (tool.Result, error) {
			return tool.Failure("downstream unavailable"), nil
		})
	})

	require.Error(t, res.Err)
	require.NotNil(t, res.Result)
	assert.Equal(t, "failed", res.Result["status"])
	assert.Contains(t, res.Result["error"], "boom")
}
