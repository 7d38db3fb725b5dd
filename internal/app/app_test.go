package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockflow/blockflow/internal/app"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/tool"
)

const orderWorkflow = `{
  "id": "wf-orders",
  "blocks": [
    {"id": "start", "kind": "starter", "config": {"input": {"orderId": 7}}},
    {"id": "lookup", "kind": "generic", "config": {"toolId": "orders.lookup", "args": {"id": "{{start.orderId}}"}}},
    {"id": "respond", "kind": "response", "config": {"fields": {"status": "{{lookup.status}}", "region": "{{variable.region}}"}}}
  ],
  "edges": [
    {"source": "start", "target": "lookup"},
    {"source": "lookup", "target": "respond"}
  ],
  "variables": {"region": "us"}
}`

func TestAppRunWritesResult(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "orders.json")
	require.NoError(t, os.WriteFile(path, []byte(orderWorkflow), 0o644))

	cfg, err := app.NewConfig(app.Config{
		WorkflowPath: path,
		LogLevel:     "error",
		LogFormat:    "json",
		Variables:    map[string]any{"region": "eu"},
	})
	require.NoError(t, err)

	var out bytes.Buffer
	flowApp, err := app.New(&out, cfg, func(r *tool.Registry) {
		r.Register("orders.lookup", func(ctx context.Context, params map[string]any) (tool.Result, error) {
			return tool.Result{Success: true, Output: map[string]any{"status": "shipped"}}, nil
		})
	})
	require.NoError(t, err)
	defer flowApp.Close()

	require.NoError(t, flowApp.Run(context.Background()))

	var res struct {
		Status string         `json:"status"`
		Output map[string]any `json:"output"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, string(runstate.RunCompleted), res.Status)
	assert.Equal(t, "shipped", res.Output["status"])
	// CLI variables override the definition's seed.
	assert.Equal(t, "eu", res.Output["region"])
}

func TestAppRunReportsLoadFailure(t *testing.T) {
	t.Parallel()

	cfg, err := app.NewConfig(app.Config{
		WorkflowPath: filepath.Join(t.TempDir(), "missing.json"),
		LogLevel:     "error",
	})
	require.NoError(t, err)

	var out bytes.Buffer
	flowApp, err := app.New(&out, cfg)
	require.NoError(t, err)
	defer flowApp.Close()

	err = flowApp.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load workflow")
}

func TestNewConfigRequiresWorkflowPath(t *testing.T) {
	t.Parallel()
	_, err := app.NewConfig(app.Config{})
	require.Error(t, err)
}
