// Package testutil provides shared helpers for integration tests: a
// thread-safe log buffer and a harness that runs a workflow definition
// through the fully wired application.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockflow/blockflow/internal/app"
	"github.com/blockflow/blockflow/internal/tool"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of one harnessed workflow run.
type HarnessResult struct {
	// Output is everything the app wrote: log lines and the result JSON.
	Output string
	// Result is the decoded run result, nil when the run never started.
	Result map[string]any
	Err    error
}

// RunWorkflowTest writes the definition to a temp file, builds a fully
// wired app around it, and runs it to completion. The filename's extension
// selects the definition format. Tools registered through register are
// available to generic and agent blocks.
func RunWorkflowTest(t *testing.T, filename, definition string, register ...func(*tool.Registry)) *HarnessResult {
	t.Helper()
	return RunWorkflowTestWithContext(context.Background(), t, filename, definition, register...)
}

// RunWorkflowTestWithContext is RunWorkflowTest with a caller-owned context,
// for cancellation scenarios.
func RunWorkflowTestWithContext(ctx context.Context, t *testing.T, filename, definition string, register ...func(*tool.Registry)) *HarnessResult {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(definition), 0o644))

	cfg, err := app.NewConfig(app.Config{
		WorkflowPath: path,
		LogLevel:     "debug",
		LogFormat:    "json",
	})
	require.NoError(t, err)

	var out SafeBuffer
	flowApp, err := app.New(&out, cfg, register...)
	require.NoError(t, err)
	t.Cleanup(flowApp.Close)

	runErr := flowApp.Run(ctx)

	res := &HarnessResult{Output: out.String(), Err: runErr}
	res.Result = extractResult(res.Output)
	return res
}

// extractResult pulls the indented result JSON back out of the mixed
// log-and-result output stream.
func extractResult(output string) map[string]any {
	start := strings.Index(output, "{\n")
	if start < 0 {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(output[start:]))
	var res map[string]any
	if err := dec.Decode(&res); err != nil {
		return nil
	}
	return res
}
