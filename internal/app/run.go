package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blockflow/blockflow/internal/ctxlog"
	"github.com/blockflow/blockflow/internal/engine"
	"github.com/blockflow/blockflow/internal/loader"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/variables"
)

// Run loads the configured workflow, executes it, and writes the run result
// as JSON to the app's output. A failed or cancelled run still writes its
// result before the error is returned.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	if a.config.DiagnosticsPort > 0 {
		a.startDiagnosticsServer(a.config.DiagnosticsPort)
	}

	wf, err := loader.Load(ctx, a.config.WorkflowPath)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}
	a.logger.Debug("Workflow loaded.", "workflowID", wf.ID, "blocks", len(wf.Blocks))

	seed := make(map[string]any, len(wf.Variables)+len(a.config.Variables))
	for k, v := range wf.Variables {
		seed[k] = v
	}
	for k, v := range a.config.Variables {
		seed[k] = v
	}

	st := runstate.New(wf.ID, variables.New(seed))
	res, runErr := a.engine.Execute(ctx, wf, st)
	if res != nil {
		if werr := a.writeResult(res); werr != nil {
			a.logger.Error("Failed to write run result.", "error", werr)
		}
	}
	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	return nil
}

func (a *App) writeResult(res *engine.Result) error {
	enc := json.NewEncoder(a.outW)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
