package handler

import (
	"context"

	"github.com/blockflow/blockflow/internal/ctxlog"
	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
)

// VariableSetToolID is the built-in tool id that writes a workflow variable.
const VariableSetToolID = "variable.set"

// VariableSet writes a value into the run's variable store. The store is
// shared with every forked iteration scope and loop iterations run
// sequentially, so a loop body can accumulate state across iterations and
// blocks after the loop read the final value through {{variable.name}}.
type VariableSet struct{}

func (h *VariableSet) CanHandle(b *graph.Block) bool {
	cfg, ok := b.Config.(*graph.GenericConfig)
	return ok && b.Kind == graph.KindGeneric && cfg.ToolID == VariableSetToolID
}

func (h *VariableSet) Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	args := getMap(inputs, "args")
	name := getString(args, "name")
	if name == "" {
		return nil, &ExecutionError{BlockID: b.ID, Message: "variable.set requires a name argument"}
	}
	value := args["value"]
	rs.Variables().Set(name, value)
	ctxlog.FromContext(ctx).Debug("Variable written.", "blockId", b.ID, "name", name)
	return map[string]any{"name": name, "value": value}, nil
}
