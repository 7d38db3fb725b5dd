package handler

import (
	"context"

	"github.com/blockflow/blockflow/internal/ctxlog"
	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/tool"
)

// DefaultAgentToolID is the model-provider tool agent blocks call when the
// author does not pick one.
const DefaultAgentToolID = "model.generate"

// Agent composes a model call from its config and resolved inputs,
// delegates to the tool boundary, and accumulates token/cost counters on
// the run's ledger.
type Agent struct {
	tools tool.Invoker
}

func (h *Agent) CanHandle(b *graph.Block) bool { return b.Kind == graph.KindAgent }

func (h *Agent) Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	toolID := DefaultAgentToolID
	if cfg, ok := b.Config.(*graph.AgentConfig); ok && cfg.ToolID != "" {
		toolID = cfg.ToolID
	}

	params := map[string]any{
		"model":        getString(inputs, "model"),
		"prompt":       getString(inputs, "prompt"),
		"systemPrompt": getString(inputs, "systemPrompt"),
		"params":       getMap(inputs, "params"),
	}

	res, err := h.tools.Invoke(ctx, toolID, params)
	if err != nil {
		return nil, &ExecutionError{BlockID: b.ID, ToolID: toolID, Message: "model invocation failed", Retryable: true, Err: err}
	}
	if !res.Success {
		return nil, &ExecutionError{BlockID: b.ID, ToolID: toolID, Message: res.Error, Retryable: true}
	}

	h.recordUsage(ctx, rs, res.Output)
	return res.Output, nil
}

// recordUsage moves token and cost counters from the tool result onto the
// run ledger. Providers that report nothing simply add nothing.
func (h *Agent) recordUsage(ctx context.Context, rs *runstate.Context, output map[string]any) {
	tokens, _ := output["tokens"].(map[string]any)
	prompt := int64(getFloat(tokens, "prompt"))
	completion := int64(getFloat(tokens, "completion"))
	if prompt > 0 || completion > 0 {
		rs.Ledger().AddTokens(prompt, completion)
	}
	if cost := getFloat(output, "cost"); cost > 0 {
		rs.Ledger().AddCost(cost)
	}
	ctxlog.FromContext(ctx).Debug("Recorded model usage.", "promptTokens", prompt, "completionTokens", completion)
}
