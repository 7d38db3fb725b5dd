package handler

import (
	"context"

	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/tool"
)

// API performs an outbound HTTP call through the tool boundary. URL,
// method, headers, and body all arrive template-resolved; non-2xx responses
// come back as failed tool results and surface as retryable block errors.
type API struct {
	tools tool.Invoker
}

func (h *API) CanHandle(b *graph.Block) bool { return b.Kind == graph.KindApi }

func (h *API) Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	params := map[string]any{
		"url":     getString(inputs, "url"),
		"method":  getString(inputs, "method"),
		"headers": getMap(inputs, "headers"),
	}
	if body, ok := inputs["body"]; ok && body != nil {
		params["body"] = body
	}

	res, err := h.tools.Invoke(ctx, tool.HTTPToolID, params)
	if err != nil {
		return nil, &ExecutionError{BlockID: b.ID, ToolID: tool.HTTPToolID, Message: "http invocation failed", Retryable: true, Err: err}
	}
	if !res.Success {
		return nil, &ExecutionError{BlockID: b.ID, ToolID: tool.HTTPToolID, Message: res.Error, Retryable: true}
	}
	return res.Output, nil
}
