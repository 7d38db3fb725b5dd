package handler

import (
	"context"

	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
)

// Starter seeds the run by exposing the workflow's initial input as its
// output, so downstream blocks reference it as {{start.field}}.
type Starter struct{}

func (h *Starter) CanHandle(b *graph.Block) bool { return b.Kind == graph.KindStarter }

func (h *Starter) Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	seed := getMap(inputs, "input")
	output := make(map[string]any, len(seed)+1)
	for k, v := range seed {
		output[k] = v
	}
	output["input"] = seed
	return output, nil
}
