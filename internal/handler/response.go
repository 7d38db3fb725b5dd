package handler

import (
	"context"

	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
)

// Response freezes its resolved fields as the run's final result. The
// engine stops dispatching new blocks once a response block resolves;
// sibling branches already in flight are allowed to finish.
type Response struct{}

func (h *Response) CanHandle(b *graph.Block) bool { return b.Kind == graph.KindResponse }

func (h *Response) Execute(ctx context.Context, b *graph.Block, inputs map[string]any, rs *runstate.Context) (map[string]any, error) {
	fields := getMap(inputs, "fields")
	output := make(map[string]any, len(fields))
	for k, v := range fields {
		output[k] = v
	}
	return output, nil
}
