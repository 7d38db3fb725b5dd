// Package subflow implements the loop and parallel controllers. Each owns
// the iteration semantics of one container block and re-enters the engine
// on the enclosed subgraph with a fresh per-iteration state scope.
package subflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/runstate"
)

// Runner re-enters the engine on a nested subgraph. The engine implements
// it; controllers hold it instead of the engine type to keep the import
// graph acyclic.
type Runner interface {
	RunSubgraph(ctx context.Context, wf *graph.Workflow, st *runstate.Context) error
}

// PartialFailureError reports a container block whose aggregate status is
// error while some instances succeeded. Output carries the merged results
// so successful instances are not lost with the failure.
type PartialFailureError struct {
	BlockID string
	Message string
	Output  map[string]any
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("block %s: %s", e.BlockID, e.Message)
}

// Subgraph assembles the workflow a container block's group encloses:
// member blocks, the edges among them, and any nested groups, recursively.
func Subgraph(wf *graph.Workflow, g *graph.Group) *graph.Workflow {
	included := make(map[string]bool)
	var groups []graph.Group

	var include func(ids []string)
	include = func(ids []string) {
		for _, id := range ids {
			if included[id] {
				continue
			}
			included[id] = true
			if nested := wf.Group(id); nested != nil {
				groups = append(groups, *nested)
				include(nested.Blocks)
			}
		}
	}
	include(g.Blocks)

	sub := &graph.Workflow{
		ID:        wf.ID,
		Name:      fmt.Sprintf("%s/%s", wf.Name, g.Owner),
		Groups:    groups,
		Variables: wf.Variables,
	}
	for _, b := range wf.Blocks {
		if included[b.ID] {
			sub.Blocks = append(sub.Blocks, b)
		}
	}
	for _, e := range wf.Edges {
		if included[e.Source] && included[e.Target] {
			sub.Edges = append(sub.Edges, e)
		}
	}
	return sub
}

// collectionItems normalizes a resolved collection into ordered items.
// Arrays keep their order; mappings iterate in sorted key order so runs
// are deterministic.
func collectionItems(collection any) ([]any, []string, error) {
	switch v := collection.(type) {
	case nil:
		// A missing or null collection is a config mistake, not an empty
		// fan-out. An empty array is the way to spell zero iterations.
		return nil, nil, fmt.Errorf("collection resolved to null")
	case []any:
		return v, nil, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]any, len(keys))
		for i, k := range keys {
			items[i] = v[k]
		}
		return items, keys, nil
	default:
		return nil, nil, fmt.Errorf("collection must be an array or mapping, got %T", collection)
	}
}
