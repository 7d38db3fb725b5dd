// Package graph defines the immutable workflow graph model: typed blocks,
// branch-labeled edges, and loop/parallel groupings. A Workflow is validated
// once at load time and never mutated during a run.
package graph

import "time"

// Kind identifies the behavior of a block.
type Kind string

const (
	KindStarter   Kind = "starter"
	KindAgent     Kind = "agent"
	KindApi       Kind = "api"
	KindCondition Kind = "condition"
	KindRouter    Kind = "router"
	KindFunction  Kind = "function"
	KindEvaluator Kind = "evaluator"
	KindLoop      Kind = "loop"
	KindParallel  Kind = "parallel"
	KindResponse  Kind = "response"
	KindGeneric   Kind = "generic"
)

// ErrorPolicy controls what the engine does when a block's handler fails.
type ErrorPolicy string

const (
	// ErrorHalt fails the whole run on the first error from this block.
	ErrorHalt ErrorPolicy = "halt"
	// ErrorContinue records the error and lets downstream blocks run
	// against a null output.
	ErrorContinue ErrorPolicy = "continue"
)

// Condition blocks label their two outgoing edges with these handles.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// RetryPolicy enables bounded retries of a block's handler when the failure
// is retryable (tool-level failures, timeouts).
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Block is a single node in the workflow graph. The Config variant matches
// the Kind; the loader guarantees the pairing before a Workflow is returned.
type Block struct {
	ID      string
	Name    string
	Kind    Kind
	Enabled bool
	OnError ErrorPolicy
	Timeout time.Duration
	Retry   *RetryPolicy
	Config  Config

	// Outputs lists the named fields the block promises to produce.
	// Purely declarative; used by authoring tools and validation.
	Outputs []string
}

// Edge is a directed dependency between two blocks. SourceHandle tags which
// branch of a Condition/Router source this edge represents; it is empty for
// plain data edges.
type Edge struct {
	Source       string
	Target       string
	SourceHandle string
}

// GroupKind distinguishes loop groups from parallel groups.
type GroupKind string

const (
	GroupLoop     GroupKind = "loop"
	GroupParallel GroupKind = "parallel"
)

// Group binds a subset of blocks to the Loop or Parallel container block
// that owns their iteration semantics. Entry and Exit designate the
// single-entry/single-exit contract of the nested subgraph.
type Group struct {
	Owner  string
	Kind   GroupKind
	Blocks []string
	Entry  string
	Exit   string
}

// Workflow is the complete, immutable description handed to the engine.
type Workflow struct {
	ID        string
	Name      string
	Blocks    []*Block
	Edges     []Edge
	Groups    []Group
	Variables map[string]any
}

// Block returns the block with the given id, or nil.
func (w *Workflow) Block(id string) *Block {
	for _, b := range w.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// Group returns the group owned by the given container block, or nil.
func (w *Workflow) Group(owner string) *Group {
	for i := range w.Groups {
		if w.Groups[i].Owner == owner {
			return &w.Groups[i]
		}
	}
	return nil
}

// Grouped reports whether the block belongs to any loop/parallel group.
// Grouped blocks are scheduled by their container, never by the outer run.
func (w *Workflow) Grouped(id string) bool {
	for _, g := range w.Groups {
		for _, b := range g.Blocks {
			if b == id {
				return true
			}
		}
	}
	return false
}
