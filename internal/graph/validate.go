package graph

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError collects every structural violation found in a workflow.
// Execution never starts while the definition has any violation, and all of
// them are reported at once so an author can fix the whole batch.
type ValidationError struct {
	WorkflowID string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow %q failed validation with %d violation(s): %s",
		e.WorkflowID, len(e.Violations), strings.Join(e.Violations, "; "))
}

// Validate checks the structural invariants of a workflow definition:
// unique block ids, resolvable edge endpoints, branch labels on
// condition/router edges, single-entry/single-exit groups, and acyclicity
// outside of loop/parallel constructs. It returns a *ValidationError
// enumerating every violation, or nil.
func Validate(w *Workflow) error {
	var violations []string
	report := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	blocks := make(map[string]*Block, len(w.Blocks))
	for _, b := range w.Blocks {
		if b.ID == "" {
			report("block %q has an empty id", b.Name)
			continue
		}
		if _, dup := blocks[b.ID]; dup {
			report("duplicate block id %q", b.ID)
			continue
		}
		blocks[b.ID] = b
		if b.Config == nil {
			report("block %q has no config", b.ID)
		} else if err := checkConfigKind(b); err != nil {
			report("%s", err.Error())
		}
	}

	outgoing := make(map[string][]Edge)
	for _, e := range w.Edges {
		if _, ok := blocks[e.Source]; !ok {
			report("edge references unknown source block %q", e.Source)
			continue
		}
		if _, ok := blocks[e.Target]; !ok {
			report("edge references unknown target block %q", e.Target)
			continue
		}
		if e.Source == e.Target {
			report("block %q has a self-referential edge", e.Source)
			continue
		}
		outgoing[e.Source] = append(outgoing[e.Source], e)
	}

	for id, b := range blocks {
		switch b.Kind {
		case KindCondition:
			checkConditionEdges(id, outgoing[id], report)
		case KindRouter:
			checkRouterEdges(b, outgoing[id], report)
		case KindResponse:
			if len(outgoing[id]) > 0 {
				report("response block %q must not have outgoing edges", id)
			}
		}
	}

	grouped := make(map[string]string) // member id -> owner id
	for _, g := range w.Groups {
		validateGroup(w, &g, blocks, grouped, report)
	}

	if cycle := findCycle(w, blocks, grouped); cycle != "" {
		report("cycle detected involving block %q outside of any loop or parallel group", cycle)
	}

	if len(violations) == 0 {
		return nil
	}
	sort.Strings(violations)
	return &ValidationError{WorkflowID: w.ID, Violations: violations}
}

func checkConfigKind(b *Block) error {
	ok := false
	switch b.Config.(type) {
	case *StarterConfig:
		ok = b.Kind == KindStarter
	case *AgentConfig:
		ok = b.Kind == KindAgent
	case *ApiConfig:
		ok = b.Kind == KindApi
	case *ConditionConfig:
		ok = b.Kind == KindCondition
	case *RouterConfig:
		ok = b.Kind == KindRouter
	case *FunctionConfig:
		ok = b.Kind == KindFunction
	case *EvaluatorConfig:
		ok = b.Kind == KindEvaluator
	case *LoopConfig:
		ok = b.Kind == KindLoop
	case *ParallelConfig:
		ok = b.Kind == KindParallel
		if ok {
			cfg := b.Config.(*ParallelConfig)
			if cfg.FailurePolicy != FailAnyError && cfg.FailurePolicy != FailAllErrors {
				return fmt.Errorf("parallel block %q requires an explicit failure policy (%q or %q)",
					b.ID, FailAnyError, FailAllErrors)
			}
		}
	case *ResponseConfig:
		ok = b.Kind == KindResponse
	case *GenericConfig:
		ok = b.Kind == KindGeneric
	}
	if !ok {
		return fmt.Errorf("block %q config type does not match kind %q", b.ID, b.Kind)
	}
	return nil
}

func checkConditionEdges(id string, edges []Edge, report func(string, ...any)) {
	var hasTrue, hasFalse bool
	for _, e := range edges {
		switch e.SourceHandle {
		case BranchTrue:
			hasTrue = true
		case BranchFalse:
			hasFalse = true
		default:
			report("condition block %q edge to %q carries label %q, want %q or %q",
				id, e.Target, e.SourceHandle, BranchTrue, BranchFalse)
		}
	}
	if !hasTrue || !hasFalse {
		report("condition block %q must have both a %q and a %q outgoing edge", id, BranchTrue, BranchFalse)
	}
}

func checkRouterEdges(b *Block, edges []Edge, report func(string, ...any)) {
	cfg, ok := b.Config.(*RouterConfig)
	if !ok {
		return
	}
	declared := make(map[string]bool, len(cfg.Routes))
	for _, r := range cfg.Routes {
		declared[r] = true
	}
	covered := make(map[string]bool)
	for _, e := range edges {
		if e.SourceHandle == "" {
			report("router block %q edge to %q is missing a route label", b.ID, e.Target)
			continue
		}
		if !declared[e.SourceHandle] {
			report("router block %q edge to %q carries undeclared route %q", b.ID, e.Target, e.SourceHandle)
			continue
		}
		covered[e.SourceHandle] = true
	}
	for _, r := range cfg.Routes {
		if !covered[r] {
			report("router block %q declares route %q but no outgoing edge carries it", b.ID, r)
		}
	}
}

func validateGroup(w *Workflow, g *Group, blocks map[string]*Block, grouped map[string]string, report func(string, ...any)) {
	owner, ok := blocks[g.Owner]
	if !ok {
		report("group references unknown owner block %q", g.Owner)
		return
	}
	switch g.Kind {
	case GroupLoop:
		if owner.Kind != KindLoop {
			report("group owner %q must be a loop block, got %q", g.Owner, owner.Kind)
		}
	case GroupParallel:
		if owner.Kind != KindParallel {
			report("group owner %q must be a parallel block, got %q", g.Owner, owner.Kind)
		}
	default:
		report("group owned by %q has unknown kind %q", g.Owner, g.Kind)
	}

	members := make(map[string]bool, len(g.Blocks))
	for _, id := range g.Blocks {
		if _, ok := blocks[id]; !ok {
			report("group %q references unknown member block %q", g.Owner, id)
			continue
		}
		if prev, taken := grouped[id]; taken {
			report("block %q belongs to both group %q and group %q", id, prev, g.Owner)
			continue
		}
		grouped[id] = g.Owner
		members[id] = true
	}

	if len(members) == 0 {
		report("group %q has no member blocks", g.Owner)
		return
	}
	if !members[g.Entry] {
		report("group %q entry %q is not a member block", g.Owner, g.Entry)
	}
	if !members[g.Exit] {
		report("group %q exit %q is not a member block", g.Owner, g.Exit)
	}

	// Entry must be the only member with no in-group predecessor, so the
	// subgraph has a single way in and closes back at the exit.
	for _, e := range w.Edges {
		if members[e.Target] && e.Target != g.Entry && !members[e.Source] && e.Source != g.Owner {
			report("group %q member %q has an edge from outside the group", g.Owner, e.Target)
		}
		if members[e.Source] && e.Source != g.Exit && !members[e.Target] {
			report("group %q member %q has an edge escaping the group", g.Owner, e.Source)
		}
	}
}

// findCycle runs a depth-first search over ungrouped blocks. Grouped blocks
// are opaque to the outer graph: back-edges inside loop bodies are the
// loop's business, not a structural defect.
func findCycle(w *Workflow, blocks map[string]*Block, grouped map[string]string) string {
	adj := make(map[string][]string)
	for _, e := range w.Edges {
		if _, inGroup := grouped[e.Source]; inGroup {
			continue
		}
		if _, inGroup := grouped[e.Target]; inGroup {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(id string) string
	visit = func(id string) string {
		if permanent[id] {
			return ""
		}
		if temporary[id] {
			return id
		}
		temporary[id] = true
		for _, next := range adj[id] {
			if hit := visit(next); hit != "" {
				return hit
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return ""
	}

	ids := make([]string, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, inGroup := grouped[id]; inGroup {
			continue
		}
		if hit := visit(id); hit != "" {
			return hit
		}
	}
	return ""
}
