package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blockflow/blockflow/internal/ctxlog"
	"github.com/blockflow/blockflow/internal/expr"
	"github.com/blockflow/blockflow/internal/graph"
	"github.com/blockflow/blockflow/internal/handler"
	"github.com/blockflow/blockflow/internal/runstate"
	"github.com/blockflow/blockflow/internal/subflow"
	"github.com/blockflow/blockflow/internal/telemetry"
)

// edgeState tracks whether a dependency edge will carry execution.
// Every edge starts undecided; its source's terminal status decides it.
// A target becomes ready when all incoming edges are decided and at least
// one is active, and becomes skipped when all are decided and none is.
type edgeState int

const (
	edgeUndecided edgeState = iota
	edgeActive
	edgeDead
)

type edge struct {
	spec   graph.Edge
	state  edgeState
	source *node
	target *node
}

type node struct {
	block      *graph.Block
	incoming   []*edge
	outgoing   []*edge
	dispatched bool
	done       bool
}

// run holds the scheduling state for one execution of one graph level.
// Subgraph executions get their own run against a forked state. All node,
// edge, and stop-flag mutations happen under mu; ready-channel sends under
// mu never block because the channel is sized to the node count.
type run struct {
	eng *Engine
	wf  *graph.Workflow
	st  *runstate.Context
	ctx context.Context

	mu       sync.Mutex
	nodes    map[string]*node
	ready    chan *node
	stopping bool
	haltErr  error
	frozen   map[string]any
}

// execute runs every ungrouped block of the workflow to a terminal status.
// It returns the response block's frozen fields, if one resolved, and the
// first halt-policy failure.
func (e *Engine) execute(ctx context.Context, wf *graph.Workflow, st *runstate.Context) (map[string]any, error) {
	r := &run{eng: e, wf: wf, st: st, ctx: ctx}
	r.build()
	if len(r.nodes) == 0 {
		return nil, nil
	}

	logger := ctxlog.FromContext(ctx)

	var wg sync.WaitGroup
	wg.Add(len(r.nodes))

	r.ready = make(chan *node, len(r.nodes))
	roots := 0
	r.mu.Lock()
	for _, n := range r.nodes {
		if len(n.incoming) == 0 {
			n.dispatched = true
			r.ready <- n
			roots++
		}
	}
	r.mu.Unlock()
	logger.DebugContext(ctx, "Scheduler seeded root blocks.", "roots", roots, "blocks", len(r.nodes))

	for i := 0; i < e.workers; i++ {
		go r.worker(ctx, &wg, i)
	}

	// Cancellation settles every block that has not been picked up yet;
	// in-flight blocks are left to finish on their own.
	waitDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.stopping = true
			r.settleRemainingLocked(&wg)
			r.mu.Unlock()
		case <-waitDone:
		}
	}()

	wg.Wait()
	close(waitDone)
	close(r.ready)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen, r.haltErr
}

// build indexes the ungrouped blocks and the edges among them. Grouped
// blocks belong to their container's subgraph and are invisible here; an
// edge crossing a group boundary is carried by the container block, so a
// `member -> outside` edge orders the target after the whole container.
func (r *run) build() {
	owner := make(map[string]string)
	for _, g := range r.wf.Groups {
		for _, id := range g.Blocks {
			owner[id] = g.Owner
		}
	}
	container := func(id string) string {
		for {
			o, ok := owner[id]
			if !ok {
				return id
			}
			id = o
		}
	}

	r.nodes = make(map[string]*node, len(r.wf.Blocks))
	for _, b := range r.wf.Blocks {
		if r.wf.Grouped(b.ID) {
			continue
		}
		r.nodes[b.ID] = &node{block: b}
		r.st.Register(b.ID, b.Name)
	}
	for _, spec := range r.wf.Edges {
		srcID := container(spec.Source)
		dstID := container(spec.Target)
		if srcID == dstID {
			continue
		}
		src, ok := r.nodes[srcID]
		if !ok {
			continue
		}
		dst, ok := r.nodes[dstID]
		if !ok {
			continue
		}
		e := &edge{spec: spec, source: src, target: dst}
		src.outgoing = append(src.outgoing, e)
		dst.incoming = append(dst.incoming, e)
	}
}

func (r *run) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.DebugContext(ctx, "Worker started.")

	for n := range r.ready {
		r.mu.Lock()
		stopped := r.stopping
		r.mu.Unlock()
		if stopped || ctx.Err() != nil {
			// Queued but never started; counts as skipped, not in-flight.
			r.st.Skip(n.block.ID)
			r.emitEnd(n, runstate.StatusSkipped, "", time.Time{})
			r.settleNode(n, wg, nil, true)
			continue
		}
		r.runBlock(ctx, n, wg, logger.With("blockID", n.block.ID))
	}
	logger.DebugContext(ctx, "Worker finished.")
}

func (r *run) runBlock(ctx context.Context, n *node, wg *sync.WaitGroup, logger *slog.Logger) {
	b := n.block

	if !b.Enabled {
		// Disabled blocks pass through: empty output, downstream still runs.
		logger.DebugContext(ctx, "Block disabled, passing through.")
		r.st.Complete(b.ID, map[string]any{})
		r.emitEnd(n, runstate.StatusSuccess, "", time.Time{})
		r.settleNode(n, wg, map[string]any{}, false)
		return
	}

	started := time.Now()
	r.st.MarkRunning(b.ID)
	r.eng.sink.Emit(telemetry.Event{
		Kind:       telemetry.BlockStart,
		RunID:      r.st.RunID,
		WorkflowID: r.wf.ID,
		BlockID:    b.ID,
		BlockKind:  string(b.Kind),
		At:         started,
	})
	logger.DebugContext(ctx, "Worker picked up block for execution.", "kind", b.Kind)

	output, err := r.dispatchWithRetry(ctx, n, logger)

	if err != nil {
		r.failBlock(ctx, n, wg, err, started, logger)
		return
	}

	r.st.Complete(b.ID, output)
	r.emitEnd(n, runstate.StatusSuccess, "", started)
	logger.DebugContext(ctx, "Block execution succeeded.")

	if b.Kind == graph.KindResponse {
		r.mu.Lock()
		if r.frozen == nil {
			r.frozen = output
		}
		r.stopping = true
		r.settleRemainingLocked(wg)
		r.mu.Unlock()
	}

	r.settleNode(n, wg, output, false)
}

// dispatchWithRetry resolves the block's inputs and runs it through the
// handler chain or the matching subflow controller, retrying retryable
// failures per the block's retry policy.
func (r *run) dispatchWithRetry(ctx context.Context, n *node, logger *slog.Logger) (map[string]any, error) {
	b := n.block

	attempts := 1
	if b.Retry != nil && b.Retry.MaxRetries > 0 {
		attempts += b.Retry.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff(b.Retry, attempt)
			logger.WarnContext(ctx, "Retrying block.", "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		output, err := r.dispatchOnce(ctx, n)
		if err == nil {
			return output, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (r *run) dispatchOnce(ctx context.Context, n *node) (map[string]any, error) {
	b := n.block

	inputs, err := r.resolveInputs(b)
	if err != nil {
		return nil, err
	}

	// Container blocks drive their subgraph on the run context so that
	// cancellation stops further iterations; plain blocks get a context
	// detached from run cancellation so in-flight work finishes cleanly.
	switch b.Kind {
	case graph.KindLoop:
		return r.eng.loop.Execute(ctx, r.wf, b, inputs, r.st)
	case graph.KindParallel:
		return r.eng.parallel.Execute(ctx, r.wf, b, inputs, r.st)
	}

	blockCtx := context.WithoutCancel(ctx)
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = r.eng.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		blockCtx, cancel = context.WithTimeout(blockCtx, timeout)
		defer cancel()
	}

	output, err := r.eng.chain.Dispatch(blockCtx, b, inputs, r.st)
	if err != nil && timeout > 0 && errors.Is(blockCtx.Err(), context.DeadlineExceeded) {
		return nil, &handler.ExecutionError{
			BlockID:   b.ID,
			Message:   fmt.Sprintf("timed out after %s", timeout),
			Retryable: true,
			Err:       err,
		}
	}
	return output, err
}

// resolveInputs renders every template in the block's config against the
// run state. Leftover template syntax after resolution is a hard error.
func (r *run) resolveInputs(b *graph.Block) (map[string]any, error) {
	params := b.Config.Params()
	resolved, err := expr.Resolve(params, r.st)
	if err != nil {
		return nil, &handler.ExecutionError{
			BlockID: b.ID,
			Message: "input resolution failed",
			Err:     err,
		}
	}
	inputs, ok := resolved.(map[string]any)
	if !ok {
		return nil, &handler.ExecutionError{
			BlockID: b.ID,
			Message: fmt.Sprintf("resolved inputs are %T, want map", resolved),
		}
	}
	if expr.HasTemplates(inputs) {
		return nil, &handler.ExecutionError{
			BlockID: b.ID,
			Message: "inputs still contain unresolved template syntax",
		}
	}
	return inputs, nil
}

func (r *run) failBlock(ctx context.Context, n *node, wg *sync.WaitGroup, err error, started time.Time, logger *slog.Logger) {
	b := n.block

	var partial *subflow.PartialFailureError
	if errors.As(err, &partial) {
		r.st.FailWithOutput(b.ID, err.Error(), partial.Output)
	} else {
		r.st.Fail(b.ID, err.Error())
	}
	r.eng.sink.Emit(telemetry.Event{
		Kind:       telemetry.BlockError,
		RunID:      r.st.RunID,
		WorkflowID: r.wf.ID,
		BlockID:    b.ID,
		BlockKind:  string(b.Kind),
		Status:     string(runstate.StatusError),
		Error:      err.Error(),
		At:         time.Now(),
		Duration:   time.Since(started),
	})

	if b.OnError == graph.ErrorContinue {
		logger.WarnContext(ctx, "Block failed, continuing per error policy.", "error", err)
		// Downstream blocks still run; references to this block resolve
		// to null.
		r.settleNode(n, wg, nil, false)
		return
	}

	logger.ErrorContext(ctx, "Block failed, halting run.", "error", err)
	r.mu.Lock()
	if r.haltErr == nil {
		r.haltErr = &PolicyHaltError{BlockID: b.ID, Err: err}
	}
	r.stopping = true
	r.settleRemainingLocked(wg)
	r.mu.Unlock()

	r.settleNode(n, wg, nil, true)
}

// settleNode marks a node terminal, decides its outgoing edges, and readies
// or skips the targets whose incoming edges are now fully decided. skipped
// and halt-policy failures kill every outgoing edge; a continue-policy
// failure activates them all.
func (r *run) settleNode(n *node, wg *sync.WaitGroup, output map[string]any, dead bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.done {
		return
	}
	n.done = true
	wg.Done()

	selected, _ := output[handler.SelectedBranchKey].(string)
	for _, e := range n.outgoing {
		switch {
		case dead:
			e.state = edgeDead
		case e.spec.SourceHandle == "" || e.spec.SourceHandle == selected:
			e.state = edgeActive
		default:
			e.state = edgeDead
		}
	}
	for _, e := range n.outgoing {
		r.maybeSettleLocked(e.target, wg)
	}
}

// maybeSettleLocked readies or skips a target once all its incoming edges
// are decided. Skips cascade: a skipped node kills its own outgoing edges
// and re-settles its targets in turn.
func (r *run) maybeSettleLocked(n *node, wg *sync.WaitGroup) {
	if n.done || n.dispatched {
		return
	}
	active := false
	for _, e := range n.incoming {
		switch e.state {
		case edgeUndecided:
			return
		case edgeActive:
			active = true
		}
	}

	if active && !r.stopping && r.ctx.Err() == nil {
		n.dispatched = true
		r.ready <- n
		return
	}

	r.skipLocked(n, wg)
}

func (r *run) skipLocked(n *node, wg *sync.WaitGroup) {
	n.done = true
	wg.Done()
	r.st.Skip(n.block.ID)
	r.emitEnd(n, runstate.StatusSkipped, "", time.Time{})
	for _, e := range n.outgoing {
		e.state = edgeDead
	}
	for _, e := range n.outgoing {
		r.maybeSettleLocked(e.target, wg)
	}
}

// settleRemainingLocked skips every block that has not been dispatched.
// Called on halt, response resolution, and cancellation.
func (r *run) settleRemainingLocked(wg *sync.WaitGroup) {
	for _, n := range r.nodes {
		if !n.done && !n.dispatched {
			r.skipLocked(n, wg)
		}
	}
}

func (r *run) emitEnd(n *node, status runstate.Status, errMsg string, started time.Time) {
	ev := telemetry.Event{
		Kind:       telemetry.BlockEnd,
		RunID:      r.st.RunID,
		WorkflowID: r.wf.ID,
		BlockID:    n.block.ID,
		BlockKind:  string(n.block.Kind),
		Status:     string(status),
		Error:      errMsg,
		At:         time.Now(),
	}
	if !started.IsZero() {
		ev.Duration = time.Since(started)
	}
	r.eng.sink.Emit(ev)
}

// retryBackoff doubles the base delay per attempt, capped by MaxBackoff.
func retryBackoff(p *graph.RetryPolicy, attempt int) time.Duration {
	if p == nil {
		return 0
	}
	base := p.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << (attempt - 1)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

func retryable(err error) bool {
	var execErr *handler.ExecutionError
	return errors.As(err, &execErr) && execErr.Retryable
}
