// Package runstate tracks the mutable state of one workflow run: per-block
// outputs and statuses, the cost ledger, and the run-level state machine.
// Outputs are write-once; the engine never dispatches a block twice, so no
// two handlers ever race on the same slot.
package runstate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blockflow/blockflow/internal/variables"
)

// Status is the execution status of a single block.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status is one a block can end a run in.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusSkipped
}

// RunStatus is the state machine of the run itself.
type RunStatus string

const (
	RunInitializing RunStatus = "initializing"
	RunRunning      RunStatus = "running"
	RunCompleted    RunStatus = "completed"
	RunFailed       RunStatus = "failed"
	RunCancelled    RunStatus = "cancelled"
)

// BlockRecord is the frozen view of one block after the run.
type BlockRecord struct {
	Status     Status         `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt,omitzero"`
	FinishedAt time.Time      `json:"finishedAt,omitzero"`
}

// Context is the run-scoped record every handler writes into. Loop and
// parallel controllers fork children whose lookups fall through to the
// parent while their writes stay local to the iteration.
type Context struct {
	WorkflowID string
	RunID      string

	mu       sync.RWMutex
	status   RunStatus
	records  map[string]*BlockRecord
	names    map[string]string // block name -> block id
	scope    map[string]any    // loop/parallel iteration variables
	parent   *Context
	vars     *variables.Store
	ledger   *Ledger
	started  time.Time
	finished time.Time
}

// New creates the root context for a run.
func New(workflowID string, vars *variables.Store) *Context {
	if vars == nil {
		vars = variables.New(nil)
	}
	return &Context{
		WorkflowID: workflowID,
		RunID:      uuid.NewString(),
		status:     RunInitializing,
		records:    make(map[string]*BlockRecord),
		names:      make(map[string]string),
		vars:       vars,
		ledger:     &Ledger{},
		started:    time.Now(),
	}
}

// Fork creates a child context for a subflow iteration. The child shares the
// variable store and cost ledger, sees the parent's outputs, and exposes the
// given scope values (currentItem, currentIteration, ...) to resolution.
func (c *Context) Fork(scope map[string]any) *Context {
	return &Context{
		WorkflowID: c.WorkflowID,
		RunID:      c.RunID,
		status:     RunRunning,
		records:    make(map[string]*BlockRecord),
		names:      make(map[string]string),
		scope:      scope,
		parent:     c,
		vars:       c.vars,
		ledger:     c.ledger,
		started:    time.Now(),
	}
}

// Register declares a block before the run starts so status queries and
// name-based references resolve. Registering twice is a programmer error.
func (c *Context) Register(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.records[id]; exists {
		panic(fmt.Sprintf("runstate: block %q registered twice", id))
	}
	c.records[id] = &BlockRecord{Status: StatusPending}
	if name != "" {
		c.names[name] = id
	}
}

// MarkRunning transitions a block to running and stamps its start time.
func (c *Context) MarkRunning(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.records[id]
	rec.Status = StatusRunning
	rec.StartedAt = time.Now()
}

// Complete records a block's output exactly once and marks it success.
func (c *Context) Complete(id string, output map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.records[id]
	if rec.Status.Terminal() {
		panic(fmt.Sprintf("runstate: block %q written twice", id))
	}
	rec.Status = StatusSuccess
	rec.Output = output
	rec.FinishedAt = time.Now()
}

// Fail marks a block errored with the given message. When the block's error
// policy is continue, downstream resolution sees a null output.
func (c *Context) Fail(id string, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.records[id]
	if rec.Status.Terminal() {
		return
	}
	rec.Status = StatusError
	rec.Error = msg
	rec.FinishedAt = time.Now()
}

// FailWithOutput marks a block errored while retaining a partial output.
// Parallel containers use it so the merged results of successful instances
// survive the aggregate failure.
func (c *Context) FailWithOutput(id string, msg string, output map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.records[id]
	if rec.Status.Terminal() {
		return
	}
	rec.Status = StatusError
	rec.Error = msg
	rec.Output = output
	rec.FinishedAt = time.Now()
}

// Skip marks a block skipped. Skipping an already-terminal block is a no-op.
func (c *Context) Skip(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.records[id]
	if rec.Status.Terminal() {
		return
	}
	rec.Status = StatusSkipped
	rec.FinishedAt = time.Now()
}

// Status returns a block's current status.
func (c *Context) Status(id string) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rec, ok := c.records[id]; ok {
		return rec.Status
	}
	return StatusPending
}

// Output returns a block's recorded output. The second return is false when
// the block has not completed.
func (c *Context) Output(id string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	if !ok || rec.Status != StatusSuccess && rec.Status != StatusError {
		return nil, false
	}
	return rec.Output, true
}

// Records returns a copy of every block record, keyed by block id.
func (c *Context) Records() map[string]BlockRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]BlockRecord, len(c.records))
	for id, rec := range c.records {
		out[id] = *rec
	}
	return out
}

// Variables returns the run's variable store.
func (c *Context) Variables() *variables.Store { return c.vars }

// Ledger returns the run's accumulated cost counters.
func (c *Context) Ledger() *Ledger { return c.ledger }

// SetRunStatus transitions the run state machine. Terminal states stick.
func (c *Context) SetRunStatus(s RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.status {
	case RunCompleted, RunFailed, RunCancelled:
		return
	}
	c.status = s
	if s == RunCompleted || s == RunFailed || s == RunCancelled {
		c.finished = time.Now()
	}
}

// RunStatus returns the run's current state.
func (c *Context) RunStatus() RunStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Duration reports how long the run has been going, or took.
func (c *Context) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.finished.IsZero() {
		return time.Since(c.started)
	}
	return c.finished.Sub(c.started)
}
