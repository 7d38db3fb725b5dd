// Package telemetry emits per-block start/end/error events from the engine.
// Sinks are fire-and-forget: they must never block and never fail the run.
package telemetry

import (
	"time"
)

// EventKind classifies a telemetry event.
type EventKind string

const (
	RunStart   EventKind = "run_start"
	RunEnd     EventKind = "run_end"
	BlockStart EventKind = "block_start"
	BlockEnd   EventKind = "block_end"
	BlockError EventKind = "block_error"
)

// Event is one engine observation.
type Event struct {
	Kind       EventKind     `json:"kind"`
	RunID      string        `json:"runId"`
	WorkflowID string        `json:"workflowId"`
	BlockID    string        `json:"blockId,omitempty"`
	BlockKind  string        `json:"blockKind,omitempty"`
	Status     string        `json:"status,omitempty"`
	Error      string        `json:"error,omitempty"`
	At         time.Time     `json:"at"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Sink consumes events. Implementations must return quickly and swallow
// their own failures.
type Sink interface {
	Emit(ev Event)
}

// Multi fans one event out to several sinks.
type Multi []Sink

func (m Multi) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// Discard drops every event. Useful default for embedding the engine.
type Discard struct{}

func (Discard) Emit(Event) {}
