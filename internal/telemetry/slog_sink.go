package telemetry

import "log/slog"

// SlogSink writes events to a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink logging at debug for lifecycle events and warn
// for block errors.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ev Event) {
	attrs := []any{
		"runId", ev.RunID,
		"workflowId", ev.WorkflowID,
	}
	if ev.BlockID != "" {
		attrs = append(attrs, "blockId", ev.BlockID, "blockKind", ev.BlockKind)
	}
	if ev.Status != "" {
		attrs = append(attrs, "status", ev.Status)
	}
	if ev.Duration > 0 {
		attrs = append(attrs, "duration", ev.Duration)
	}

	switch ev.Kind {
	case BlockError:
		attrs = append(attrs, "error", ev.Error)
		s.logger.Warn("Block errored.", attrs...)
	case RunStart:
		s.logger.Info("Run started.", attrs...)
	case RunEnd:
		s.logger.Info("Run finished.", attrs...)
	default:
		s.logger.Debug("Block event.", append([]any{"kind", string(ev.Kind)}, attrs...)...)
	}
}
