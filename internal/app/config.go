package app

import (
	"errors"
	"time"
)

// Config holds everything an App instance needs to run one workflow.
type Config struct {
	// WorkflowPath points at a .json, .yaml, or .hcl workflow definition.
	WorkflowPath string

	// Variables overrides or extends the definition's variable seed.
	Variables map[string]any

	LogFormat string
	LogLevel  string

	// Workers bounds concurrent block executions per run.
	Workers int
	// Fanout bounds concurrent parallel-block instances.
	Fanout int
	// BlockTimeout bounds blocks that declare no timeout of their own.
	BlockTimeout time.Duration
	// HTTPTimeout bounds outbound calls made by the HTTP tool.
	HTTPTimeout time.Duration

	// DiagnosticsPort serves /health and /metrics when positive.
	DiagnosticsPort int
	// StreamURL, when set, streams run telemetry to a socket.io endpoint.
	StreamURL string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" {
		return nil, errors.New("WorkflowPath is a required configuration field and cannot be empty")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &cfg, nil
}
