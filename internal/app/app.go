package app

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blockflow/blockflow/internal/engine"
	"github.com/blockflow/blockflow/internal/handler"
	"github.com/blockflow/blockflow/internal/sandbox"
	"github.com/blockflow/blockflow/internal/telemetry"
	"github.com/blockflow/blockflow/internal/tool"
)

// App encapsulates the application's dependencies and lifecycle: the tool
// registry, the handler chain, the telemetry sinks, and the engine.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	tools   *tool.Registry
	engine  *engine.Engine
	metrics *prometheus.Registry
	stream  *telemetry.SocketSink
}

// New builds a fully wired App. Callers register extra tools (model
// providers, custom integrations) through the register callbacks before the
// built-ins claim their ids.
func New(outW io.Writer, cfg *Config, register ...func(*tool.Registry)) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)

	tools := tool.NewRegistry()
	for _, fn := range register {
		fn(tools)
	}
	tool.RegisterHTTP(tools, tool.NewHTTPClient(cfg.HTTPTimeout))
	logger.Debug("Tool registry populated.")

	metrics := prometheus.NewRegistry()
	sinks := telemetry.Multi{
		telemetry.NewSlogSink(logger),
		telemetry.NewPrometheusSink(metrics),
	}

	var stream *telemetry.SocketSink
	if cfg.StreamURL != "" {
		s, err := telemetry.NewSocketSink(cfg.StreamURL, logger)
		if err != nil {
			return nil, err
		}
		stream = s
		sinks = append(sinks, s)
		logger.Debug("Streaming telemetry sink connected.", "url", cfg.StreamURL)
	}

	chain := handler.NewChain(tools, sandbox.New(cfg.BlockTimeout))
	eng := engine.New(chain, sinks, engine.Options{
		Workers:        cfg.Workers,
		DefaultTimeout: cfg.BlockTimeout,
		Fanout:         cfg.Fanout,
	})

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		tools:   tools,
		engine:  eng,
		metrics: metrics,
		stream:  stream,
	}, nil
}

// Tools returns the application's tool registry, primarily for testing.
func (a *App) Tools() *tool.Registry { return a.tools }

// Close releases the app's long-lived resources.
func (a *App) Close() {
	if a.stream != nil {
		a.stream.Close()
	}
}
