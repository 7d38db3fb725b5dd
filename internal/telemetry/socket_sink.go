package telemetry

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// executionUpdateEvent is the event name the host UI listens on for live
// run progress.
const executionUpdateEvent = "execution_update"

// socketBufferSize bounds the number of queued updates. When the host is
// slower than the engine, updates are dropped instead of stalling dispatch.
const socketBufferSize = 256

// SocketSink streams execution updates to a socket.io endpoint so a host UI
// can render run progress live. Emit never blocks: events flow through a
// bounded queue drained by a single pump goroutine.
type SocketSink struct {
	logger *slog.Logger
	io     *socket.Socket
	queue  chan Event
	done   chan struct{}
}

// NewSocketSink connects to the given socket.io URL (namespace taken from
// the URL path) and starts the pump. The connection is established in the
// background; events queued before connect are delivered once it is up.
func NewSocketSink(rawURL string, logger *slog.Logger) (*SocketSink, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid socket.io url: %w", err)
	}
	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	namespace := parsed.Path
	if namespace == "" {
		namespace = "/"
	}

	opts := socket.DefaultOptions()
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	s := &SocketSink{
		logger: logger,
		io:     io,
		queue:  make(chan Event, socketBufferSize),
		done:   make(chan struct{}),
	}

	io.On(types.EventName("connect"), func(...any) {
		logger.Debug("Telemetry socket connected.", "namespace", namespace, "sid", io.Id())
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		// Telemetry failures never affect execution.
		logger.Warn("Telemetry socket connect error.", "error", fmt.Sprintf("%v", errs))
	})
	io.Connect()

	go s.pump()
	return s, nil
}

// Emit queues an event without blocking. A full queue drops the event.
func (s *SocketSink) Emit(ev Event) {
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn("Telemetry queue full, dropping update.", "blockId", ev.BlockID, "kind", string(ev.Kind))
	}
}

// Close stops the pump and disconnects the socket.
func (s *SocketSink) Close() {
	close(s.done)
	s.io.Disconnect()
}

func (s *SocketSink) pump() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			if err := s.io.Emit(executionUpdateEvent, ev); err != nil {
				s.logger.Warn("Failed to emit telemetry update.", "error", err)
			}
		}
	}
}
