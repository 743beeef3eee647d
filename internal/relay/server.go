package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avolkhov/relaynode/internal/events"
	"github.com/avolkhov/relaynode/internal/logging"
)

// Server accepts WebSocket upgrade requests and hands each accepted
// connection to a new Session. It owns the registry and the liveness
// monitor; Shutdown drains every live session before returning.
type Server struct {
	registry   *Registry
	bus        *events.Bus
	sessionCfg SessionConfig
	monitor    *Monitor
	upgrader   websocket.Upgrader
	accepting  atomic.Bool
	logger     *slog.Logger
	procLogger *slog.Logger
}

// ServerConfig carries the relay server settings.
type ServerConfig struct {
	Session     SessionConfig
	PingPeriod  time.Duration
	PongTimeout time.Duration
}

// NewServer creates a relay server. Call Start before serving requests.
func NewServer(cfg ServerConfig, bus *events.Bus) *Server {
	registry := NewRegistry()
	logger := logging.GetLogger("relay")
	s := &Server{
		registry:   registry,
		bus:        bus,
		sessionCfg: cfg.Session,
		monitor:    NewMonitor(registry, cfg.PingPeriod, cfg.PongTimeout, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Browser clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:     logger,
		procLogger: logging.GetLogger("transcoder"),
	}
	return s
}

// Registry exposes the session registry for status reporting.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Count returns the number of live sessions.
func (s *Server) Count() int {
	return s.registry.Count()
}

// Start begins accepting connections and starts the liveness monitor.
func (s *Server) Start() {
	s.accepting.Store(true)
	s.monitor.Start()
}

// HandleWS upgrades the request and runs a session for its lifetime.
// During shutdown new connections are refused with 503 before upgrade.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !s.accepting.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	sess := NewSession(conn, s.registry, s.bus, s.sessionCfg, s.logger, s.procLogger)
	sess.Run()
}

// Shutdown stops accepting new connections, tears down every live
// session, and waits for their transcoders to exit or the context to
// expire, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.accepting.Store(false)
	s.monitor.Stop()

	sessions := s.registry.Sessions()
	for _, sess := range sessions {
		sess.Teardown("server shutdown")
	}
	for _, sess := range sessions {
		select {
		case <-sess.Finished():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
