package relay

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/avolkhov/relaynode/internal/events"
	"github.com/avolkhov/relaynode/internal/transcoder"
)

// Conn is the subset of *websocket.Conn a session uses. Tests provide
// a fake; production passes the upgraded gorilla connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPongHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() net.Addr
}

// State is the session lifecycle state. Each transition is driven by a
// single well-defined event.
type State int32

const (
	// StateSpawning: connection accepted, transcoder start requested.
	StateSpawning State = iota
	// StateActive: transcoder running, frames flowing both ways.
	StateActive
	// StateDegraded: connection open but no transcoder; data frames
	// are accepted and dropped.
	StateDegraded
	// StateTerminating: teardown in progress.
	StateTerminating
	// StateTerminated: all resources released, session unregistered.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// RespawnPolicy controls what happens when a session's transcoder
// exits on its own.
type RespawnPolicy string

const (
	// RespawnNever keeps the session degraded for its remaining
	// lifetime after a transcoder exit.
	RespawnNever RespawnPolicy = "never"
	// RespawnOnce allows a single respawn attempt per session.
	RespawnOnce RespawnPolicy = "once"
)

// SessionConfig carries the per-session settings shared by all sessions.
type SessionConfig struct {
	TranscoderBinary string
	TranscoderArgs   []string
	GraceTimeout     time.Duration
	KillTimeout      time.Duration
	// InputQueueSize bounds frames queued toward the transcoder stdin.
	// On overflow the oldest queued frame is dropped. Default 64.
	InputQueueSize int
	// OutboundQueueSize bounds frames queued toward the client. Default 256.
	OutboundQueueSize int
	RespawnPolicy     RespawnPolicy
	WriteTimeout      time.Duration
}

func (c *SessionConfig) applyDefaults() {
	if c.TranscoderBinary == "" {
		c.TranscoderBinary = "ffmpeg"
	}
	if c.InputQueueSize <= 0 {
		c.InputQueueSize = 64
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.RespawnPolicy == "" {
		c.RespawnPolicy = RespawnNever
	}
}

// outFrame is a queued outbound WebSocket frame.
type outFrame struct {
	kind int
	data []byte
}

// Session binds one client connection to at most one transcoding
// subprocess and mediates data flow in both directions. All session
// state is mutated only under its mutex; racing teardown triggers
// (close event, liveness timeout, server shutdown) are safe.
type Session struct {
	id       string
	conn     Conn
	registry *Registry
	bus      *events.Bus
	cfg      SessionConfig

	logger     *slog.Logger
	procLogger *slog.Logger

	mu             sync.Mutex
	state          State
	proc           *transcoder.Subprocess
	lastSeen       time.Time
	awaitingPong   bool
	probeSent      time.Time
	respawned      bool
	writeErrLogged bool

	input    chan []byte
	outbound chan outFrame

	teardownOnce sync.Once
	done         chan struct{} // closed by Teardown
	finished     chan struct{} // closed once the transcoder has exited too
}

// NewSession creates a session for an accepted connection. Call Run to
// start it; Run blocks until the session ends.
func NewSession(conn Conn, registry *Registry, bus *events.Bus, cfg SessionConfig, logger, procLogger *slog.Logger) *Session {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if procLogger == nil {
		procLogger = logger
	}
	return &Session{
		id:         uuid.NewString(),
		conn:       conn,
		registry:   registry,
		bus:        bus,
		cfg:        cfg,
		logger:     logger,
		procLogger: procLogger,
		state:      StateSpawning,
		lastSeen:   time.Now(),
		input:      make(chan []byte, cfg.InputQueueSize),
		outbound:   make(chan outFrame, cfg.OutboundQueueSize),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

// ID returns the session's opaque unique id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel closed when teardown has run.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Finished returns a channel closed when teardown has run and the
// session's transcoder, if any, has exited. Server shutdown waits on
// this so no subprocess is orphaned.
func (s *Session) Finished() <-chan struct{} {
	return s.finished
}

// Run registers the session, announces the assigned id to the client,
// eagerly starts the transcoder, and pumps frames until the connection
// ends. It blocks for the session's lifetime.
func (s *Session) Run() {
	s.conn.SetPongHandler(func(string) error {
		s.refreshLiveness()
		return nil
	})

	s.registry.Register(s.id, s)
	sessionsActive.Inc()
	sessionsTotal.Inc()
	s.logger.Info("Session opened", "session_id", s.id, "remote_addr", s.remoteAddr())
	if s.bus != nil {
		s.bus.Publish(events.SessionOpenedEvent{
			SessionID:  s.id,
			RemoteAddr: s.remoteAddr(),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
	}

	go s.writePump()

	// The connection announcement must be the first frame the client sees.
	s.enqueueOut(outFrame{kind: websocket.TextMessage, data: encodeConnectionAck(s.id)})

	s.spawn()

	go s.inputPump()
	s.readPump()
}

// spawn starts a transcoder for this session. On failure the session
// enters degraded mode: one error frame to the client, connection kept
// open, data frames dropped.
//
// The process is published to s.proc before Start so that a racing
// Teardown can always reach it; Terminate before Start makes Start
// refuse, which keeps a mid-spawn teardown from leaking a process.
func (s *Session) spawn() {
	var proc *transcoder.Subprocess
	proc = transcoder.New(s.id, transcoder.Options{
		Binary:           s.cfg.TranscoderBinary,
		Args:             s.cfg.TranscoderArgs,
		GraceTimeout:     s.cfg.GraceTimeout,
		KillTimeout:      s.cfg.KillTimeout,
		Logger:           s.logger,
		DiagnosticLogger: s.procLogger,
		OnChunk:          s.forwardChunk,
		OnExit:           func(exitCode int) { s.handleTranscoderExit(proc, exitCode) },
	})

	s.mu.Lock()
	if s.state == StateTerminating || s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.proc = proc
	s.mu.Unlock()

	if err := proc.Start(); err != nil {
		s.mu.Lock()
		if s.proc == proc {
			s.proc = nil
		}
		terminating := s.state == StateTerminating || s.state == StateTerminated
		if !terminating {
			s.state = StateDegraded
		}
		s.mu.Unlock()
		if terminating {
			return
		}

		s.logger.Warn("Transcoder spawn failed, session degraded", "session_id", s.id, "error", err)
		spawnFailures.Inc()
		if s.bus != nil {
			s.bus.Publish(events.TranscoderSpawnFailedEvent{
				SessionID: s.id,
				Error:     err.Error(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}
		s.enqueueOut(outFrame{kind: websocket.TextMessage, data: encodeErrorNotice("transcoder unavailable")})
		return
	}

	transcodersActive.Inc()
	s.mu.Lock()
	// The process may already have exited, or teardown may have begun;
	// mark active only while this process is still the session's own.
	if s.proc == proc && s.state != StateTerminating && s.state != StateTerminated {
		s.state = StateActive
		s.writeErrLogged = false
	}
	s.mu.Unlock()
}

// handleTranscoderExit observes the subprocess exit, independent of
// client activity. It fires exactly once per process instance.
func (s *Session) handleTranscoderExit(proc *transcoder.Subprocess, exitCode int) {
	transcodersActive.Dec()

	s.mu.Lock()
	if s.state == StateTerminating || s.state == StateTerminated || s.proc != proc {
		s.mu.Unlock()
		return
	}
	s.proc = nil
	respawn := s.cfg.RespawnPolicy == RespawnOnce && !s.respawned
	if respawn {
		s.respawned = true
	} else {
		s.state = StateDegraded
	}
	s.mu.Unlock()

	s.logger.Info("Transcoder exited mid-session", "session_id", s.id, "exit_code", exitCode, "respawn", respawn)
	if s.bus != nil {
		s.bus.Publish(events.TranscoderExitedEvent{
			SessionID: s.id,
			ExitCode:  exitCode,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	if respawn {
		s.spawn()
	}
}

// readPump consumes the connection until it closes or errors.
// Binary frames are media; text frames are control messages.
func (s *Session) readPump() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			reason := "client disconnect"
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "transport error"
			}
			s.Teardown(reason)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			bytesIn.Add(float64(len(data)))
			s.enqueueInput(data)
		case websocket.TextMessage:
			s.handleControl(data)
		}
	}
}

// handleControl processes a decoded control message. Heartbeats
// refresh liveness and are not forwarded; everything else is ignored.
func (s *Session) handleControl(data []byte) {
	msg := ParseControl(data)
	switch msg.Kind {
	case KindHeartbeat:
		s.refreshLiveness()
	default:
		s.logger.Debug("Ignoring control message", "session_id", s.id, "kind", int(msg.Kind))
	}
}

// enqueueInput queues an inbound media frame toward the transcoder.
// In degraded mode frames are dropped silently.
func (s *Session) enqueueInput(frame []byte) {
	s.mu.Lock()
	degraded := s.proc == nil
	s.mu.Unlock()
	if degraded {
		framesDropped.WithLabelValues(dropReasonDegraded).Inc()
		return
	}
	s.queueInput(frame)
}

// queueInput appends a frame to the bounded input queue. On overflow
// the oldest queued frame is dropped, so a stalled transcoder costs
// memory proportional to the queue size, never the session lifetime.
func (s *Session) queueInput(frame []byte) {
	select {
	case s.input <- frame:
		return
	default:
	}

	// Queue full: evict the oldest frame, then retry once.
	select {
	case <-s.input:
		framesDropped.WithLabelValues(dropReasonOverflow).Inc()
	default:
	}
	select {
	case s.input <- frame:
	default:
		framesDropped.WithLabelValues(dropReasonOverflow).Inc()
	}
}

// inputPump drains the input queue into the transcoder stdin,
// preserving receive order. A write to a closed input channel drops
// the frame and is logged once per occurrence, not per frame.
func (s *Session) inputPump() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.input:
			s.mu.Lock()
			proc := s.proc
			s.mu.Unlock()
			if proc == nil {
				framesDropped.WithLabelValues(dropReasonDegraded).Inc()
				continue
			}
			if err := proc.Write(frame); err != nil {
				framesDropped.WithLabelValues(dropReasonInputClosed).Inc()
				s.mu.Lock()
				logged := s.writeErrLogged
				s.writeErrLogged = true
				s.mu.Unlock()
				if !logged {
					s.logger.Warn("Transcoder input closed, dropping frames", "session_id", s.id, "error", err)
				}
				continue
			}
			framesForwarded.Inc()
		}
	}
}

// forwardChunk relays one transcoder output chunk to the client.
// Called from the subprocess reader goroutine in emit order.
func (s *Session) forwardChunk(chunk []byte) {
	bytesOut.Add(float64(len(chunk)))
	s.enqueueOut(outFrame{kind: websocket.BinaryMessage, data: chunk})
}

// enqueueOut queues an outbound frame, blocking until there is space
// or the session ends. Blocking here backpressures the transcoder's
// stdout reader when the client is slow.
func (s *Session) enqueueOut(f outFrame) {
	select {
	case s.outbound <- f:
	case <-s.done:
	}
}

// writePump is the single connection writer. gorilla/websocket allows
// at most one concurrent writer, so pings, control frames, and media
// all funnel through here.
func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.outbound:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			var err error
			if f.kind == websocket.PingMessage {
				err = s.conn.WriteControl(websocket.PingMessage, nil, deadline)
			} else {
				_ = s.conn.SetWriteDeadline(deadline)
				err = s.conn.WriteMessage(f.kind, f.data)
			}
			if err != nil {
				s.logger.Debug("Connection write failed", "session_id", s.id, "error", err)
				s.Teardown("transport error")
				return
			}
		}
	}
}

// refreshLiveness records a liveness response (transport pong or
// application heartbeat).
func (s *Session) refreshLiveness() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.awaitingPong = false
	s.mu.Unlock()
}

// SendProbe marks the session as awaiting a liveness response and
// queues a transport ping. While a probe is already outstanding the
// original send time is kept, so the timeout window is measured from
// the first unanswered probe.
func (s *Session) SendProbe() {
	s.mu.Lock()
	if !s.awaitingPong {
		s.awaitingPong = true
		s.probeSent = time.Now()
	}
	s.mu.Unlock()

	// Never block the monitor tick on a stuck session.
	select {
	case s.outbound <- outFrame{kind: websocket.PingMessage}:
	default:
	}
}

// LivenessExpired reports whether the last probe has gone unanswered
// beyond the timeout window.
func (s *Session) LivenessExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingPong && time.Since(s.probeSent) > timeout
}

// LastSeen returns the time of the most recent liveness response.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Teardown destroys the session exactly once, regardless of which
// trigger fires first: graceful close, transport error, liveness
// timeout, or server shutdown. Every step runs even when a racing
// trigger already started; all collaborators are idempotent.
func (s *Session) Teardown(reason string) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.state = StateTerminating
		proc := s.proc
		s.mu.Unlock()

		s.logger.Info("Session closing", "session_id", s.id, "reason", reason)

		if proc != nil {
			proc.Terminate()
		}
		close(s.done)
		_ = s.conn.Close()
		s.registry.Unregister(s.id)
		sessionsActive.Dec()

		s.mu.Lock()
		s.state = StateTerminated
		s.mu.Unlock()

		if s.bus != nil {
			s.bus.Publish(events.SessionClosedEvent{
				SessionID: s.id,
				Reason:    reason,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}

		if proc != nil {
			go func() {
				<-proc.Done()
				close(s.finished)
			}()
		} else {
			close(s.finished)
		}
	})
}

func (s *Session) remoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
