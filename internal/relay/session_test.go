package relay

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeMsg struct {
	kind int
	data []byte
}

// fakeConn is an in-memory Conn for session tests. ReadMessage blocks
// until a message is injected or the connection is closed.
type fakeConn struct {
	inbound chan fakeMsg

	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	written []fakeMsg
	pings   int
	pongH   func(string) error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan fakeMsg, 32),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-c.inbound:
		return m.kind, m.data, nil
	case <-c.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, fakeMsg{kind: kind, data: cp})
	return nil
}

func (c *fakeConn) WriteControl(kind int, _ []byte, _ time.Time) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == websocket.PingMessage {
		c.pings++
	}
	return nil
}

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongH = h
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345}
}

func (c *fakeConn) inject(kind int, data []byte) {
	c.inbound <- fakeMsg{kind: kind, data: data}
}

func (c *fakeConn) frames() []fakeMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fakeMsg, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *fakeConn) pong() {
	c.mu.Lock()
	h := c.pongH
	c.mu.Unlock()
	if h != nil {
		_ = h("")
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// catSessionConfig relays through cat, a transparent stand-in for the
// real transcoder.
func catSessionConfig() SessionConfig {
	return SessionConfig{
		TranscoderBinary: "cat",
		GraceTimeout:     200 * time.Millisecond,
		KillTimeout:      time.Second,
	}
}

func startSession(t *testing.T, conn Conn, cfg SessionConfig) (*Session, *Registry, chan struct{}) {
	t.Helper()
	registry := NewRegistry()
	s := NewSession(conn, registry, nil, cfg, quietLogger(), quietLogger())
	ran := make(chan struct{})
	go func() {
		s.Run()
		close(ran)
	}()
	return s, registry, ran
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func waitFinished(t *testing.T, s *Session, ran chan struct{}) {
	t.Helper()
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("Session did not stop")
	}
	select {
	case <-s.Finished():
	case <-time.After(5 * time.Second):
		t.Fatal("Session did not finish")
	}
}

func TestSessionAnnouncesIDFirst(t *testing.T) {
	conn := newFakeConn()
	s, _, ran := startSession(t, conn, catSessionConfig())

	waitUntil(t, func() bool { return len(conn.frames()) >= 1 }, "No frame written")

	first := conn.frames()[0]
	if first.kind != websocket.TextMessage {
		t.Fatalf("First frame should be text, got type %d", first.kind)
	}
	msg := ParseControl(first.data)
	if msg.Kind != KindConnectionAck {
		t.Errorf("First frame should be the connection announcement, got %s", first.data)
	}
	if msg.ClientID != s.ID() {
		t.Errorf("Announced id %q does not match session id %q", msg.ClientID, s.ID())
	}

	conn.Close()
	waitFinished(t, s, ran)
}

func TestSessionRelaysThroughSubprocess(t *testing.T) {
	conn := newFakeConn()
	s, _, ran := startSession(t, conn, catSessionConfig())

	waitUntil(t, func() bool { return s.State() == StateActive }, "Session never became active")

	want := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	var total int
	for _, f := range want {
		conn.inject(websocket.BinaryMessage, f)
		total += len(f)
	}

	relayed := func() []byte {
		var buf bytes.Buffer
		for _, f := range conn.frames() {
			if f.kind == websocket.BinaryMessage {
				buf.Write(f.data)
			}
		}
		return buf.Bytes()
	}
	waitUntil(t, func() bool { return len(relayed()) >= total }, "Subprocess output never relayed back")

	if got := relayed(); !bytes.Equal(got, bytes.Join(want, nil)) {
		t.Errorf("Relayed bytes out of order or corrupted: %q", got)
	}

	conn.Close()
	waitFinished(t, s, ran)
	if s.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %v", s.State())
	}
}

func TestSessionDegradedOnSpawnFailure(t *testing.T) {
	cfg := catSessionConfig()
	cfg.TranscoderBinary = "/nonexistent/transcoder-binary"

	conn := newFakeConn()
	s, registry, ran := startSession(t, conn, cfg)

	waitUntil(t, func() bool { return s.State() == StateDegraded }, "Session never degraded")
	if registry.Count() != 1 {
		t.Error("Degraded session should stay registered")
	}

	waitUntil(t, func() bool { return len(conn.frames()) >= 2 }, "Error frame never sent")
	errFrame := ParseControl(conn.frames()[1].data)
	if errFrame.Kind != KindErrorNotice || errFrame.Message == "" {
		t.Errorf("Second frame should be an error notice, got %s", conn.frames()[1].data)
	}

	// Data frames are accepted and dropped without disturbing the session.
	conn.inject(websocket.BinaryMessage, []byte("dropped"))
	conn.inject(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
	time.Sleep(50 * time.Millisecond)
	if s.State() != StateDegraded {
		t.Errorf("Degraded session should survive data frames, state %v", s.State())
	}

	conn.Close()
	waitFinished(t, s, ran)
	if registry.Count() != 0 {
		t.Error("Session should unregister on teardown")
	}
}

func TestHeartbeatRefreshesLiveness(t *testing.T) {
	conn := newFakeConn()
	s, _, ran := startSession(t, conn, catSessionConfig())

	s.SendProbe()
	time.Sleep(10 * time.Millisecond)
	if !s.LivenessExpired(time.Millisecond) {
		t.Fatal("Unanswered probe should expire")
	}

	conn.inject(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
	waitUntil(t, func() bool { return !s.LivenessExpired(time.Millisecond) },
		"Heartbeat did not refresh liveness")

	conn.Close()
	waitFinished(t, s, ran)
}

func TestPongRefreshesLiveness(t *testing.T) {
	conn := newFakeConn()
	s, _, ran := startSession(t, conn, catSessionConfig())

	waitUntil(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.pongH != nil
	}, "Pong handler never installed")

	s.SendProbe()
	time.Sleep(10 * time.Millisecond)
	if !s.LivenessExpired(time.Millisecond) {
		t.Fatal("Unanswered probe should expire")
	}

	conn.pong()
	if s.LivenessExpired(time.Millisecond) {
		t.Error("Pong did not refresh liveness")
	}

	conn.Close()
	waitFinished(t, s, ran)
}

func TestTeardownIdempotent(t *testing.T) {
	conn := newFakeConn()
	s, registry, ran := startSession(t, conn, catSessionConfig())

	waitUntil(t, func() bool { return s.State() == StateActive }, "Session never became active")

	// All teardown triggers may fire concurrently.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Teardown("test")
		}()
	}
	conn.Close()
	wg.Wait()

	waitFinished(t, s, ran)
	if s.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %v", s.State())
	}
	if registry.Count() != 0 {
		t.Error("Session should be unregistered exactly once")
	}
}

func TestRespawnPolicyNever(t *testing.T) {
	cfg := SessionConfig{
		TranscoderBinary: "sh",
		TranscoderArgs:   []string{"-c", "exit 0"},
		GraceTimeout:     200 * time.Millisecond,
		KillTimeout:      time.Second,
		RespawnPolicy:    RespawnNever,
	}

	conn := newFakeConn()
	s, registry, ran := startSession(t, conn, cfg)

	// Process exits immediately; with no respawn the session degrades
	// but the connection stays up.
	waitUntil(t, func() bool { return s.State() == StateDegraded }, "Session never degraded after exit")
	if registry.Count() != 1 {
		t.Error("Session should stay registered after transcoder exit")
	}

	conn.Close()
	waitFinished(t, s, ran)
}

func TestRespawnPolicyOnce(t *testing.T) {
	cfg := SessionConfig{
		TranscoderBinary: "sh",
		TranscoderArgs:   []string{"-c", "exit 1"},
		GraceTimeout:     200 * time.Millisecond,
		KillTimeout:      time.Second,
		RespawnPolicy:    RespawnOnce,
	}

	conn := newFakeConn()
	s, _, ran := startSession(t, conn, cfg)

	// First exit triggers one respawn; the respawn exits too and the
	// session settles degraded.
	waitUntil(t, func() bool { return s.State() == StateDegraded }, "Session never settled degraded")

	s.mu.Lock()
	respawned := s.respawned
	s.mu.Unlock()
	if !respawned {
		t.Error("Respawn attempt should have been recorded")
	}

	conn.Close()
	waitFinished(t, s, ran)
}

func TestInputOverflowDropsOldest(t *testing.T) {
	cfg := catSessionConfig()
	cfg.InputQueueSize = 2

	// Not running the session keeps the queue undrained.
	s := NewSession(newFakeConn(), NewRegistry(), nil, cfg, quietLogger(), quietLogger())

	s.queueInput([]byte("one"))
	s.queueInput([]byte("two"))
	s.queueInput([]byte("three"))

	if len(s.input) != 2 {
		t.Fatalf("Queue should stay bounded at 2, got %d", len(s.input))
	}
	first := <-s.input
	second := <-s.input
	if string(first) != "two" || string(second) != "three" {
		t.Errorf("Oldest frame should be dropped, kept %q,%q", first, second)
	}
}

func TestTeardownRacingSpawn(t *testing.T) {
	for i := 0; i < 20; i++ {
		conn := newFakeConn()
		s, registry, ran := startSession(t, conn, catSessionConfig())

		// Teardown may land while Run is still spawning the transcoder;
		// either the spawn is prevented or the process is reaped.
		s.Teardown("client disconnect")
		conn.Close()

		waitFinished(t, s, ran)
		if s.State() != StateTerminated {
			t.Fatalf("iteration %d: state = %v, want %v", i, s.State(), StateTerminated)
		}
		if registry.Count() != 0 {
			t.Fatalf("iteration %d: session still registered after teardown", i)
		}
	}
}

func TestTeardownUnblocksStalledTranscoder(t *testing.T) {
	cfg := SessionConfig{
		TranscoderBinary: "sleep",
		TranscoderArgs:   []string{"30"},
		GraceTimeout:     200 * time.Millisecond,
		KillTimeout:      time.Second,
	}
	conn := newFakeConn()
	s, registry, ran := startSession(t, conn, cfg)
	waitUntil(t, func() bool { return s.State() == StateActive }, "Session never became active")

	// sleep never drains stdin, so the input pump wedges in a pipe write.
	chunk := make([]byte, 64*1024)
	for i := 0; i < 8; i++ {
		conn.inject(websocket.BinaryMessage, chunk)
	}
	time.Sleep(100 * time.Millisecond)

	torn := make(chan struct{})
	go func() {
		s.Teardown("liveness timeout")
		close(torn)
	}()
	select {
	case <-torn:
	case <-time.After(2 * time.Second):
		t.Fatal("Teardown blocked behind a stalled transcoder")
	}

	waitFinished(t, s, ran)
	if registry.Count() != 0 {
		t.Error("Session still registered after teardown")
	}
}
