package relay

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(ServerConfig{
		Session: SessionConfig{
			TranscoderBinary: "cat",
			GraceTimeout:     200 * time.Millisecond,
			KillTimeout:      time.Second,
		},
		PingPeriod:  50 * time.Millisecond,
		PongTimeout: time.Second,
	}, nil)
	srv.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", srv.HandleWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	return conn
}

func TestServerEndToEndRelay(t *testing.T) {
	srv, ts := newTestServer(t)

	conn := dial(t, ts)
	defer conn.Close()

	// First frame is the session announcement.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read announcement: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("Expected text announcement, got type %d", msgType)
	}
	ack := ParseControl(data)
	if ack.Kind != KindConnectionAck || ack.ClientID == "" {
		t.Fatalf("Expected connection announcement, got %s", data)
	}

	waitUntil(t, func() bool { return srv.Count() == 1 }, "Session never registered")

	// Binary payload round-trips through the cat subprocess.
	payload := []byte("stream-chunk-0001")
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("Failed to send payload: %v", err)
	}

	var echoed bytes.Buffer
	for echoed.Len() < len(payload) {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read relayed data: %v", err)
		}
		if msgType == websocket.BinaryMessage {
			echoed.Write(data)
		}
	}
	if !bytes.Equal(echoed.Bytes(), payload) {
		t.Errorf("Relayed %q, want %q", echoed.Bytes(), payload)
	}

	conn.Close()
	waitUntil(t, func() bool { return srv.Count() == 0 }, "Session never unregistered after disconnect")
}

func TestServerHeartbeatKeepsSessionAlive(t *testing.T) {
	srv, ts := newTestServer(t)

	conn := dial(t, ts)
	defer conn.Close()

	go func() {
		// Default pong handling needs an active reader.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`)); err != nil {
		t.Fatalf("Failed to send heartbeat: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if srv.Count() != 1 {
		t.Error("Responsive client should stay connected")
	}
}

func TestServerShutdownDrainsSessions(t *testing.T) {
	srv, ts := newTestServer(t)

	conn := dial(t, ts)
	defer conn.Close()
	waitUntil(t, func() bool { return srv.Count() == 1 }, "Session never registered")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if srv.Count() != 0 {
		t.Errorf("Expected no sessions after shutdown, got %d", srv.Count())
	}
}

func TestServerRefusesDuringShutdown(t *testing.T) {
	srv, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial should fail during shutdown")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 refusal, got %+v", resp)
	}
}
