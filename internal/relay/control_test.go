package relay

import (
	"encoding/json"
	"testing"
)

func TestParseControlHeartbeat(t *testing.T) {
	msg := ParseControl([]byte(`{"type":"heartbeat"}`))
	if msg.Kind != KindHeartbeat {
		t.Errorf("Expected KindHeartbeat, got %v", msg.Kind)
	}
}

func TestParseControlConnection(t *testing.T) {
	msg := ParseControl([]byte(`{"type":"connection","clientId":"abc-123"}`))
	if msg.Kind != KindConnectionAck {
		t.Errorf("Expected KindConnectionAck, got %v", msg.Kind)
	}
	if msg.ClientID != "abc-123" {
		t.Errorf("Expected clientId abc-123, got %q", msg.ClientID)
	}
}

func TestParseControlError(t *testing.T) {
	msg := ParseControl([]byte(`{"type":"error","message":"transcoder unavailable"}`))
	if msg.Kind != KindErrorNotice {
		t.Errorf("Expected KindErrorNotice, got %v", msg.Kind)
	}
	if msg.Message != "transcoder unavailable" {
		t.Errorf("Unexpected message %q", msg.Message)
	}
}

func TestParseControlUnknownAndMalformed(t *testing.T) {
	for _, payload := range []string{
		`{"type":"bogus"}`,
		`{}`,
		`not json`,
		``,
	} {
		if msg := ParseControl([]byte(payload)); msg.Kind != KindUnknown {
			t.Errorf("Payload %q: expected KindUnknown, got %v", payload, msg.Kind)
		}
	}
}

func TestEncodeConnectionAckRoundTrip(t *testing.T) {
	data := encodeConnectionAck("session-1")

	var w map[string]string
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("Failed to decode ack frame: %v", err)
	}
	if w["type"] != "connection" || w["clientId"] != "session-1" {
		t.Errorf("Unexpected ack frame: %s", data)
	}
	if _, present := w["message"]; present {
		t.Error("Ack frame should omit empty message field")
	}
}

func TestEncodeErrorNotice(t *testing.T) {
	data := encodeErrorNotice("spawn failed")

	msg := ParseControl(data)
	if msg.Kind != KindErrorNotice || msg.Message != "spawn failed" {
		t.Errorf("Unexpected error frame: %s", data)
	}
}
