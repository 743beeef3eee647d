package relay

import "encoding/json"

// ControlKind identifies a control message decoded at the connection
// boundary. Anything the decoder does not recognize is KindUnknown and
// gets ignored by the session.
type ControlKind int

const (
	// KindUnknown is an unrecognized or malformed control message.
	KindUnknown ControlKind = iota
	// KindHeartbeat refreshes session liveness.
	KindHeartbeat
	// KindConnectionAck announces the assigned session id to the client.
	KindConnectionAck
	// KindErrorNotice reports a transcoder spawn or processing failure.
	KindErrorNotice
)

// Control is a decoded control message.
type Control struct {
	Kind     ControlKind
	ClientID string
	Message  string
}

// wireControl is the JSON shape shared by all control messages.
type wireControl struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ParseControl decodes a text frame into a tagged control message.
// Malformed JSON and unknown types map to KindUnknown; the caller
// ignores those rather than failing the session.
func ParseControl(data []byte) Control {
	var w wireControl
	if err := json.Unmarshal(data, &w); err != nil {
		return Control{Kind: KindUnknown}
	}
	switch w.Type {
	case "heartbeat":
		return Control{Kind: KindHeartbeat}
	case "connection":
		return Control{Kind: KindConnectionAck, ClientID: w.ClientID}
	case "error":
		return Control{Kind: KindErrorNotice, Message: w.Message}
	default:
		return Control{Kind: KindUnknown}
	}
}

// encodeConnectionAck builds the one-time session announcement frame.
func encodeConnectionAck(id string) []byte {
	b, _ := json.Marshal(wireControl{Type: "connection", ClientID: id})
	return b
}

// encodeErrorNotice builds an error control frame.
func encodeErrorNotice(msg string) []byte {
	b, _ := json.Marshal(wireControl{Type: "error", Message: msg})
	return b
}
