package events

// Event type constants for kelindar/event.
const (
	TypeSessionOpened uint32 = iota + 1
	TypeSessionClosed
	TypeTranscoderSpawnFailed
	TypeTranscoderExited
	TypeUploadStored
	TypeUploadDeleted
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionOpenedEvent is published when a client connection is accepted
// and its session is registered.
type SessionOpenedEvent struct {
	SessionID  string `json:"session_id" doc:"Session identifier"`
	RemoteAddr string `json:"remote_addr" doc:"Client remote address"`
	Timestamp  string `json:"timestamp" example:"2026-08-24T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionOpenedEvent.
func (e SessionOpenedEvent) Type() uint32 { return TypeSessionOpened }

// SessionClosedEvent is published exactly once when a session is torn down.
type SessionClosedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Reason    string `json:"reason" example:"liveness timeout" doc:"Teardown trigger"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionClosedEvent.
func (e SessionClosedEvent) Type() uint32 { return TypeSessionClosed }

// TranscoderSpawnFailedEvent is published when the transcoder binary
// could not be launched and the session entered degraded mode.
type TranscoderSpawnFailedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Error     string `json:"error" doc:"Spawn error description"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for TranscoderSpawnFailedEvent.
func (e TranscoderSpawnFailedEvent) Type() uint32 { return TypeTranscoderSpawnFailed }

// TranscoderExitedEvent is published when a session's transcoder exits
// on its own, before the session ends.
type TranscoderExitedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	ExitCode  int    `json:"exit_code" doc:"Process exit code"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for TranscoderExitedEvent.
func (e TranscoderExitedEvent) Type() uint32 { return TypeTranscoderExited }

// UploadStoredEvent is published when an image upload is stored.
type UploadStoredEvent struct {
	Name      string `json:"name" doc:"Stored file name"`
	Size      int64  `json:"size" doc:"File size in bytes"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for UploadStoredEvent.
func (e UploadStoredEvent) Type() uint32 { return TypeUploadStored }

// UploadDeletedEvent is published when an upload is removed.
type UploadDeletedEvent struct {
	Name      string `json:"name" doc:"Deleted file name"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for UploadDeletedEvent.
func (e UploadDeletedEvent) Type() uint32 { return TypeUploadDeleted }
