package api

import "github.com/avolkhov/relaynode/internal/uploads"

// HealthData is the health check payload.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message" example:"API is healthy" doc:"Health detail"`
}

// HealthResponse is the HTTP response for the health check.
type HealthResponse struct {
	Body HealthData
}

// VersionData is the build information payload.
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"3f9c2ab" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-08-24T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

// VersionResponse is the HTTP response for the version endpoint.
type VersionResponse struct {
	Body VersionData
}

// StatusData is the runtime status payload.
type StatusData struct {
	Sessions      int    `json:"sessions" example:"3" doc:"Currently connected relay sessions"`
	UptimeSeconds int64  `json:"uptime_seconds" example:"86400" doc:"Seconds since process start"`
	StartedAt     string `json:"started_at" example:"2026-08-23T10:30:00Z" doc:"Process start time"`
}

// StatusResponse is the HTTP response for the status endpoint.
type StatusResponse struct {
	Body StatusData
}

// LogsData is the recent-log-entries payload.
type LogsData struct {
	Entries []LogEntryData `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int            `json:"count" example:"50" doc:"Number of entries returned"`
}

// LogEntryData is one log entry from the ring buffer.
type LogEntryData struct {
	Timestamp  string         `json:"timestamp" example:"2026-08-24T10:30:00.123Z" doc:"Entry timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"relay" doc:"Originating module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// LogsResponse is the HTTP response for the logs endpoint.
type LogsResponse struct {
	Body LogsData
}

// UploadData is the payload for a single stored upload.
type UploadData struct {
	File uploads.FileInfo `json:"file" doc:"Stored file"`
	URL  string           `json:"url" example:"/uploads/b5c7f1ce.png" doc:"Static serving path"`
}

// UploadResponse is the HTTP response for a completed upload.
type UploadResponse struct {
	Body UploadData
}

// UploadListData is the payload for the upload listing.
type UploadListData struct {
	Files []uploads.FileInfo `json:"files" doc:"Stored uploads, newest first"`
	Count int                `json:"count" example:"2" doc:"Number of stored uploads"`
}

// UploadListResponse is the HTTP response for the upload listing.
type UploadListResponse struct {
	Body UploadListData
}
