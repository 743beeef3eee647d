package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/avolkhov/relaynode/internal/logging"
)

// registerLogRoutes registers the recent-logs endpoint backed by the
// logging ring buffer.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Logs",
		Description: "Get recent log entries from the in-memory ring buffer",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum entries to return"`
	}) (*LogsResponse, error) {
		buffer := logging.GetBuffer()
		if buffer == nil {
			return &LogsResponse{Body: LogsData{Entries: []LogEntryData{}}}, nil
		}

		raw := buffer.ReadLast(input.Limit)
		entries := make([]LogEntryData, 0, len(raw))
		for _, entry := range raw {
			entries = append(entries, LogEntryData{
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		}
		return &LogsResponse{Body: LogsData{Entries: entries, Count: len(entries)}}, nil
	})
}
