// Package events defines the wire schema for session messages arriving over
// NATS from the capture mechanism.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Subjects published by the capture side and consumed here.
const (
	SubjectSessionFinalized = "scribe.session.finalized"
	SubjectResummarize      = "scribe.session.resummarize"
)

// SessionFinalized announces a completed capture: the raw transcript blob
// plus the session metadata the pipeline needs.
type SessionFinalized struct {
	SessionID        string     `json:"session_id"`
	Tool             string     `json:"tool"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	WorkingDirectory string     `json:"working_directory"`
	RepoPath         string     `json:"repo_path"`
	Transcript       string     `json:"transcript"`
}

// ResummarizeRequest asks for an explicit re-run of a session's pipeline.
type ResummarizeRequest struct {
	SessionID string `json:"session_id"`
	Reset     bool   `json:"reset"`
	ChunkSize int    `json:"chunk_size"`
}

// Normalize parses a session-finalized payload and fills missing fields with
// sensible defaults. It never drops a parseable event.
func Normalize(raw []byte) (SessionFinalized, error) {
	var e SessionFinalized
	if err := json.Unmarshal(raw, &e); err != nil {
		return SessionFinalized{}, fmt.Errorf("unmarshal session event: %w", err)
	}

	if e.SessionID == "" {
		e.SessionID = uuid.New().String()
		slog.Warn("session event missing session_id, generated one", "session_id", e.SessionID)
	}

	if e.Tool == "" {
		e.Tool = "unknown"
	}

	if e.StartedAt.IsZero() {
		slog.Warn("session event missing started_at, using ingestion time", "session_id", e.SessionID)
		e.StartedAt = time.Now().UTC()
	}

	return e, nil
}
