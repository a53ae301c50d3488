package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalize_ValidEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	raw, _ := json.Marshal(map[string]any{
		"session_id":        "sess-123",
		"tool":              "claude-code",
		"started_at":        ts.Format(time.RFC3339),
		"working_directory": "/home/dev/project",
		"repo_path":         "/home/dev/project",
		"transcript":        "hello\nworld\n",
	})

	e, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.SessionID != "sess-123" {
		t.Errorf("expected session_id sess-123, got %s", e.SessionID)
	}
	if e.Tool != "claude-code" {
		t.Errorf("expected tool claude-code, got %s", e.Tool)
	}
	if !e.StartedAt.Equal(ts) {
		t.Errorf("expected started_at %v, got %v", ts, e.StartedAt)
	}
	if e.Transcript != "hello\nworld\n" {
		t.Errorf("transcript mangled: %q", e.Transcript)
	}
}

func TestNormalize_MissingSessionID(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"tool":       "cursor",
		"started_at": time.Now().UTC().Format(time.RFC3339),
	})

	e, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.SessionID == "" {
		t.Error("expected generated session_id, got empty string")
	}
	// Should be a valid UUID (36 chars with dashes).
	if len(e.SessionID) != 36 {
		t.Errorf("expected UUID-shaped session_id, got %q", e.SessionID)
	}
}

func TestNormalize_MissingToolAndStartedAt(t *testing.T) {
	before := time.Now().UTC()
	raw, _ := json.Marshal(map[string]any{"session_id": "sess-1"})

	e, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.Tool != "unknown" {
		t.Errorf("expected tool unknown, got %s", e.Tool)
	}
	if e.StartedAt.Before(before) {
		t.Errorf("expected started_at defaulted to ingestion time, got %v", e.StartedAt)
	}
}

func TestNormalize_MalformedJSON(t *testing.T) {
	if _, err := Normalize([]byte("{not json")); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestNormalize_NilEndedAt(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"session_id": "sess-1",
		"started_at": time.Now().UTC().Format(time.RFC3339),
	})

	e, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.EndedAt != nil {
		t.Errorf("expected nil ended_at for open session, got %v", e.EndedAt)
	}
}
