package store

import (
	"context"
	"time"
)

// DataStore is the interface consumed by the summary orchestrator, the
// commit correlator, the ingester, and the API. The concrete implementation
// is *Store (pgx-backed).
type DataStore interface {
	UpsertSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
	SetSessionSummary(ctx context.Context, sessionID, summary string) error
	SetSessionCommit(ctx context.Context, sessionID, commitID string) error

	InsertChunk(ctx context.Context, c ChunkRow) error
	GetChunks(ctx context.Context, sessionID string) ([]ChunkRow, error)
	GetLastChunk(ctx context.Context, sessionID string) (*ChunkRow, error)
	ResetSummary(ctx context.Context, sessionID string) error

	InsertCommits(ctx context.Context, commits []Commit) error
	ListCommits(ctx context.Context, repoPath string, from, to time.Time) ([]Commit, error)

	Close()
}

// Session is one recorded development session.
type Session struct {
	ID                string     `json:"session_id"`
	Tool              string     `json:"tool"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at"`
	WorkingDirectory  string     `json:"working_directory"`
	RepoPath          string     `json:"repo_path"`
	Transcript        string     `json:"transcript"`
	CumulativeSummary string     `json:"cumulative_summary"`
	SummaryGenerated  bool       `json:"summary_generated"`
	LinkedCommitID    *string    `json:"linked_commit_id"`
}

// ChunkRow is one durably persisted summarization checkpoint. Rows are
// immutable once written; a retry overwrites the in-flight attempt, never a
// persisted row.
type ChunkRow struct {
	SessionID             string    `json:"session_id"`
	ChunkIndex            int       `json:"chunk_index"`
	StartLine             int       `json:"start_line"`
	EndLine               int       `json:"end_line"`
	SummaryText           string    `json:"summary_text"`
	CumulativeSummaryText string    `json:"cumulative_summary_text"`
	CreatedAt             time.Time `json:"created_at"`
}

// Commit is a version-control commit recorded by the external importer.
// Read-only to the summarization pipeline.
type Commit struct {
	ID           string    `json:"commit_id"`
	SHA          string    `json:"sha"`
	Timestamp    time.Time `json:"timestamp"`
	RepoPath     string    `json:"repo_path"`
	Author       string    `json:"author"`
	Message      string    `json:"message"`
	FilesChanged []string  `json:"files_changed"`
}
