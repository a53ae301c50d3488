package store

import (
	"context"
	"fmt"
)

// schema is applied at startup. Idempotent, like the ingester's
// create-if-missing stream setup.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id        TEXT PRIMARY KEY,
	tool              TEXT NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	ended_at          TIMESTAMPTZ,
	working_directory TEXT NOT NULL DEFAULT '',
	repo_path         TEXT NOT NULL DEFAULT '',
	transcript        TEXT NOT NULL DEFAULT '',
	cumulative_summary TEXT NOT NULL DEFAULT '',
	summary_generated BOOLEAN NOT NULL DEFAULT FALSE,
	linked_commit_id  TEXT
);

CREATE TABLE IF NOT EXISTS session_chunks (
	session_id              TEXT NOT NULL REFERENCES sessions(session_id),
	chunk_index             INTEGER NOT NULL,
	start_line              INTEGER NOT NULL,
	end_line                INTEGER NOT NULL,
	summary_text            TEXT NOT NULL,
	cumulative_summary_text TEXT NOT NULL,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS commits (
	commit_id     TEXT PRIMARY KEY,
	sha           TEXT NOT NULL,
	timestamp     TIMESTAMPTZ NOT NULL,
	repo_path     TEXT NOT NULL,
	author        TEXT NOT NULL DEFAULT '',
	message       TEXT NOT NULL DEFAULT '',
	files_changed JSONB
);

CREATE INDEX IF NOT EXISTS idx_commits_repo_ts ON commits (repo_path, timestamp);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions (started_at);
`

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
