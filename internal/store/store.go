package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a session or chunk does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// UpsertSession creates or refreshes a session row. Summary fields are never
// touched here — they belong to the orchestrator and the correlator.
func (s *Store) UpsertSession(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, tool, started_at, ended_at, working_directory, repo_path, transcript)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			tool = EXCLUDED.tool,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			working_directory = EXCLUDED.working_directory,
			repo_path = EXCLUDED.repo_path,
			transcript = EXCLUDED.transcript
	`, sess.ID, sess.Tool, sess.StartedAt, sess.EndedAt, sess.WorkingDirectory, sess.RepoPath, sess.Transcript)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, tool, started_at, ended_at, working_directory, repo_path,
		       transcript, cumulative_summary, summary_generated, linked_commit_id
		FROM sessions WHERE session_id = $1
	`, sessionID)

	var sess Session
	err := row.Scan(&sess.ID, &sess.Tool, &sess.StartedAt, &sess.EndedAt,
		&sess.WorkingDirectory, &sess.RepoPath, &sess.Transcript,
		&sess.CumulativeSummary, &sess.SummaryGenerated, &sess.LinkedCommitID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// SetSessionSummary copies the final cumulative summary onto the session and
// marks it generated. Called only after the last chunk persisted.
func (s *Store) SetSessionSummary(ctx context.Context, sessionID, summary string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET cumulative_summary = $2, summary_generated = TRUE
		WHERE session_id = $1
	`, sessionID, summary)
	if err != nil {
		return fmt.Errorf("set session summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// SetSessionCommit overwrites the linked commit. An empty commitID clears
// the link, keeping correlation idempotent on re-run.
func (s *Store) SetSessionCommit(ctx context.Context, sessionID, commitID string) error {
	var id *string
	if commitID != "" {
		id = &commitID
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET linked_commit_id = $2 WHERE session_id = $1`,
		sessionID, id)
	if err != nil {
		return fmt.Errorf("set session commit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// InsertChunk durably persists one summarization checkpoint. Single
// statement, so the row is crash-atomic: either the checkpoint exists and
// the pipeline may advance, or it does not and the chunk is redone.
func (s *Store) InsertChunk(ctx context.Context, c ChunkRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_chunks (session_id, chunk_index, start_line, end_line, summary_text, cumulative_summary_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, c.SessionID, c.ChunkIndex, c.StartLine, c.EndLine, c.SummaryText, c.CumulativeSummaryText)
	if err != nil {
		return fmt.Errorf("insert chunk %d for session %s: %w", c.ChunkIndex, c.SessionID, err)
	}
	slog.Debug("chunk persisted", "session_id", c.SessionID, "chunk_index", c.ChunkIndex)
	return nil
}

func (s *Store) GetChunks(ctx context.Context, sessionID string) ([]ChunkRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, chunk_index, start_line, end_line, summary_text, cumulative_summary_text, created_at
		FROM session_chunks WHERE session_id = $1 ORDER BY chunk_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRow
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(&c.SessionID, &c.ChunkIndex, &c.StartLine, &c.EndLine,
			&c.SummaryText, &c.CumulativeSummaryText, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetLastChunk returns the highest-index persisted chunk, or nil when the
// session has no checkpoints yet.
func (s *Store) GetLastChunk(ctx context.Context, sessionID string) (*ChunkRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, chunk_index, start_line, end_line, summary_text, cumulative_summary_text, created_at
		FROM session_chunks WHERE session_id = $1 ORDER BY chunk_index DESC LIMIT 1
	`, sessionID)

	var c ChunkRow
	err := row.Scan(&c.SessionID, &c.ChunkIndex, &c.StartLine, &c.EndLine,
		&c.SummaryText, &c.CumulativeSummaryText, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last chunk: %w", err)
	}
	return &c, nil
}

// ResetSummary discards all checkpoints and summary state for a session in
// one transaction, so a crash cannot leave chunks without a cleared flag.
func (s *Store) ResetSummary(ctx context.Context, sessionID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM session_chunks WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE sessions SET cumulative_summary = '', summary_generated = FALSE
		WHERE session_id = $1
	`, sessionID); err != nil {
		return fmt.Errorf("clear summary: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

// InsertCommits batch-inserts commits recorded by the repository importer.
func (s *Store) InsertCommits(ctx context.Context, commits []Commit) error {
	if len(commits) == 0 {
		return nil
	}

	rows := make([][]any, len(commits))
	for i, c := range commits {
		files, err := json.Marshal(c.FilesChanged)
		if err != nil {
			return fmt.Errorf("marshal files for %s: %w", c.SHA, err)
		}
		rows[i] = []any{c.ID, c.SHA, c.Timestamp, c.RepoPath, c.Author, c.Message, files}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"commits"},
		[]string{"commit_id", "sha", "timestamp", "repo_path", "author", "message", "files_changed"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy commits: %w", err)
	}

	slog.Debug("inserted commits", "count", len(commits))
	return nil
}

// ListCommits returns commits for a repository within [from, to], inclusive
// on both ends, ordered by timestamp.
func (s *Store) ListCommits(ctx context.Context, repoPath string, from, to time.Time) ([]Commit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT commit_id, sha, timestamp, repo_path, author, message, files_changed
		FROM commits
		WHERE repo_path = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp
	`, repoPath, from, to)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	var commits []Commit
	for rows.Next() {
		var c Commit
		var files []byte
		if err := rows.Scan(&c.ID, &c.SHA, &c.Timestamp, &c.RepoPath, &c.Author, &c.Message, &files); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		if len(files) > 0 {
			if err := json.Unmarshal(files, &c.FilesChanged); err != nil {
				return nil, fmt.Errorf("unmarshal files for %s: %w", c.SHA, err)
			}
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}
