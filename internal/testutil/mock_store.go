// Package testutil provides a thread-safe in-memory store.DataStore used
// across package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/store"
)

// MockStore is an in-memory implementation of store.DataStore.
type MockStore struct {
	mu sync.Mutex

	Sessions map[string]store.Session
	Chunks   map[string][]store.ChunkRow
	Commits  []store.Commit

	UpsertSessionErr error
	InsertChunkErr   error
	GetSessionErr    error
	FinalizeErr      error

	InsertChunkCalls int
	FinalizeCalls    int
	ResetCalls       int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Sessions: make(map[string]store.Session),
		Chunks:   make(map[string][]store.ChunkRow),
	}
}

func (m *MockStore) UpsertSession(_ context.Context, s store.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertSessionErr != nil {
		return m.UpsertSessionErr
	}
	if existing, ok := m.Sessions[s.ID]; ok {
		s.CumulativeSummary = existing.CumulativeSummary
		s.SummaryGenerated = existing.SummaryGenerated
		s.LinkedCommitID = existing.LinkedCommitID
	}
	m.Sessions[s.ID] = s
	return nil
}

func (m *MockStore) GetSession(_ context.Context, sessionID string) (store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetSessionErr != nil {
		return store.Session{}, m.GetSessionErr
	}
	s, ok := m.Sessions[sessionID]
	if !ok {
		return store.Session{}, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}
	return s, nil
}

func (m *MockStore) SetSessionSummary(_ context.Context, sessionID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FinalizeCalls++
	if m.FinalizeErr != nil {
		return m.FinalizeErr
	}
	s, ok := m.Sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}
	s.CumulativeSummary = summary
	s.SummaryGenerated = true
	m.Sessions[sessionID] = s
	return nil
}

func (m *MockStore) SetSessionCommit(_ context.Context, sessionID, commitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}
	if commitID == "" {
		s.LinkedCommitID = nil
	} else {
		s.LinkedCommitID = &commitID
	}
	m.Sessions[sessionID] = s
	return nil
}

func (m *MockStore) InsertChunk(_ context.Context, c store.ChunkRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertChunkCalls++
	if m.InsertChunkErr != nil {
		return m.InsertChunkErr
	}
	c.CreatedAt = time.Now().UTC()
	m.Chunks[c.SessionID] = append(m.Chunks[c.SessionID], c)
	sort.Slice(m.Chunks[c.SessionID], func(i, j int) bool {
		return m.Chunks[c.SessionID][i].ChunkIndex < m.Chunks[c.SessionID][j].ChunkIndex
	})
	return nil
}

func (m *MockStore) GetChunks(_ context.Context, sessionID string) ([]store.ChunkRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks := make([]store.ChunkRow, len(m.Chunks[sessionID]))
	copy(chunks, m.Chunks[sessionID])
	return chunks, nil
}

func (m *MockStore) GetLastChunk(_ context.Context, sessionID string) (*store.ChunkRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks := m.Chunks[sessionID]
	if len(chunks) == 0 {
		return nil, nil
	}
	last := chunks[len(chunks)-1]
	return &last, nil
}

func (m *MockStore) ResetSummary(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCalls++
	delete(m.Chunks, sessionID)
	if s, ok := m.Sessions[sessionID]; ok {
		s.CumulativeSummary = ""
		s.SummaryGenerated = false
		m.Sessions[sessionID] = s
	}
	return nil
}

func (m *MockStore) InsertCommits(_ context.Context, commits []store.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commits = append(m.Commits, commits...)
	return nil
}

func (m *MockStore) ListCommits(_ context.Context, repoPath string, from, to time.Time) ([]store.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []store.Commit
	for _, c := range m.Commits {
		if c.RepoPath != repoPath {
			continue
		}
		if c.Timestamp.Before(from) || c.Timestamp.After(to) {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (m *MockStore) Close() {}

// SetSession seeds a session for testing.
func (m *MockStore) SetSession(s store.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[s.ID] = s
}

// ChunkCount returns how many checkpoints exist for a session.
func (m *MockStore) ChunkCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Chunks[sessionID])
}
