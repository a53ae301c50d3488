package correlate

import (
	"context"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/testutil"
)

const repo = "/home/dev/projects/app"

func seedSession(ms *testutil.MockStore, id string, start, end time.Time) {
	e := end
	ms.SetSession(store.Session{
		ID:        id,
		Tool:      "claude-code",
		StartedAt: start,
		EndedAt:   &e,
		RepoPath:  repo,
	})
}

func commit(id, sha string, ts time.Time) store.Commit {
	return store.Commit{ID: id, SHA: sha, Timestamp: ts, RepoPath: repo}
}

func TestCorrelate_WindowBoundary(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	ctx := context.Background()

	cases := []struct {
		name     string
		commitAt time.Time
		wantLink bool
	}{
		{"exactly +30:00 included", end.Add(30 * time.Minute), true},
		{"+30:01 excluded", end.Add(30*time.Minute + time.Second), false},
		{"exactly -30:00 before start included", start.Add(-30 * time.Minute), true},
		{"-30:01 before start excluded", start.Add(-30*time.Minute - time.Second), false},
		{"mid-session included", start.Add(20 * time.Minute), true},
	}

	for _, tc := range cases {
		ms := testutil.NewMockStore()
		seedSession(ms, "s1", start, end)
		ms.InsertCommits(ctx, []store.Commit{commit("c1", "aaa111", tc.commitAt)})

		c := New(ms, 30*time.Minute)
		got, err := c.CorrelateSession(ctx, "s1")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if tc.wantLink && got != "c1" {
			t.Errorf("%s: expected link to c1, got %q", tc.name, got)
		}
		if !tc.wantLink && got != "" {
			t.Errorf("%s: expected no link, got %q", tc.name, got)
		}
	}
}

func TestCorrelate_PicksClosestToSessionEnd(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	ctx := context.Background()

	ms := testutil.NewMockStore()
	seedSession(ms, "s1", start, end)
	ms.InsertCommits(ctx, []store.Commit{
		commit("far", "aaa", end.Add(-25*time.Minute)),
		commit("near", "bbb", end.Add(2*time.Minute)),
		commit("mid", "ccc", end.Add(10*time.Minute)),
	})

	c := New(ms, 30*time.Minute)
	got, err := c.CorrelateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "near" {
		t.Errorf("expected near, got %q", got)
	}
}

func TestCorrelate_TieBreakEarlierCommitWins(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	ctx := context.Background()

	ms := testutil.NewMockStore()
	seedSession(ms, "s1", start, end)
	// Equidistant: 5 minutes before and 5 minutes after session end.
	ms.InsertCommits(ctx, []store.Commit{
		commit("after", "bbb", end.Add(5*time.Minute)),
		commit("before", "aaa", end.Add(-5*time.Minute)),
	})

	c := New(ms, 30*time.Minute)
	got, err := c.CorrelateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "before" {
		t.Errorf("tie must go to the earlier commit, got %q", got)
	}
}

func TestCorrelate_TieBreakIdenticalTimestampsSmallerSHA(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	ts := end.Add(3 * time.Minute)
	ctx := context.Background()

	ms := testutil.NewMockStore()
	seedSession(ms, "s1", start, end)
	ms.InsertCommits(ctx, []store.Commit{
		commit("c-bbb", "bbb222", ts),
		commit("c-aaa", "aaa111", ts),
	})

	c := New(ms, 30*time.Minute)
	got, err := c.CorrelateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "c-aaa" {
		t.Errorf("identical timestamps must pick smaller sha, got %q", got)
	}
}

func TestCorrelate_IdempotentRerunOverwrites(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	ctx := context.Background()

	ms := testutil.NewMockStore()
	seedSession(ms, "s1", start, end)
	ms.InsertCommits(ctx, []store.Commit{commit("c1", "aaa", end.Add(10*time.Minute))})

	c := New(ms, 30*time.Minute)
	if _, err := c.CorrelateSession(ctx, "s1"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// A closer commit lands; the re-run overwrites the link.
	ms.InsertCommits(ctx, []store.Commit{commit("c2", "bbb", end.Add(time.Minute))})
	got, err := c.CorrelateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got != "c2" {
		t.Errorf("expected overwritten link c2, got %q", got)
	}

	sess, _ := ms.GetSession(ctx, "s1")
	if sess.LinkedCommitID == nil || *sess.LinkedCommitID != "c2" {
		t.Errorf("expected session linked to c2, got %v", sess.LinkedCommitID)
	}
}

func TestCorrelate_NoCandidatesClearsLink(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	ctx := context.Background()

	ms := testutil.NewMockStore()
	seedSession(ms, "s1", start, end)
	ms.InsertCommits(ctx, []store.Commit{commit("c1", "aaa", end.Add(10*time.Minute))})

	c := New(ms, 30*time.Minute)
	if _, err := c.CorrelateSession(ctx, "s1"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Commits vanish (retention); re-run clears the stale link.
	ms.Commits = nil
	got, err := c.CorrelateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty link, got %q", got)
	}
	sess, _ := ms.GetSession(ctx, "s1")
	if sess.LinkedCommitID != nil {
		t.Errorf("expected cleared link, got %v", sess.LinkedCommitID)
	}
}

func TestCorrelate_OpenSessionUsesNow(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	now := start.Add(45 * time.Minute)
	ctx := context.Background()

	ms := testutil.NewMockStore()
	ms.SetSession(store.Session{ID: "s1", Tool: "claude-code", StartedAt: start, RepoPath: repo})
	ms.InsertCommits(ctx, []store.Commit{commit("c1", "aaa", now.Add(10*time.Minute))})

	c := New(ms, 30*time.Minute)
	c.now = func() time.Time { return now }

	got, err := c.CorrelateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "c1" {
		t.Errorf("expected link via now-anchored window, got %q", got)
	}
}

func TestCorrelate_NoRepoPathSkips(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.SetSession(store.Session{ID: "s1", StartedAt: time.Now()})

	c := New(ms, 30*time.Minute)
	got, err := c.CorrelateSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected no link without repo path, got %q", got)
	}
}
