// Package correlate links sessions to version-control commits recorded in
// the same repository, using a symmetric time window around the session.
package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/store"
)

// DefaultWindow is the symmetric correlation window around the session range.
const DefaultWindow = 30 * time.Minute

// Correlator joins a session's time range against recorded commits. Commits
// are read-only here; only the session's link field is written.
type Correlator struct {
	store  store.DataStore
	window time.Duration
	now    func() time.Time
}

func New(ds store.DataStore, window time.Duration) *Correlator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Correlator{store: ds, window: window, now: time.Now}
}

// CorrelateSession finds the commit whose timestamp is closest to the
// session's end within ±window of the session range, links it, and returns
// its id. Returns "" when no candidate exists. Idempotent: re-running
// overwrites the previous link rather than duplicating it.
func (c *Correlator) CorrelateSession(ctx context.Context, sessionID string) (string, error) {
	sess, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.RepoPath == "" {
		slog.Debug("correlate: session has no repository", "session_id", sessionID)
		return "", nil
	}

	end := c.now().UTC()
	if sess.EndedAt != nil {
		end = *sess.EndedAt
	}

	from := sess.StartedAt.Add(-c.window)
	to := end.Add(c.window)

	candidates, err := c.store.ListCommits(ctx, sess.RepoPath, from, to)
	if err != nil {
		return "", fmt.Errorf("list commits: %w", err)
	}
	if len(candidates) == 0 {
		if err := c.store.SetSessionCommit(ctx, sessionID, ""); err != nil {
			return "", err
		}
		return "", nil
	}

	best := pickClosest(candidates, end)

	if err := c.store.SetSessionCommit(ctx, sessionID, best.ID); err != nil {
		return "", fmt.Errorf("link commit: %w", err)
	}

	slog.Info("correlate: session linked",
		"session_id", sessionID,
		"commit_sha", best.SHA,
		"distance", absDuration(best.Timestamp.Sub(end)),
	)
	return best.ID, nil
}

// pickClosest selects the candidate nearest to end. Ties go to the earlier
// commit, then to the smaller SHA, so re-runs are deterministic.
func pickClosest(candidates []store.Commit, end time.Time) store.Commit {
	best := candidates[0]
	bestDist := absDuration(best.Timestamp.Sub(end))

	for _, cand := range candidates[1:] {
		dist := absDuration(cand.Timestamp.Sub(end))
		switch {
		case dist < bestDist:
			best, bestDist = cand, dist
		case dist == bestDist:
			if cand.Timestamp.Before(best.Timestamp) ||
				(cand.Timestamp.Equal(best.Timestamp) && cand.SHA < best.SHA) {
				best = cand
			}
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
