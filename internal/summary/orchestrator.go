// Package summary drives the per-session chunk loop: normalize, split, call
// the provider through the retry controller, checkpoint every chunk, and
// resume from the last durable checkpoint after any failure.
package summary

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/scribe/internal/provider"
	"github.com/MikeSquared-Agency/scribe/internal/retry"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

// FailureAlertFunc is called when a pipeline halts with retries exhausted.
// Wired to the Slack alerter in main; nil disables alerting.
type FailureAlertFunc func(ctx context.Context, sessionID string, chunksDone, chunksTotal int, cause error)

// Summary is the read-side view of a session's summarization state. Callers
// can tell a partial "summary so far" apart from a complete one.
type Summary struct {
	Text       string `json:"text"`
	Complete   bool   `json:"complete"`
	ChunksDone int    `json:"chunks_done"`
}

// PipelineError reports a halted run: how far it got and that it can resume.
type PipelineError struct {
	SessionID   string
	ChunksDone  int
	ChunksTotal int
	Err         error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("session %s: summarized %d of %d chunks (%v); resumable from the last checkpoint",
		e.SessionID, e.ChunksDone, e.ChunksTotal, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ResummarizeOptions control an explicit re-run. ChunkSize of zero keeps the
// configured size; overriding it requires Reset, because re-splitting with a
// different size would break the contiguity of persisted ranges.
type ResummarizeOptions struct {
	Reset     bool
	ChunkSize int
}

// Orchestrator owns a session's summary fields. Each session runs strictly
// sequentially — chunk N+1 needs chunk N's cumulative summary — but distinct
// sessions may run concurrently on separate Orchestrator calls.
type Orchestrator struct {
	store     store.DataStore
	provider  provider.Provider
	retrier   *retry.Controller
	chunkSize int
	alert     FailureAlertFunc
}

func New(ds store.DataStore, p provider.Provider, r *retry.Controller, chunkSize int) *Orchestrator {
	if chunkSize < 1 {
		chunkSize = transcript.DefaultChunkSize
	}
	return &Orchestrator{store: ds, provider: p, retrier: r, chunkSize: chunkSize}
}

// SetFailureAlert registers the halt notification callback.
func (o *Orchestrator) SetFailureAlert(fn FailureAlertFunc) {
	o.alert = fn
}

// GetSummary is a pure read: it returns whatever summary exists right now,
// partial or complete, and never triggers provider calls.
func (o *Orchestrator) GetSummary(ctx context.Context, sessionID string) (Summary, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}

	last, err := o.store.GetLastChunk(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}

	if sess.SummaryGenerated {
		done := 0
		if last != nil {
			done = last.ChunkIndex + 1
		}
		return Summary{Text: sess.CumulativeSummary, Complete: true, ChunksDone: done}, nil
	}

	if last == nil {
		return Summary{}, nil
	}
	return Summary{Text: last.CumulativeSummaryText, ChunksDone: last.ChunkIndex + 1}, nil
}

// EnsureSummary returns the cumulative summary, running the pipeline first if
// it has not completed yet.
func (o *Orchestrator) EnsureSummary(ctx context.Context, sessionID string) (string, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.SummaryGenerated {
		return sess.CumulativeSummary, nil
	}
	return o.run(ctx, sess, o.chunkSize)
}

// Resummarize re-runs the pipeline: from the last checkpoint by default, or
// from scratch when opts.Reset is set.
func (o *Orchestrator) Resummarize(ctx context.Context, sessionID string, opts ResummarizeOptions) error {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if opts.ChunkSize > 0 && !opts.Reset {
		last, err := o.store.GetLastChunk(ctx, sessionID)
		if err != nil {
			return err
		}
		if last != nil {
			return fmt.Errorf("session %s: chunk size override requires reset while checkpoints exist", sessionID)
		}
	}

	if opts.Reset {
		if err := o.store.ResetSummary(ctx, sessionID); err != nil {
			return fmt.Errorf("reset summary state: %w", err)
		}
		sess.SummaryGenerated = false
	} else if sess.SummaryGenerated {
		return nil
	}

	size := o.chunkSize
	if opts.ChunkSize > 0 {
		size = opts.ChunkSize
	}

	_, err = o.run(ctx, sess, size)
	return err
}

// run processes every chunk not yet checkpointed. Each chunk is persisted
// before the prior-cumulative pointer advances; a failure leaves the session
// with summary_generated=false and every completed checkpoint intact.
func (o *Orchestrator) run(ctx context.Context, sess store.Session, chunkSize int) (string, error) {
	normalized := transcript.Normalize(sess.Transcript)

	last, err := o.store.GetLastChunk(ctx, sess.ID)
	if err != nil {
		return "", err
	}

	prior := ""
	startLine, nextIndex := 0, 0
	if last != nil {
		prior = last.CumulativeSummaryText
		startLine = last.EndLine
		nextIndex = last.ChunkIndex + 1
	}

	remaining := transcript.SplitFrom(normalized, chunkSize, startLine, nextIndex)
	total := nextIndex + len(remaining)

	if len(remaining) == 0 {
		// Nothing left: empty transcript, or a crash after the final chunk
		// persisted but before finalization.
		if err := o.store.SetSessionSummary(ctx, sess.ID, prior); err != nil {
			return "", fmt.Errorf("finalize session %s: %w", sess.ID, err)
		}
		slog.Info("summary: session finalized", "session_id", sess.ID, "chunks", nextIndex)
		return prior, nil
	}

	slog.Info("summary: processing session",
		"session_id", sess.ID,
		"provider", o.provider.Name(),
		"chunks_total", total,
		"resuming_from", nextIndex,
	)

	done := nextIndex
	for _, chunk := range remaining {
		chunkText := chunk.Text
		result, err := o.retrier.Do(ctx, func(ctx context.Context) (string, error) {
			return o.provider.Summarize(ctx, prior, chunkText)
		})
		if err != nil {
			perr := &PipelineError{SessionID: sess.ID, ChunksDone: done, ChunksTotal: total, Err: err}
			slog.Error("summary: pipeline halted",
				"session_id", sess.ID,
				"chunks_done", done,
				"chunks_total", total,
				"error", err,
			)
			if o.alert != nil {
				o.alert(ctx, sess.ID, done, total, err)
			}
			return "", perr
		}

		row := store.ChunkRow{
			SessionID:             sess.ID,
			ChunkIndex:            chunk.Index,
			StartLine:             chunk.StartLine,
			EndLine:               chunk.EndLine,
			SummaryText:           result,
			CumulativeSummaryText: result,
		}
		if err := o.store.InsertChunk(ctx, row); err != nil {
			// Persistence failure aborts the run; committed checkpoints stay
			// untouched and the chunk is redone on the next invocation.
			return "", &PipelineError{SessionID: sess.ID, ChunksDone: done, ChunksTotal: total, Err: err}
		}

		prior = result
		done++
		slog.Debug("summary: chunk complete",
			"session_id", sess.ID,
			"chunk_index", chunk.Index,
			"lines", fmt.Sprintf("%d-%d", chunk.StartLine, chunk.EndLine),
		)
	}

	if err := o.store.SetSessionSummary(ctx, sess.ID, prior); err != nil {
		return "", &PipelineError{SessionID: sess.ID, ChunksDone: done, ChunksTotal: total, Err: err}
	}

	slog.Info("summary: session finalized", "session_id", sess.ID, "chunks", done)
	return prior, nil
}
