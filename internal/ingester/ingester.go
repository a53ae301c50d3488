// Package ingester consumes session messages from NATS JetStream and feeds
// them into the summarization pipeline.
package ingester

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/correlate"
	"github.com/MikeSquared-Agency/scribe/internal/events"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/summary"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName   = "SESSIONS"
	consumerName = "scribe-SESSIONS"
)

var streamSubjects = []string{"scribe.session.>"}

type Ingester struct {
	nc         *nats.Conn
	js         jetstream.JetStream
	store      store.DataStore
	orch       *summary.Orchestrator
	correlator *correlate.Correlator
	subs       []jetstream.ConsumeContext
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(natsURL string, ds store.DataStore, o *summary.Orchestrator, c *correlate.Correlator) (*Ingester, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ictx, ican := context.WithCancel(context.Background())
	return &Ingester{
		nc:         nc,
		js:         js,
		store:      ds,
		orch:       o,
		correlator: c,
		ctx:        ictx,
		cancel:     ican,
	}, nil
}

// Start binds to a durable consumer on the session stream and begins consuming.
func (ing *Ingester) Start() error {
	ctx := context.Background()

	if err := ing.ensureStream(ctx); err != nil {
		return fmt.Errorf("ensure stream %s: %w", streamName, err)
	}

	consumer, err := ing.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    3,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ing.handleMessage(msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}

	ing.subs = append(ing.subs, cc)
	slog.Info("subscribed to stream", "stream", streamName, "consumer", consumerName)
	return nil
}

func (ing *Ingester) ensureStream(ctx context.Context) error {
	// Try to get existing stream first.
	_, err := ing.js.Stream(ctx, streamName)
	if err == nil {
		return nil
	}

	// Create stream if it doesn't exist.
	_, err = ing.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  streamSubjects,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}

	slog.Info("created stream", "name", streamName, "subjects", streamSubjects)
	return nil
}

func (ing *Ingester) handleMessage(msg jetstream.Msg) {
	switch msg.Subject() {
	case events.SubjectSessionFinalized:
		ing.handleFinalized(msg)
	case events.SubjectResummarize:
		ing.handleResummarize(msg)
	default:
		slog.Warn("unhandled subject, skipping", "subject", msg.Subject())
		_ = msg.Ack()
	}
}

func (ing *Ingester) handleFinalized(msg jetstream.Msg) {
	e, err := events.Normalize(msg.Data())
	if err != nil {
		slog.Warn("malformed session event, skipping",
			"subject", msg.Subject(),
			"error", err,
		)
		// Ack to avoid redelivery of permanently broken messages.
		_ = msg.Ack()
		return
	}

	sess := store.Session{
		ID:               e.SessionID,
		Tool:             e.Tool,
		StartedAt:        e.StartedAt,
		EndedAt:          e.EndedAt,
		WorkingDirectory: e.WorkingDirectory,
		RepoPath:         e.RepoPath,
		Transcript:       e.Transcript,
	}
	if err := ing.store.UpsertSession(ing.ctx, sess); err != nil {
		slog.Error("persist session failed, leaving for redelivery",
			"session_id", e.SessionID,
			"error", err,
		)
		_ = msg.Nak()
		return
	}

	// Ack once the session row is durable. The pipeline itself checkpoints
	// per chunk, so a crash mid-summary resumes from the store, not from NATS
	// redelivery.
	if err := msg.Ack(); err != nil {
		slog.Warn("failed to ack message", "subject", msg.Subject(), "error", err)
	}

	go ing.runPipeline(e.SessionID)
}

func (ing *Ingester) handleResummarize(msg jetstream.Msg) {
	var req events.ResummarizeRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil || req.SessionID == "" {
		slog.Warn("malformed resummarize request, skipping", "error", err)
		_ = msg.Ack()
		return
	}

	if err := msg.Ack(); err != nil {
		slog.Warn("failed to ack message", "subject", msg.Subject(), "error", err)
	}

	go func() {
		opts := summary.ResummarizeOptions{Reset: req.Reset, ChunkSize: req.ChunkSize}
		if err := ing.orch.Resummarize(ing.ctx, req.SessionID, opts); err != nil {
			slog.Error("resummarize failed", "session_id", req.SessionID, "error", err)
		}
	}()
}

// runPipeline summarizes then correlates one session. Sessions are independent
// so each runs in its own goroutine; chunks inside a session stay sequential.
func (ing *Ingester) runPipeline(sessionID string) {
	if _, err := ing.orch.EnsureSummary(ing.ctx, sessionID); err != nil {
		// Halted with checkpoints intact. The next finalized event or an
		// explicit resummarize picks up where this run stopped.
		slog.Error("summarization halted", "session_id", sessionID, "error", err)
		return
	}

	if _, err := ing.correlator.CorrelateSession(ing.ctx, sessionID); err != nil {
		slog.Warn("commit correlation failed", "session_id", sessionID, "error", err)
	}
}

// Publish sends a message to NATS (used for announcing scribe's own lifecycle).
func (ing *Ingester) Publish(subject string, data []byte) error {
	return ing.nc.Publish(subject, data)
}

// Close drains subscriptions and closes the NATS connection.
func (ing *Ingester) Close() {
	ing.cancel()
	for _, cc := range ing.subs {
		cc.Stop()
	}
	ing.nc.Drain()
}
