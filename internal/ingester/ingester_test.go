package ingester

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/correlate"
	"github.com/MikeSquared-Agency/scribe/internal/retry"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/summary"
	"github.com/MikeSquared-Agency/scribe/internal/testutil"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type countingProvider struct {
	calls int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Summarize(_ context.Context, _, _ string) (string, error) {
	p.calls++
	return fmt.Sprintf("summary v%d", p.calls), nil
}

func setupIngester(ms *testutil.MockStore) (*Ingester, *countingProvider) {
	prov := &countingProvider{}
	retrier := retry.NewWithSleep(3, func(_ context.Context, _ time.Duration) error { return nil })
	orch := summary.New(ms, prov, retrier, 100)
	corr := correlate.New(ms, 30*time.Minute)
	return &Ingester{
		store:      ms,
		orch:       orch,
		correlator: corr,
		ctx:        context.Background(),
	}, prov
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHandleMessage_FinalizedSession(t *testing.T) {
	ms := testutil.NewMockStore()
	ing, prov := setupIngester(ms)

	payload, _ := json.Marshal(map[string]any{
		"session_id": "sess-1",
		"tool":       "claude-code",
		"started_at": time.Now().UTC().Format(time.RFC3339),
		"transcript": "line one\nline two\n",
	})

	msg := &fakeMsg{subject: "scribe.session.finalized", data: payload}
	ing.handleMessage(msg)

	if !msg.acked {
		t.Error("expected ack after session persisted")
	}
	if _, err := ms.GetSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("session not persisted: %v", err)
	}

	waitFor(t, func() bool {
		s, err := ms.GetSession(context.Background(), "sess-1")
		return err == nil && s.SummaryGenerated
	}, "pipeline to finish")

	if prov.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", prov.calls)
	}
}

func TestHandleMessage_MalformedPayloadAcked(t *testing.T) {
	ms := testutil.NewMockStore()
	ing, prov := setupIngester(ms)

	msg := &fakeMsg{subject: "scribe.session.finalized", data: []byte("{not json")}
	ing.handleMessage(msg)

	if !msg.acked {
		t.Error("malformed messages must be acked to stop redelivery")
	}
	if len(ms.Sessions) != 0 {
		t.Errorf("expected no session stored, got %d", len(ms.Sessions))
	}
	if prov.calls != 0 {
		t.Errorf("expected no provider calls, got %d", prov.calls)
	}
}

func TestHandleMessage_PersistFailureNaks(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.UpsertSessionErr = fmt.Errorf("connection refused")
	ing, _ := setupIngester(ms)

	payload, _ := json.Marshal(map[string]any{
		"session_id": "sess-1",
		"started_at": time.Now().UTC().Format(time.RFC3339),
	})

	msg := &fakeMsg{subject: "scribe.session.finalized", data: payload}
	ing.handleMessage(msg)

	if msg.acked {
		t.Error("must not ack when the session row was not persisted")
	}
	if !msg.naked {
		t.Error("expected nak for redelivery")
	}
}

func TestHandleMessage_ResummarizeReset(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.SetSession(store.Session{
		ID:                "sess-1",
		Transcript:        "line one\n",
		StartedAt:         time.Now().UTC(),
		CumulativeSummary: "old summary",
		SummaryGenerated:  true,
	})
	ing, prov := setupIngester(ms)

	payload, _ := json.Marshal(map[string]any{"session_id": "sess-1", "reset": true})
	msg := &fakeMsg{subject: "scribe.session.resummarize", data: payload}
	ing.handleMessage(msg)

	if !msg.acked {
		t.Error("expected ack for resummarize request")
	}

	waitFor(t, func() bool {
		s, err := ms.GetSession(context.Background(), "sess-1")
		return err == nil && s.SummaryGenerated && s.CumulativeSummary != "old summary"
	}, "resummarize to finish")

	if prov.calls != 1 {
		t.Errorf("expected 1 provider call after reset, got %d", prov.calls)
	}
}

func TestHandleMessage_ResummarizeMissingSessionID(t *testing.T) {
	ms := testutil.NewMockStore()
	ing, prov := setupIngester(ms)

	msg := &fakeMsg{subject: "scribe.session.resummarize", data: []byte(`{"reset": true}`)}
	ing.handleMessage(msg)

	if !msg.acked {
		t.Error("expected ack for unusable request")
	}
	if prov.calls != 0 {
		t.Errorf("expected no provider calls, got %d", prov.calls)
	}
}

func TestHandleMessage_UnknownSubject(t *testing.T) {
	ms := testutil.NewMockStore()
	ing, _ := setupIngester(ms)

	msg := &fakeMsg{subject: "scribe.session.other", data: []byte(`{}`)}
	ing.handleMessage(msg)

	if !msg.acked {
		t.Error("unknown subjects must be acked")
	}
}

// fakeMsg implements jetstream.Msg for unit testing without a real NATS connection.
type fakeMsg struct {
	subject string
	data    []byte
	acked   bool
	naked   bool
}

func (m *fakeMsg) Data() []byte                       { return m.data }
func (m *fakeMsg) Subject() string                    { return m.subject }
func (m *fakeMsg) Ack() error                         { m.acked = true; return nil }
func (m *fakeMsg) Nak() error                         { m.naked = true; return nil }
func (m *fakeMsg) NakWithDelay(d time.Duration) error { m.naked = true; return nil }
func (m *fakeMsg) InProgress() error                  { return nil }
func (m *fakeMsg) Term() error                        { return nil }
func (m *fakeMsg) TermWithReason(reason string) error { return nil }
func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return nil, nil
}
func (m *fakeMsg) Headers() nats.Header                { return nil }
func (m *fakeMsg) Reply() string                       { return "" }
func (m *fakeMsg) DoubleAck(ctx context.Context) error { return nil }
