package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestAlerter(url string) *Alerter {
	a := NewAlerter("xoxb-test", "#scribe-alerts")
	a.apiURL = url
	return a
}

func TestPostPipelineAlert_SendsBlockKitMessage(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newTestAlerter(srv.URL)
	err := a.PostPipelineAlert(context.Background(), "sess-42", 2, 5, errors.New("retries exhausted"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth != "Bearer xoxb-test" {
		t.Errorf("expected bearer token header, got %q", auth)
	}
	if got["channel"] != "#scribe-alerts" {
		t.Errorf("expected channel #scribe-alerts, got %v", got["channel"])
	}
	text, _ := got["text"].(string)
	if !strings.Contains(text, "sess-42") || !strings.Contains(text, "2/5") {
		t.Errorf("fallback text missing session or progress: %q", text)
	}
	if _, ok := got["blocks"]; !ok {
		t.Error("expected blocks payload")
	}
}

func TestPostPipelineAlert_RateLimitsBursts(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newTestAlerter(srv.URL)
	for i := 0; i < 5; i++ {
		_ = a.PostPipelineAlert(context.Background(), "sess-1", 0, 3, errors.New("down"))
	}
	if calls != 1 {
		t.Errorf("expected 1 delivered alert within 30s window, got %d", calls)
	}
}

func TestPostPipelineAlert_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a := newTestAlerter(srv.URL)
	a.lastSent = time.Time{}
	if err := a.PostPipelineAlert(context.Background(), "sess-1", 0, 1, errors.New("x")); err == nil {
		t.Error("expected error on non-200 response")
	}
}
