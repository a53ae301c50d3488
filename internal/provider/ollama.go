package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "qwen2.5:32b"
)

// Ollama is the local-inference provider, talking to an Ollama-compatible
// HTTP endpoint.
type Ollama struct {
	host   string
	model  string
	client *http.Client
}

// NewOllama creates the local provider. Host defaults to localhost:11434.
func NewOllama(host, model string) *Ollama {
	if host == "" {
		host = defaultOllamaHost
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (o *Ollama) Name() string { return KindOllama }

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the non-streaming /api/generate response body.
type generateResponse struct {
	Response string `json:"response"`
}

func (o *Ollama) Summarize(ctx context.Context, priorSummary, chunkText string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  o.model,
		Prompt: buildPrompt(priorSummary, chunkText),
		Stream: false,
	})
	if err != nil {
		return "", NewFatal(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", NewFatal(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", NewTransient(fmt.Errorf("ollama request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", NewRateLimited(fmt.Errorf("ollama returned 429"), parseRetryAfterHeader(resp))
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", NewTransient(fmt.Errorf("ollama returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", NewFatal(fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", NewTransient(fmt.Errorf("decode response: %w", err))
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", NewTransient(fmt.Errorf("empty response from ollama"))
	}

	return clampWords(strings.TrimSpace(out.Response), maxSummaryWords), nil
}

func parseRetryAfterHeader(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
