package provider

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini is the cloud-hosted provider backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates the Gemini provider. The API key is required; the model
// defaults to gemini-2.5-flash.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return KindGemini }

func (g *Gemini) Summarize(ctx context.Context, priorSummary, chunkText string) (string, error) {
	prompt := buildPrompt(priorSummary, chunkText)

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", NewTransient(fmt.Errorf("empty response from gemini"))
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", NewTransient(fmt.Errorf("gemini returned no text parts"))
	}

	return clampWords(strings.TrimSpace(text.String()), maxSummaryWords), nil
}

// retryInPattern matches the "retry in 12.3s" hint Gemini embeds in quota
// error messages.
var retryInPattern = regexp.MustCompile(`retry in (\d+(?:\.\d+)?)s`)

func classifyGeminiError(err error) *Error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	if strings.Contains(msg, "429") || strings.Contains(lower, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return NewRateLimited(err, parseRetryIn(msg))
	}

	if strings.Contains(msg, "500") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "UNAVAILABLE") || strings.Contains(msg, "DEADLINE_EXCEEDED") ||
		strings.Contains(lower, "timeout") || strings.Contains(lower, "connection") {
		return NewTransient(err)
	}

	return NewFatal(err)
}

// parseRetryIn extracts the retry hint from a quota error message, adding a
// one-second buffer. Returns zero when no hint is present.
func parseRetryIn(msg string) time.Duration {
	m := retryInPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return time.Duration((secs+1)*float64(time.Second))
}
