// Package provider abstracts the summarization backends. A Provider turns a
// prior cumulative summary plus one chunk of transcript text into an updated
// cumulative summary. Providers never retry internally; retry policy lives in
// the retry package.
package provider

import (
	"context"
	"fmt"
)

// Provider kinds selectable in configuration.
const (
	KindGemini = "gemini"
	KindOllama = "ollama"
)

// Provider produces an updated cumulative summary from the prior summary and
// new chunk text. Failures are *Error values carrying an error class.
type Provider interface {
	Summarize(ctx context.Context, priorSummary, chunkText string) (string, error)
	Name() string
}

// Options selects and configures a concrete provider.
type Options struct {
	Kind         string
	Model        string
	GeminiAPIKey string
	OllamaHost   string
}

// New builds the configured provider. The choice happens once here; call
// sites only ever see the Provider interface.
func New(ctx context.Context, opts Options) (Provider, error) {
	switch opts.Kind {
	case KindGemini:
		return NewGemini(ctx, opts.GeminiAPIKey, opts.Model)
	case KindOllama:
		return NewOllama(opts.OllamaHost, opts.Model), nil
	default:
		return nil, fmt.Errorf("unknown summarization provider %q", opts.Kind)
	}
}
