package provider

import (
	"fmt"
	"strings"
)

// maxSummaryWords bounds the cumulative summary so it cannot grow without
// limit across many chunks.
const maxSummaryWords = 500

// buildPrompt assembles the cumulative summarization prompt: the prior
// summary (empty for chunk 0), the new chunk, and the instruction to emit an
// updated length-bounded summary.
func buildPrompt(priorSummary, chunkText string) string {
	var sb strings.Builder

	sb.WriteString("You are an expert development session analyzer. ")
	sb.WriteString("You summarize terminal transcripts of AI-assisted coding sessions one chunk at a time, maintaining a single running summary.\n\n")

	if priorSummary == "" {
		sb.WriteString("This is the first chunk of the session; there is no prior summary.\n\n")
	} else {
		sb.WriteString("SUMMARY OF THE SESSION SO FAR:\n")
		sb.WriteString(priorSummary)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, `TASK: Produce an UPDATED summary covering both the prior summary and the new chunk below.

REQUIREMENTS:
- Focus on WHAT was built or fixed, not how the conversation went
- Extract key technical decisions and their rationale
- Identify specific files, functions, or components touched
- Note any blockers, bugs, or issues encountered
- Keep the whole summary under %d words
- Be technical and specific (e.g. "Added PostgreSQL support", not "worked on database")

FORMAT:
## What Was Built
## Key Decisions
## Files Touched
## Issues/Blockers (if any)

NEW TRANSCRIPT CHUNK:
%s

UPDATED SUMMARY:`, maxSummaryWords, chunkText)

	return sb.String()
}

// clampWords truncates s to at most max words. Defends the length bound when
// a model ignores the prompt instruction.
func clampWords(s string, max int) string {
	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	return strings.Join(words[:max], " ") + " ..."
}
