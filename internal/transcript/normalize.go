// Package transcript holds the pure text stages of the summarization
// pipeline: normalization of raw terminal capture and line-bounded chunking.
package transcript

import (
	"regexp"
	"strings"
)

var (
	// ANSI escape sequences: colors, cursor movement, and other terminal
	// directives emitted by interactive tools.
	ansiEscape = regexp.MustCompile(`\x1b(?:[@-Z\\^_]|\[[0-?]*[ -/]*[@-~])`)

	// Remaining CSI sequences that slip past the general pattern.
	csiSequence = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

	// Control characters except newline (0x0A) and tab (0x09).
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
)

// Normalize cleans a raw terminal transcript for summarization. It strips
// escape and control sequences, deduplicates immediately-repeated lines
// (spinner and progress-bar redraws), and collapses runs of more than two
// blank lines down to two. It never fails and is idempotent:
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	cleaned := ansiEscape.ReplaceAllString(raw, "")
	cleaned = csiSequence.ReplaceAllString(cleaned, "")
	cleaned = controlChars.ReplaceAllString(cleaned, "")

	lines := strings.Split(cleaned, "\n")
	out := make([]string, 0, len(lines))

	var prev string
	prevSet := false
	blanks := 0

	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")

		// Blank lines are owned by the collapse rule, not dedup; a blank
		// also breaks a duplicate run.
		if trimmed == "" {
			blanks++
			prevSet = false
			if blanks <= 2 {
				out = append(out, line)
			}
			continue
		}
		blanks = 0

		// Trailing-whitespace-insensitive match against the previous line.
		if prevSet && trimmed == prev {
			continue
		}
		prev = trimmed
		prevSet = true
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}
