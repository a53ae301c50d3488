package transcript

// DefaultChunkSize is the default chunk length in lines.
const DefaultChunkSize = 10000

// Chunk is a contiguous line-bounded slice of normalized text. StartLine is
// inclusive and EndLine exclusive, both 0-based; Text is the exact substring
// of the input covering that range, so concatenating the Text of every chunk
// in order reproduces the input byte for byte.
type Chunk struct {
	Index     int
	StartLine int
	EndLine   int
	Text      string
}

// Split partitions text into chunks of at most size lines. The final chunk
// may be shorter. Empty input yields no chunks.
func Split(text string, size int) []Chunk {
	return SplitFrom(text, size, 0, 0)
}

// SplitFrom partitions text starting at startLine, numbering chunks from
// startIndex. It lets a resumed pipeline derive the remaining chunks without
// reprocessing the ranges already persisted.
func SplitFrom(text string, size, startLine, startIndex int) []Chunk {
	if size < 1 {
		size = DefaultChunkSize
	}

	offsets := lineOffsets(text)
	total := len(offsets) - 1

	var chunks []Chunk
	idx := startIndex
	for start := startLine; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		chunks = append(chunks, Chunk{
			Index:     idx,
			StartLine: start,
			EndLine:   end,
			Text:      text[offsets[start]:offsets[end]],
		})
		idx++
	}
	return chunks
}

// LineCount returns the number of lines in text. A trailing newline does not
// start a new line; an unterminated final line counts.
func LineCount(text string) int {
	return len(lineOffsets(text)) - 1
}

// lineOffsets returns the byte offset of each line start plus a final
// sentinel at len(text). A line ends at its newline (inclusive) or at the
// end of input.
func lineOffsets(text string) []int {
	offsets := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	if offsets[len(offsets)-1] != len(text) {
		offsets = append(offsets, len(text))
	}
	return offsets
}
