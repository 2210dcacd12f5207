package document

const (
	// DefaultChunkSize is the window length, in runes, used when splitting
	// over-length documents.
	DefaultChunkSize = 950
	// DefaultChunkOverlap is how many runes consecutive chunks share.
	DefaultChunkOverlap = 150

	// ChunkThreshold is the document length, in runes, above which the
	// summarizer switches to chunked processing.
	ChunkThreshold = 1500
)

// SplitContent slices content into overlapping chunks. Boundaries prefer the
// last paragraph break (blank line) within the final 200 runes of the window,
// then the last sentence-ending 。 within the final 100 runes, then the raw
// window edge. Offsets are measured in runes so CJK text splits correctly.
func SplitContent(content string, chunkSize, overlap int) []string {
	runes := []rune(content)
	if len(runes) <= chunkSize {
		return []string{content}
	}

	var chunks []string
	start := 0

	for start < len(runes) {
		end := start + chunkSize

		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		window := runes[start:end]
		lastParagraph := lastIndexRunes(window, []rune("\n\n"))
		lastSentence := lastIndexRunes(window, []rune("。"))

		actualEnd := end
		switch {
		case lastParagraph >= 0 && lastParagraph > chunkSize-200:
			actualEnd = start + lastParagraph + 2
		case lastSentence >= 0 && lastSentence > chunkSize-100:
			actualEnd = start + lastSentence + 1
		}

		chunks = append(chunks, string(runes[start:actualEnd]))
		start = actualEnd - overlap
	}

	return chunks
}

// lastIndexRunes returns the rune offset of the last occurrence of sep in s,
// or -1 when absent.
func lastIndexRunes(s, sep []rune) int {
	if len(sep) == 0 || len(sep) > len(s) {
		return -1
	}
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
