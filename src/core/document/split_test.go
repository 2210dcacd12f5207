package document_test

import (
	"strings"
	"testing"

	"github.com/BrotherHong/rag-web-backend/src/core/document"
)

func TestSplitContentShortInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "ascii", content: "hello world"},
		{name: "cjk at exact size", content: strings.Repeat("字", 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := document.SplitContent(tt.content, 300, 50)
			if len(chunks) != 1 {
				t.Fatalf("SplitContent() returned %d chunks, want 1", len(chunks))
			}
			if chunks[0] != tt.content {
				t.Errorf("SplitContent() = %q, want input unchanged", chunks[0])
			}
		})
	}
}

func TestSplitContentOverlap(t *testing.T) {
	// 25 runes with no boundary characters: raw window edges apply.
	content := "abcdefghijklmnopqrstuvwxy"
	chunks := document.SplitContent(content, 10, 2)

	want := []string{"abcdefghij", "ijklmnopqr", "qrstuvwxy"}
	if len(chunks) != len(want) {
		t.Fatalf("SplitContent() returned %d chunks, want %d: %q", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplitContentPrefersSentenceBoundary(t *testing.T) {
	// The 。 sits 260 runes in, inside the final 100 runes of a 300-rune
	// window, so the first chunk ends right after it.
	content := strings.Repeat("甲", 260) + "。" + strings.Repeat("乙", 100)
	chunks := document.SplitContent(content, 300, 50)

	if len(chunks) != 2 {
		t.Fatalf("SplitContent() returned %d chunks, want 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "。") {
		t.Errorf("first chunk should end at the sentence boundary, got suffix %q", chunks[0][len(chunks[0])-3:])
	}
	if got := len([]rune(chunks[0])); got != 261 {
		t.Errorf("first chunk length = %d runes, want 261", got)
	}

	// Consecutive chunks share the configured overlap.
	head := []rune(chunks[0])
	tail := []rune(chunks[1])
	if string(head[len(head)-50:]) != string(tail[:50]) {
		t.Error("chunks do not share a 50-rune overlap")
	}
}

func TestSplitContentPrefersParagraphBoundary(t *testing.T) {
	// The blank line sits 150 runes in, inside the final 200 runes of the
	// window, and wins over the raw edge.
	content := strings.Repeat("甲", 150) + "\n\n" + strings.Repeat("乙", 200)
	chunks := document.SplitContent(content, 300, 50)

	if len(chunks) != 2 {
		t.Fatalf("SplitContent() returned %d chunks, want 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Error("first chunk should end at the paragraph boundary")
	}
	if got := len([]rune(chunks[0])); got != 152 {
		t.Errorf("first chunk length = %d runes, want 152", got)
	}
}

func TestSplitContentCoversWholeInput(t *testing.T) {
	content := strings.Repeat("天", 2000)
	chunks := document.SplitContent(content, document.DefaultChunkSize, document.DefaultChunkOverlap)

	if len(chunks) < 2 {
		t.Fatalf("SplitContent() returned %d chunks, want at least 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[len(chunks)-1], "天") {
		t.Error("last chunk should contain the document tail")
	}

	total := 0
	for _, c := range chunks {
		total += len([]rune(c))
	}
	// With overlap, the chunk lengths must sum to at least the input.
	if total < 2000 {
		t.Errorf("chunks cover %d runes, want at least 2000", total)
	}
}
