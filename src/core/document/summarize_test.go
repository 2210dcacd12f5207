package document_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BrotherHong/rag-web-backend/src/core/document"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func isClassificationPrompt(prompt string) bool {
	return strings.Contains(prompt, "哪一種類型")
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "no marker",
			response: "這是摘要內容",
			want:     "這是摘要內容",
		},
		{
			name:     "marker with answer",
			response: "<think>推理過程</think>\n這是摘要內容",
			want:     "這是摘要內容",
		},
		{
			name:     "marker with empty tail",
			response: "<think>只有推理</think>\n  ",
			want:     "<think>只有推理</think>\n  ",
		},
		{
			name:     "multiple markers",
			response: "<think>一</think>中間<think>二</think>最終答案",
			want:     "最終答案",
		},
		{
			name:     "empty input",
			response: "",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := document.StripReasoning(tt.response); got != tt.want {
				t.Errorf("StripReasoning() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     document.DocType
	}{
		{name: "form", response: "這份文件是 Form Mode", want: document.DocTypeForm},
		{name: "info", response: "Info Mode", want: document.DocTypeInfo},
		{name: "unrecognized defaults to info", response: "無法判斷", want: document.DocTypeInfo},
		{name: "reasoning preamble", response: "<think>考慮中</think>\nForm Mode", want: document.DocTypeForm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := document.NewSummarizer(generatorFunc(func(ctx context.Context, prompt string) (string, error) {
				return tt.response, nil
			}))

			got, err := s.Classify(context.Background(), "申請表內容")
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyGeneratorError(t *testing.T) {
	s := document.NewSummarizer(generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("backend down")
	}))

	if _, err := s.Classify(context.Background(), "內容"); err == nil {
		t.Fatal("Classify() should propagate generator errors")
	}
}

func TestSummarizeEmptyText(t *testing.T) {
	s := document.NewSummarizer(generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		t.Fatal("generator should not be called for empty input")
		return "", nil
	}))

	if _, _, err := s.Summarize(context.Background(), "  \n ", "empty.md"); err == nil {
		t.Fatal("Summarize() should reject empty text")
	}
}

func TestSummarizeShortDocument(t *testing.T) {
	text := strings.Repeat("內", 1500) // at the threshold, no chunking

	calls := 0
	s := document.NewSummarizer(generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		if isClassificationPrompt(prompt) {
			return "Info Mode", nil
		}
		calls++
		return "<think>思考</think>\n文件摘要", nil
	}))

	result, parts, err := s.Summarize(context.Background(), text, "short.md")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if len(parts) != 0 {
		t.Errorf("short document produced %d parts, want 0", len(parts))
	}
	if calls != 1 {
		t.Errorf("short document used %d summary calls, want 1", calls)
	}
	if result.Summary != "文件摘要" {
		t.Errorf("Summary = %q, want reasoning stripped", result.Summary)
	}
	if result.Representative != text {
		t.Error("Representative should be the whole short document")
	}
	if result.DocType != document.DocTypeInfo {
		t.Errorf("DocType = %v, want %v", result.DocType, document.DocTypeInfo)
	}
}

func TestSummarizeLongDocument(t *testing.T) {
	text := strings.Repeat("天", 2000)
	wantChunks := document.SplitContent(text, document.DefaultChunkSize, document.DefaultChunkOverlap)

	n := 0
	s := document.NewSummarizer(generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		if isClassificationPrompt(prompt) {
			return "Form Mode", nil
		}
		n++
		return fmt.Sprintf("摘要%d", n), nil
	}))

	result, parts, err := s.Summarize(context.Background(), text, "long.md")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if result.Summary != "摘要1" {
		t.Errorf("Summary = %q, want the first chunk's summary", result.Summary)
	}
	if result.Representative != wantChunks[0] {
		t.Error("Representative should be the first chunk's raw text")
	}

	if len(parts) != len(wantChunks)-1 {
		t.Fatalf("got %d parts, want %d", len(parts), len(wantChunks)-1)
	}
	for i, part := range parts {
		ordinal := i + 2
		if part.Ordinal != ordinal {
			t.Errorf("part %d ordinal = %d, want %d", i, part.Ordinal, ordinal)
		}
		if part.Total != len(wantChunks) {
			t.Errorf("part %d total = %d, want %d", i, part.Total, len(wantChunks))
		}
		if want := fmt.Sprintf("long_part%d.md", ordinal); part.Filename != want {
			t.Errorf("part %d filename = %q, want %q", i, part.Filename, want)
		}
		if want := fmt.Sprintf("摘要%d", ordinal); part.Summary != want {
			t.Errorf("part %d summary = %q, want %q", i, part.Summary, want)
		}
		if part.Content != wantChunks[ordinal-1] {
			t.Errorf("part %d content does not match its chunk", i)
		}
		if part.DocType != document.DocTypeForm {
			t.Errorf("part %d doc type = %v, want %v", i, part.DocType, document.DocTypeForm)
		}
	}

	rec := parts[0].Record()
	if want := fmt.Sprintf("第 2 塊，共 %d 塊", len(wantChunks)); rec.ChunkInfo != want {
		t.Errorf("ChunkInfo = %q, want %q", rec.ChunkInfo, want)
	}
	if rec.SummaryLength != len([]rune(rec.Summary)) {
		t.Errorf("SummaryLength = %d, want rune length %d", rec.SummaryLength, len([]rune(rec.Summary)))
	}
}

func TestSummarizeChunkFailureAbortsAll(t *testing.T) {
	text := strings.Repeat("天", 2000)

	n := 0
	s := document.NewSummarizer(generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		if isClassificationPrompt(prompt) {
			return "Info Mode", nil
		}
		n++
		if n == 2 {
			return "", errors.New("backend timeout")
		}
		return "摘要", nil
	}))

	_, parts, err := s.Summarize(context.Background(), text, "long.md")
	if err == nil {
		t.Fatal("Summarize() should fail when any chunk fails")
	}
	if parts != nil {
		t.Error("failed Summarize() should not return partial results")
	}
}
