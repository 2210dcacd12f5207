package document_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/BrotherHong/rag-web-backend/src/core/document"
)

type embedFunc func(ctx context.Context, text string) ([]float64, error)

func (f embedFunc) Embed(ctx context.Context, text string) ([]float64, error) {
	return f(ctx, text)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{name: "identical", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1.0},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1.0},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0.0},
		{name: "scaled", a: []float64{1, 1}, b: []float64{5, 5}, want: 1.0},
		{name: "empty a", a: nil, b: []float64{1}, want: 0.0},
		{name: "empty b", a: []float64{1}, b: nil, want: 0.0},
		{name: "length mismatch", a: []float64{1, 2}, b: []float64{1, 2, 3}, want: 0.0},
		{name: "zero norm", a: []float64{0, 0}, b: []float64{1, 2}, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := document.CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmbedFailsClosed(t *testing.T) {
	e := document.NewEmbedder(embedFunc(func(ctx context.Context, text string) ([]float64, error) {
		return nil, errors.New("connection refused")
	}))
	if _, err := e.Embed(context.Background(), "問題"); err == nil {
		t.Fatal("Embed() should propagate backend errors")
	}

	e = document.NewEmbedder(embedFunc(func(ctx context.Context, text string) ([]float64, error) {
		return []float64{}, nil
	}))
	if _, err := e.Embed(context.Background(), "問題"); err == nil {
		t.Fatal("Embed() should reject empty vectors")
	}
}

func TestProcessSummary(t *testing.T) {
	e := document.NewEmbedder(embedFunc(func(ctx context.Context, text string) ([]float64, error) {
		return []float64{0.1, 0.2, 0.3}, nil
	}))

	rec := document.SummaryRecord{
		Filename:      "20240101_abc_報告_part2.md",
		Summary:       "部分摘要",
		SummaryLength: 4,
		DocType:       document.DocTypeInfo,
	}

	got, err := e.ProcessSummary(context.Background(), rec, "報告.docx")
	if err != nil {
		t.Fatalf("ProcessSummary() error = %v", err)
	}

	if got.Filename != rec.Filename {
		t.Errorf("Filename = %q, want %q", got.Filename, rec.Filename)
	}
	if got.OriginalFilename != "報告.docx" {
		t.Errorf("OriginalFilename = %q, want %q", got.OriginalFilename, "報告.docx")
	}
	if got.CitationKey() != "報告.docx" {
		t.Errorf("CitationKey() = %q, want the original filename", got.CitationKey())
	}
	if got.EmbeddingDim != 3 || len(got.Embedding) != 3 {
		t.Errorf("EmbeddingDim = %d with %d values, want 3", got.EmbeddingDim, len(got.Embedding))
	}
}

func TestProcessSummaryFallbackFilename(t *testing.T) {
	e := document.NewEmbedder(embedFunc(func(ctx context.Context, text string) ([]float64, error) {
		return []float64{1}, nil
	}))

	rec := document.SummaryRecord{Filename: "doc.md", Summary: "摘要"}
	got, err := e.ProcessSummary(context.Background(), rec, "")
	if err != nil {
		t.Fatalf("ProcessSummary() error = %v", err)
	}
	if got.CitationKey() != "doc.md" {
		t.Errorf("CitationKey() = %q, want fallback to record filename", got.CitationKey())
	}
}

func TestProcessSummaryEmptySummary(t *testing.T) {
	e := document.NewEmbedder(embedFunc(func(ctx context.Context, text string) ([]float64, error) {
		t.Fatal("backend should not be called for an empty summary")
		return nil, nil
	}))

	if _, err := e.ProcessSummary(context.Background(), document.SummaryRecord{Filename: "doc.md"}, ""); err == nil {
		t.Fatal("ProcessSummary() should reject records with empty summaries")
	}
}
