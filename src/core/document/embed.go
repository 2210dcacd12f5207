package document

import (
	"context"
	"fmt"
	"math"
)

// EmbeddingBackend turns text into a fixed-length vector.
type EmbeddingBackend interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Embedder turns summary records into embedding records.
type Embedder struct {
	backend EmbeddingBackend
}

// NewEmbedder creates an embedder on top of an embedding backend.
func NewEmbedder(backend EmbeddingBackend) *Embedder {
	return &Embedder{backend: backend}
}

// Embed generates a vector for the given text, failing closed on any
// backend or transport error.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := e.backend.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding backend returned an empty vector")
	}
	return vec, nil
}

// ProcessSummary converts one summary record into an embedding record.
// originalFilename is the user-facing name carried through for citations;
// when empty it falls back to the record's filename.
func (e *Embedder) ProcessSummary(ctx context.Context, rec SummaryRecord, originalFilename string) (EmbeddingRecord, error) {
	if rec.Summary == "" {
		return EmbeddingRecord{}, fmt.Errorf("summary record %s has empty summary text", rec.Filename)
	}

	vec, err := e.Embed(ctx, rec.Summary)
	if err != nil {
		return EmbeddingRecord{}, err
	}

	if originalFilename == "" {
		originalFilename = rec.Filename
	}

	return EmbeddingRecord{
		Filename:         rec.Filename,
		OriginalFilename: originalFilename,
		SummaryLength:    rec.SummaryLength,
		DocType:          rec.DocType,
		Embedding:        vec,
		EmbeddingDim:     len(vec),
	}, nil
}

// CosineSimilarity computes dot(a,b)/(‖a‖·‖b‖). It is total: zero-norm
// input, mismatched lengths, or non-finite intermediate values all yield
// 0.0, because this sits in the per-candidate search loop.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0.0
	}
	return sim
}
