package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BrotherHong/rag-web-backend/src/log"
)

const classifyWindow = 2000

// Generator produces text from a prompt through a language-generation
// backend.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer classifies document text and produces summaries, chunking
// over-length documents.
type Summarizer struct {
	generator    Generator
	chunkSize    int
	chunkOverlap int
}

// SummaryResult is the document-level outcome of Summarize.
type SummaryResult struct {
	Summary        string
	DocType        DocType
	Representative string // raw text of chunk 1 (or the whole short document)
}

// PartSummary is one ordinal part of a chunked document, parts 2..N. Parts
// are returned as an explicit ordered list; nothing downstream reconstructs
// them from filename patterns.
type PartSummary struct {
	Ordinal  int
	Total    int
	Filename string
	Summary  string
	Content  string
	DocType  DocType
}

// Record converts a part into its persistable summary record.
func (p PartSummary) Record() SummaryRecord {
	return SummaryRecord{
		Filename:        p.Filename,
		Summary:         p.Summary,
		SummaryLength:   len([]rune(p.Summary)),
		DocType:         p.DocType,
		OriginalContent: p.Content,
		ChunkInfo:       fmt.Sprintf("第 %d 塊，共 %d 塊", p.Ordinal, p.Total),
	}
}

// NewSummarizer creates a summarizer on top of a generation backend.
func NewSummarizer(generator Generator) *Summarizer {
	return &Summarizer{
		generator:    generator,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
}

// StripReasoning removes a reasoning preamble from a model response: the
// substring after the last closing think marker when present and non-empty,
// else the input unchanged. Total by construction.
func StripReasoning(response string) string {
	const marker = "</think>"
	idx := strings.LastIndex(response, marker)
	if idx == -1 {
		return response
	}
	stripped := strings.TrimSpace(response[idx+len(marker):])
	if stripped == "" {
		return response
	}
	return stripped
}

// Classify sends the head of the text through the classification prompt and
// maps the response onto a DocType, defaulting to informational.
func (s *Summarizer) Classify(ctx context.Context, text string) (DocType, error) {
	head := []rune(text)
	if len(head) > classifyWindow {
		head = head[:classifyWindow]
	}

	response, err := s.generator.Generate(ctx, classificationPrompt(string(head)))
	if err != nil {
		return "", fmt.Errorf("failed to classify document: %w", err)
	}

	clean := StripReasoning(strings.TrimSpace(response))
	switch {
	case strings.Contains(clean, string(DocTypeForm)):
		return DocTypeForm, nil
	case strings.Contains(clean, string(DocTypeInfo)):
		return DocTypeInfo, nil
	default:
		log.Info("unrecognized classification response, defaulting to Info Mode", "response", clean)
		return DocTypeInfo, nil
	}
}

// Summarize produces the document-level summary and, for over-length text,
// an ordered list of part summaries for chunks 2..N. Any generation failure
// aborts the whole call; no partial results are returned.
func (s *Summarizer) Summarize(ctx context.Context, text, filename string) (SummaryResult, []PartSummary, error) {
	if strings.TrimSpace(text) == "" {
		return SummaryResult{}, nil, fmt.Errorf("document %s has no text content", filename)
	}

	docType, err := s.Classify(ctx, text)
	if err != nil {
		return SummaryResult{}, nil, err
	}

	if len([]rune(text)) <= ChunkThreshold {
		response, err := s.generator.Generate(ctx, summaryPrompt(docType, filename, text))
		if err != nil {
			return SummaryResult{}, nil, fmt.Errorf("failed to summarize %s: %w", filename, err)
		}
		return SummaryResult{
			Summary:        StripReasoning(response),
			DocType:        docType,
			Representative: text,
		}, nil, nil
	}

	chunks := SplitContent(text, s.chunkSize, s.chunkOverlap)
	log.Info("document exceeds chunk threshold, splitting",
		"filename", filename, "chunks", len(chunks))

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		response, err := s.generator.Generate(ctx, summaryPrompt(docType, filename, chunk))
		if err != nil {
			return SummaryResult{}, nil, fmt.Errorf("failed to summarize chunk %d/%d of %s: %w",
				i+1, len(chunks), filename, err)
		}
		summaries = append(summaries, StripReasoning(response))
	}

	parts := make([]PartSummary, 0, len(chunks)-1)
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	for i := 2; i <= len(chunks); i++ {
		parts = append(parts, PartSummary{
			Ordinal:  i,
			Total:    len(chunks),
			Filename: fmt.Sprintf("%s_part%d.md", stem, i),
			Summary:  summaries[i-1],
			Content:  chunks[i-1],
			DocType:  docType,
		})
	}

	return SummaryResult{
		Summary:        summaries[0],
		DocType:        docType,
		Representative: chunks[0],
	}, parts, nil
}
