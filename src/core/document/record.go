package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DocType classifies a document as form-like or informational.
type DocType string

const (
	DocTypeForm DocType = "Form Mode"
	DocTypeInfo DocType = "Info Mode"
)

// SummaryRecord is the persisted result of summarizing one document or one
// part of a long document. Immutable once written.
type SummaryRecord struct {
	Filename        string  `json:"filename"`
	Summary         string  `json:"summary"`
	SummaryLength   int     `json:"summary_length"`
	DocType         DocType `json:"doc_type"`
	OriginalContent string  `json:"original_content"`
	ChunkInfo       string  `json:"chunk_info,omitempty"`
	SourceLink      string  `json:"source_link,omitempty"`
	DownloadLink    string  `json:"download_link,omitempty"`
}

// EmbeddingRecord is the persisted vector for one SummaryRecord. Immutable
// once written.
type EmbeddingRecord struct {
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	SummaryLength    int       `json:"summary_length"`
	DocType          DocType   `json:"doc_type"`
	Embedding        []float64 `json:"embedding"`
	EmbeddingDim     int       `json:"embedding_dim"`
}

// CitationKey resolves the user-facing name for this record. It is resolved
// once when a record enters an index and never re-derived downstream.
func (r EmbeddingRecord) CitationKey() string {
	if r.OriginalFilename != "" {
		return r.OriginalFilename
	}
	return r.Filename
}

// WriteJSON persists a record under path, creating parent directories.
func WriteJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write record %s: %w", path, err)
	}

	return nil
}

// ReadSummaryRecord loads one summary record from disk.
func ReadSummaryRecord(path string) (SummaryRecord, error) {
	var rec SummaryRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, fmt.Errorf("failed to read summary record %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to parse summary record %s: %w", path, err)
	}
	return rec, nil
}

// ReadEmbeddingRecord loads one embedding record from disk.
func ReadEmbeddingRecord(path string) (EmbeddingRecord, error) {
	var rec EmbeddingRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, fmt.Errorf("failed to read embedding record %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to parse embedding record %s: %w", path, err)
	}
	return rec, nil
}
