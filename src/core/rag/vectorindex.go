package rag

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BrotherHong/rag-web-backend/src/core/document"
	"github.com/BrotherHong/rag-web-backend/src/log"
)

// indexEntry is one cached (vector, metadata) pair. The citation key is
// resolved exactly once, when the record enters the index.
type indexEntry struct {
	filename      string
	citationKey   string
	summaryLength int
	docType       document.DocType
	embedding     []float64
}

// SimilarityCandidate is one vector-search hit, produced per query.
type SimilarityCandidate struct {
	Filename      string
	CitationKey   string
	SummaryLength int
	DocType       document.DocType
	Similarity    float64
}

// ContentInfo is the raw content and link metadata hydrated from a summary
// record for context assembly and citations.
type ContentInfo struct {
	OriginalContent string
	SourceLink      string
	DownloadLink    string
	DocType         document.DocType
}

// VectorIndex caches every embedding record of one scope in memory and
// performs brute-force cosine search over it. Refresh rebuilds the cache and
// swaps it atomically; concurrent readers always see either the fully-old or
// fully-new cache.
type VectorIndex struct {
	processedDir string

	mu      sync.RWMutex
	entries []indexEntry
}

// NewVectorIndex creates an index over <scope>/processed. Call Load (or
// Refresh) before searching.
func NewVectorIndex(processedDir string) *VectorIndex {
	return &VectorIndex{processedDir: processedDir}
}

func (v *VectorIndex) embeddingsDir() string {
	return filepath.Join(v.processedDir, "embeddings")
}

func (v *VectorIndex) summariesDir() string {
	return filepath.Join(v.processedDir, "summaries")
}

// Load walks the embeddings directory, parses every record and swaps the
// in-memory cache. A missing directory yields an empty index, not an error;
// individual unreadable records are skipped and logged.
func (v *VectorIndex) Load() error {
	var entries []indexEntry

	dir := v.embeddingsDir()
	if _, err := os.Stat(dir); err == nil {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if !strings.HasSuffix(d.Name(), "_embedding.json") {
				return nil
			}

			rec, err := document.ReadEmbeddingRecord(path)
			if err != nil {
				log.Error(err, "skipping unreadable embedding record", "path", path)
				return nil
			}
			if len(rec.Embedding) == 0 {
				return nil
			}

			entries = append(entries, indexEntry{
				filename:      rec.Filename,
				citationKey:   rec.CitationKey(),
				summaryLength: rec.SummaryLength,
				docType:       rec.DocType,
				embedding:     rec.Embedding,
			})
			return nil
		})
		if err != nil {
			return err
		}
	}

	v.mu.Lock()
	v.entries = entries
	v.mu.Unlock()

	log.Info("vector index loaded", "dir", dir, "records", len(entries))
	return nil
}

// Refresh rebuilds the cache from disk.
func (v *VectorIndex) Refresh() error {
	return v.Load()
}

// Size returns the number of cached records.
func (v *VectorIndex) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Dimension returns the vector dimension of the cached records, 0 when
// empty.
func (v *VectorIndex) Dimension() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(v.entries) == 0 {
		return 0
	}
	return len(v.entries[0].embedding)
}

// SearchSimilar returns, in descending similarity order, at most topK
// records whose cosine similarity to query is at least threshold. When
// allowed is non-nil, records whose citation key is outside the set are
// skipped. An empty index or zero hits yields an empty slice, never an
// error.
func (v *VectorIndex) SearchSimilar(query []float64, topK int, threshold float64, allowed map[string]struct{}) []SimilarityCandidate {
	v.mu.RLock()
	entries := v.entries
	v.mu.RUnlock()

	candidates := make([]SimilarityCandidate, 0, len(entries))
	for _, e := range entries {
		if allowed != nil {
			if _, ok := allowed[e.citationKey]; !ok {
				continue
			}
		}

		sim := document.CosineSimilarity(query, e.embedding)
		if sim < threshold {
			continue
		}

		candidates = append(candidates, SimilarityCandidate{
			Filename:      e.filename,
			CitationKey:   e.citationKey,
			SummaryLength: e.summaryLength,
			DocType:       e.docType,
			Similarity:    sim,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if topK >= 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	return candidates
}

// DocumentSummary scans the persisted summary records for the one whose
// filename matches and returns its summary text. Matching is on filename,
// not citation key: parts of one document share the citation key but have
// distinct filenames.
func (v *VectorIndex) DocumentSummary(filename string) (string, bool) {
	var summary string
	found := v.scanSummaries(filename, func(rec document.SummaryRecord) {
		summary = rec.Summary
	})
	return summary, found
}

// DocumentContent hydrates the raw content and link metadata for one
// summary record by filename.
func (v *VectorIndex) DocumentContent(filename string) (ContentInfo, bool) {
	var info ContentInfo
	found := v.scanSummaries(filename, func(rec document.SummaryRecord) {
		info = ContentInfo{
			OriginalContent: rec.OriginalContent,
			SourceLink:      rec.SourceLink,
			DownloadLink:    rec.DownloadLink,
			DocType:         rec.DocType,
		}
	})
	return info, found
}

func (v *VectorIndex) scanSummaries(filename string, visit func(document.SummaryRecord)) bool {
	dir := v.summariesDir()
	if _, err := os.Stat(dir); err != nil {
		return false
	}

	found := false
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || found {
			return err
		}
		if !strings.HasSuffix(d.Name(), "_summary.json") {
			return nil
		}

		rec, err := document.ReadSummaryRecord(path)
		if err != nil {
			log.Error(err, "skipping unreadable summary record", "path", path)
			return nil
		}
		if rec.Filename == filename {
			visit(rec)
			found = true
		}
		return nil
	})
	return found
}
