package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BrotherHong/rag-web-backend/src/core/document"
	"github.com/BrotherHong/rag-web-backend/src/log"
	"github.com/BrotherHong/rag-web-backend/src/storage/postgres/documentctrl"
	"github.com/BrotherHong/rag-web-backend/src/storage/scopestore"
)

// Stage names, also persisted as the document's processing_step.
const (
	StageValidate  = "classify"
	StageConvert   = "convert"
	StageSummarize = "summarize"
	StageEmbed     = "embed"
)

// StageError marks which pipeline stage failed. The message is captured on
// the document record; the stage is never retried automatically.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Store is the document record collaborator the pipeline persists progress
// through after every sub-step.
type Store interface {
	Get(ctx context.Context, id int64) (*documentctrl.Document, error)
	MarkProcessing(ctx context.Context, id int64) error
	UpdateProgress(ctx context.Context, id int64, step string, progress int) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	MarkCompleted(ctx context.Context, id int64, c documentctrl.Completion) error
}

// Converter is the conversion stage.
type Converter interface {
	Convert(ctx context.Context, sourcePath, targetPath string) error
}

// Summarizer is the classify/summarize stage.
type Summarizer interface {
	Summarize(ctx context.Context, text, filename string) (document.SummaryResult, []document.PartSummary, error)
}

// Embedder is the embedding stage.
type Embedder interface {
	ProcessSummary(ctx context.Context, rec document.SummaryRecord, originalFilename string) (document.EmbeddingRecord, error)
}

// Deps wires a pipeline. Variants (live stages vs. test doubles) are chosen
// here at construction; there is no global registry.
type Deps struct {
	Store      Store
	Scopes     *scopestore.Store
	Converter  Converter
	Summarizer Summarizer
	Embedder   Embedder

	// Links resolves the source and download links recorded on summary
	// records, when object storage is configured.
	Links func(doc *documentctrl.Document) (sourceLink, downloadLink string)

	// OnCompleted runs after a successful commit, e.g. to refresh the
	// scope's vector index.
	OnCompleted func(scopeID int64)

	// RetainWorkspace keeps the scratch workspace of the most recent run
	// for inspection; it is removed at the start of the next run. Default
	// is immediate cleanup on both success and failure.
	RetainWorkspace bool
}

// Pipeline drives one file through convert → summarize → embed with staged
// progress persistence and an all-or-nothing commit into the scope store.
type Pipeline struct {
	deps Deps

	mu            sync.Mutex
	lastWorkspace string
}

// New creates a pipeline from its collaborators.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

// ProcessDocument runs the full pipeline for one document ID. The document
// ends COMPLETED or FAILED; the original unprocessed file survives unless
// the run completed.
func (p *Pipeline) ProcessDocument(ctx context.Context, docID int64) error {
	doc, err := p.deps.Store.Get(ctx, docID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document %d not found", docID)
	}

	if err := p.deps.Store.MarkProcessing(ctx, docID); err != nil {
		return err
	}

	workspace, err := p.newWorkspace()
	if err != nil {
		p.fail(ctx, docID, err)
		return err
	}

	err = p.run(ctx, doc, workspace)
	if err != nil {
		p.fail(ctx, docID, err)
	}
	p.finishWorkspace(workspace)
	return err
}

// newWorkspace allocates a private scratch directory, first discarding a
// workspace retained by the previous run.
func (p *Pipeline) newWorkspace() (string, error) {
	p.mu.Lock()
	last := p.lastWorkspace
	p.lastWorkspace = ""
	p.mu.Unlock()

	if last != "" {
		if err := os.RemoveAll(last); err != nil {
			log.Error(err, "failed to remove retained workspace", "dir", last)
		}
	}

	workspace, err := os.MkdirTemp("", "rag_process_")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch workspace: %w", err)
	}
	return workspace, nil
}

func (p *Pipeline) discardWorkspace(workspace string) {
	if err := os.RemoveAll(workspace); err != nil {
		log.Error(err, "failed to remove scratch workspace", "dir", workspace)
	}
}

func (p *Pipeline) finishWorkspace(workspace string) {
	if !p.deps.RetainWorkspace {
		p.discardWorkspace(workspace)
		return
	}
	p.mu.Lock()
	p.lastWorkspace = workspace
	p.mu.Unlock()
	log.Info("scratch workspace retained for inspection", "dir", workspace)
}

func (p *Pipeline) fail(ctx context.Context, docID int64, cause error) {
	if err := p.deps.Store.MarkFailed(ctx, docID, cause.Error()); err != nil {
		log.Error(err, "failed to record pipeline failure", "document", docID)
	}
}

func (p *Pipeline) progress(ctx context.Context, docID int64, step string, pct int) error {
	return p.deps.Store.UpdateProgress(ctx, docID, step, pct)
}

// run executes the four stages inside the workspace. No permanent artifact
// is written until every stage has succeeded.
func (p *Pipeline) run(ctx context.Context, doc *documentctrl.Document, workspace string) error {
	stem := strings.TrimSuffix(doc.StoredFilename, filepath.Ext(doc.StoredFilename))

	// Stage 1: validate and stage the source file (0 → 25).
	if err := p.progress(ctx, doc.ID, StageValidate, 10); err != nil {
		return err
	}

	if _, err := os.Stat(doc.FilePath); err != nil {
		return &StageError{Stage: StageValidate, Err: fmt.Errorf("source file missing: %w", err)}
	}

	dataFile := filepath.Join(workspace, "data", doc.StoredFilename)
	if err := copyFile(doc.FilePath, dataFile); err != nil {
		return &StageError{Stage: StageValidate, Err: err}
	}

	if err := p.progress(ctx, doc.ID, StageValidate, 25); err != nil {
		return err
	}

	// Stage 2: convert to markdown (25 → 50).
	if err := p.progress(ctx, doc.ID, StageConvert, 30); err != nil {
		return err
	}

	mdFile := filepath.Join(workspace, "output_md", stem+".md")
	if err := p.deps.Converter.Convert(ctx, dataFile, mdFile); err != nil {
		return &StageError{Stage: StageConvert, Err: err}
	}

	if err := p.progress(ctx, doc.ID, StageConvert, 50); err != nil {
		return err
	}

	// Stage 3: classify and summarize, chunking long documents (50 → 75).
	if err := p.progress(ctx, doc.ID, StageSummarize, 55); err != nil {
		return err
	}

	text, err := os.ReadFile(mdFile)
	if err != nil {
		return &StageError{Stage: StageSummarize, Err: err}
	}

	result, parts, err := p.deps.Summarizer.Summarize(ctx, string(text), stem+".md")
	if err != nil {
		return &StageError{Stage: StageSummarize, Err: err}
	}

	var sourceLink, downloadLink string
	if p.deps.Links != nil {
		sourceLink, downloadLink = p.deps.Links(doc)
	}

	mainSummary := document.SummaryRecord{
		Filename:        stem + ".md",
		Summary:         result.Summary,
		SummaryLength:   len([]rune(result.Summary)),
		DocType:         result.DocType,
		OriginalContent: result.Representative,
		SourceLink:      sourceLink,
		DownloadLink:    downloadLink,
	}

	summaryFiles := []string{filepath.Join(workspace, "summaries", stem+"_summary.json")}
	if err := document.WriteJSON(summaryFiles[0], mainSummary); err != nil {
		return &StageError{Stage: StageSummarize, Err: err}
	}

	partRecords := make([]document.SummaryRecord, 0, len(parts))
	for _, part := range parts {
		rec := part.Record()
		rec.SourceLink = sourceLink
		rec.DownloadLink = downloadLink
		path := filepath.Join(workspace, "summaries", fmt.Sprintf("%s_part%d_summary.json", stem, part.Ordinal))
		if err := document.WriteJSON(path, rec); err != nil {
			return &StageError{Stage: StageSummarize, Err: err}
		}
		summaryFiles = append(summaryFiles, path)
		partRecords = append(partRecords, rec)
	}

	if err := p.progress(ctx, doc.ID, StageSummarize, 75); err != nil {
		return err
	}

	// Stage 4: embed the primary summary and every part, in order (75 → 100).
	if err := p.progress(ctx, doc.ID, StageEmbed, 80); err != nil {
		return err
	}

	embeddingFiles := []string{filepath.Join(workspace, "embeddings", stem+"_embedding.json")}
	mainEmbedding, err := p.deps.Embedder.ProcessSummary(ctx, mainSummary, doc.OriginalFilename)
	if err != nil {
		return &StageError{Stage: StageEmbed, Err: err}
	}
	if err := document.WriteJSON(embeddingFiles[0], mainEmbedding); err != nil {
		return &StageError{Stage: StageEmbed, Err: err}
	}

	for i, rec := range partRecords {
		embedding, err := p.deps.Embedder.ProcessSummary(ctx, rec, doc.OriginalFilename)
		if err != nil {
			return &StageError{Stage: StageEmbed, Err: err}
		}
		path := filepath.Join(workspace, "embeddings", fmt.Sprintf("%s_part%d_embedding.json", stem, parts[i].Ordinal))
		if err := document.WriteJSON(path, embedding); err != nil {
			return &StageError{Stage: StageEmbed, Err: err}
		}
		embeddingFiles = append(embeddingFiles, path)
	}

	if err := p.progress(ctx, doc.ID, StageEmbed, 90); err != nil {
		return err
	}

	// Every stage succeeded: promote artifacts into the permanent scope
	// store, commit the record, then drop the unprocessed original.
	completion, err := p.commit(doc, dataFile, mdFile, summaryFiles, embeddingFiles)
	if err != nil {
		return err
	}

	if err := p.deps.Store.MarkCompleted(ctx, doc.ID, *completion); err != nil {
		return err
	}

	p.removeOriginal(doc.FilePath)

	if p.deps.OnCompleted != nil {
		p.deps.OnCompleted(doc.ScopeID)
	}

	log.Info("document processed",
		"document", doc.ID,
		"filename", doc.OriginalFilename,
		"chunks", completion.ChunkCount,
		"vectors", completion.VectorCount)

	return nil
}

func (p *Pipeline) commit(doc *documentctrl.Document, dataFile, mdFile string, summaryFiles, embeddingFiles []string) (*documentctrl.Completion, error) {
	finalData, err := p.deps.Scopes.Promote(doc.ScopeID, scopestore.KindData, dataFile)
	if err != nil {
		return nil, fmt.Errorf("failed to commit data file: %w", err)
	}

	finalMD, err := p.deps.Scopes.Promote(doc.ScopeID, scopestore.KindMarkdown, mdFile)
	if err != nil {
		return nil, fmt.Errorf("failed to commit markdown: %w", err)
	}

	var finalSummary string
	for i, path := range summaryFiles {
		dst, err := p.deps.Scopes.Promote(doc.ScopeID, scopestore.KindSummaries, path)
		if err != nil {
			return nil, fmt.Errorf("failed to commit summary record: %w", err)
		}
		if i == 0 {
			finalSummary = dst
		}
	}

	var finalEmbedding string
	for i, path := range embeddingFiles {
		dst, err := p.deps.Scopes.Promote(doc.ScopeID, scopestore.KindEmbeddings, path)
		if err != nil {
			return nil, fmt.Errorf("failed to commit embedding record: %w", err)
		}
		if i == 0 {
			finalEmbedding = dst
		}
	}

	return &documentctrl.Completion{
		FilePath:      finalData,
		MarkdownPath:  finalMD,
		SummaryPath:   finalSummary,
		EmbeddingPath: finalEmbedding,
		ChunkCount:    len(summaryFiles),
		VectorCount:   len(embeddingFiles),
	}, nil
}

// removeOriginal deletes the unprocessed source file after a successful
// commit. Only paths inside an unprocessed directory are touched.
func (p *Pipeline) removeOriginal(path string) {
	if !strings.Contains(path, string(filepath.Separator)+"unprocessed"+string(filepath.Separator)) {
		return
	}
	if err := os.Remove(path); err != nil {
		log.Error(err, "failed to remove unprocessed original", "path", path)
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
