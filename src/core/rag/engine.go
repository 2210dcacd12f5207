package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BrotherHong/rag-web-backend/src/core/document"
	"github.com/BrotherHong/rag-web-backend/src/log"
)

// NoResultsAnswer is returned for queries with zero hits above threshold.
// This is a normal outcome, not an error.
const NoResultsAnswer = "抱歉，找不到與您問題相關的資訊。"

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Generator produces the final answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reranker scores (query, text) pairs jointly, one score per text.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Config carries the engine's tuning knobs. RetrievalWidth is the explicit
// wide-retrieval width fed into vector search before reranking narrows the
// result down to MaxContextDocs.
type Config struct {
	SimilarityThreshold float64
	RetrievalWidth      int
	MaxContextDocs      int
	Debug               bool
}

// QueryOptions are the per-call parameters.
type QueryOptions struct {
	// TopK overrides the configured retrieval width when positive.
	TopK int
	// AllowedFilenames restricts retrieval to the given citation keys when
	// non-nil.
	AllowedFilenames map[string]struct{}
	// IncludeScores attaches similarity and rerank scores to sources.
	IncludeScores bool
}

// RerankedCandidate is a similarity candidate with its hydrated summary and
// cross-encoder score.
type RerankedCandidate struct {
	SimilarityCandidate
	Summary string
	Score   float64
}

// Source is one deduplicated citation in an answer.
type Source struct {
	Filename     string   `json:"filename"`
	SourceLink   string   `json:"source_link"`
	DownloadLink string   `json:"download_link"`
	Similarity   *float64 `json:"similarity,omitempty"`
	Score        *float64 `json:"score,omitempty"`
}

// DebugInfo exposes the exact prompt and raw model output when the debug
// flag is set. Diagnostic only; results are identical with or without it.
type DebugInfo struct {
	Prompt      string `json:"prompt"`
	RawResponse string `json:"raw_response"`
}

// Answer is the result of one query.
type Answer struct {
	Question      string     `json:"question"`
	Answer        string     `json:"answer"`
	Sources       []Source   `json:"sources"`
	RetrievedDocs int        `json:"retrieved_docs"`
	UsedForAnswer int        `json:"used_for_answer"`
	Debug         *DebugInfo `json:"debug,omitempty"`
}

// Engine orchestrates the single-pass query pipeline: vector search →
// rerank → dedup → context assembly → answer generation.
type Engine struct {
	index     *VectorIndex
	embedder  Embedder
	generator Generator
	reranker  Reranker
	cfg       Config
}

// NewEngine wires an engine from its collaborators.
func NewEngine(index *VectorIndex, embedder Embedder, generator Generator, reranker Reranker, cfg Config) *Engine {
	if cfg.RetrievalWidth <= 0 {
		cfg.RetrievalWidth = 250
	}
	if cfg.MaxContextDocs <= 0 {
		cfg.MaxContextDocs = 3
	}
	return &Engine{
		index:     index,
		embedder:  embedder,
		generator: generator,
		reranker:  reranker,
		cfg:       cfg,
	}
}

// Index exposes the engine's vector index, mainly so ingest completion can
// refresh it.
func (e *Engine) Index() *VectorIndex {
	return e.index
}

// Query answers a natural-language question from the scope's documents.
func (e *Engine) Query(ctx context.Context, question string, opts QueryOptions) (*Answer, error) {
	queryVec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	width := e.cfg.RetrievalWidth
	if opts.TopK > 0 {
		width = opts.TopK
	}

	candidates := e.index.SearchSimilar(queryVec, width, e.cfg.SimilarityThreshold, opts.AllowedFilenames)
	if len(candidates) == 0 {
		return &Answer{
			Question: question,
			Answer:   NoResultsAnswer,
			Sources:  []Source{},
		}, nil
	}

	reranked, err := e.rerank(ctx, question, candidates)
	if err != nil {
		return nil, err
	}

	top := reranked
	if len(top) > e.cfg.MaxContextDocs {
		top = top[:e.cfg.MaxContextDocs]
	}

	groups := e.deduplicate(top)
	contextText := e.buildContext(groups)

	prompt := document.AnswerPrompt(contextText, question)
	response, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := &Answer{
		Question:      question,
		Answer:        response,
		Sources:       e.buildSources(groups, opts.IncludeScores),
		RetrievedDocs: len(candidates),
		UsedForAnswer: len(top),
	}

	if e.cfg.Debug {
		answer.Debug = &DebugInfo{Prompt: prompt, RawResponse: response}
	}

	log.Info("query answered",
		"retrieved", answer.RetrievedDocs,
		"used", answer.UsedForAnswer,
		"sources", len(answer.Sources))

	return answer, nil
}

// rerank hydrates each candidate's document-level summary and orders the
// candidates by cross-encoder score, descending. The sort is stable so ties
// keep their similarity order.
func (e *Engine) rerank(ctx context.Context, question string, candidates []SimilarityCandidate) ([]RerankedCandidate, error) {
	reranked := make([]RerankedCandidate, len(candidates))
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		summary, _ := e.index.DocumentSummary(c.Filename)
		reranked[i] = RerankedCandidate{SimilarityCandidate: c, Summary: summary}
		texts[i] = summary
	}

	scores, err := e.reranker.Rerank(ctx, question, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to rerank candidates: %w", err)
	}
	if len(scores) != len(reranked) {
		return nil, fmt.Errorf("reranker returned %d scores for %d candidates", len(scores), len(reranked))
	}

	for i := range reranked {
		reranked[i].Score = scores[i]
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	return reranked, nil
}

// sourceGroup merges every retrieved chunk sharing one citation key. The
// representative is the best-ranked chunk; contents accumulate across all
// grouped chunks in rank order.
type sourceGroup struct {
	key            string
	representative RerankedCandidate
	contents       []string
	sourceLink     string
	downloadLink   string
}

// deduplicate groups the top candidates by citation key in first-seen
// order, hydrating each chunk's raw content for context assembly.
func (e *Engine) deduplicate(top []RerankedCandidate) []*sourceGroup {
	var groups []*sourceGroup
	byKey := make(map[string]*sourceGroup)

	for _, c := range top {
		g, ok := byKey[c.CitationKey]
		if !ok {
			g = &sourceGroup{key: c.CitationKey, representative: c}
			byKey[c.CitationKey] = g
			groups = append(groups, g)
		}

		if info, found := e.index.DocumentContent(c.Filename); found {
			if info.OriginalContent != "" {
				g.contents = append(g.contents, info.OriginalContent)
			}
			if g.sourceLink == "" {
				g.sourceLink = info.SourceLink
			}
			if g.downloadLink == "" {
				g.downloadLink = info.DownloadLink
			}
		}
	}

	return groups
}

// buildContext emits one labeled block per deduplicated group, falling back
// to the representative summary when no raw content resolved.
func (e *Engine) buildContext(groups []*sourceGroup) string {
	parts := make([]string, 0, len(groups))
	for i, g := range groups {
		body := strings.Join(g.contents, "\n")
		if body == "" {
			body = g.representative.Summary
		}
		parts = append(parts, fmt.Sprintf("文檔%d（%s）：\n%s\n", i+1, g.key, body))
	}
	return strings.Join(parts, "\n")
}

func (e *Engine) buildSources(groups []*sourceGroup, includeScores bool) []Source {
	sources := make([]Source, 0, len(groups))
	for _, g := range groups {
		src := Source{
			Filename:     g.key,
			SourceLink:   g.sourceLink,
			DownloadLink: g.downloadLink,
		}
		if includeScores {
			similarity := g.representative.Similarity
			score := g.representative.Score
			src.Similarity = &similarity
			src.Score = &score
		}
		sources = append(sources, src)
	}
	return sources
}
