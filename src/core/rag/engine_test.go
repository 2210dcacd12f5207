package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrotherHong/rag-web-backend/src/core/document"
	"github.com/BrotherHong/rag-web-backend/src/core/rag"
)

type fakeEmbedder struct {
	vec []float64
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return f.vec, f.err
}

type fakeGenerator struct {
	answer string
	prompt string
	calls  int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.answer, nil
}

type fakeReranker struct {
	scores map[string]float64
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = f.scores[text]
	}
	return scores, nil
}

// newTestIndex builds an index with one multi-part document (甲.docx) and
// one single-part document (乙.pdf).
func newTestIndex(t *testing.T) *rag.VectorIndex {
	t.Helper()
	dir := t.TempDir()

	writeEmbedding(t, dir, "a.md", "甲.docx", []float64{1, 0})
	writeEmbedding(t, dir, "a_part2.md", "甲.docx", []float64{0.95, 0.05})
	writeEmbedding(t, dir, "b.md", "乙.pdf", []float64{0.9, 0.1})

	writeSummary(t, dir, document.SummaryRecord{
		Filename: "a.md", Summary: "甲摘要", OriginalContent: "甲第一塊",
		SourceLink: "http://minio/documents/1/a", DownloadLink: "http://minio/documents/1/a",
	})
	writeSummary(t, dir, document.SummaryRecord{
		Filename: "a_part2.md", Summary: "甲部分摘要", OriginalContent: "甲第二塊",
		ChunkInfo: "第 2 塊，共 2 塊",
	})
	writeSummary(t, dir, document.SummaryRecord{
		Filename: "b.md", Summary: "乙摘要", OriginalContent: "乙內容",
		SourceLink: "http://minio/documents/1/b", DownloadLink: "http://minio/documents/1/b",
	})

	index := rag.NewVectorIndex(dir)
	require.NoError(t, index.Load())
	return index
}

func TestQueryNoResults(t *testing.T) {
	index := rag.NewVectorIndex(t.TempDir())
	require.NoError(t, index.Load())

	gen := &fakeGenerator{answer: "不該被呼叫"}
	engine := rag.NewEngine(index, &fakeEmbedder{vec: []float64{1, 0}}, gen, &fakeReranker{}, rag.Config{
		SimilarityThreshold: 0.3,
	})

	answer, err := engine.Query(context.Background(), "請問如何申請？", rag.QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, rag.NoResultsAnswer, answer.Answer)
	assert.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, 0, answer.RetrievedDocs)
	assert.Equal(t, 0, gen.calls, "generator must not run without retrieved context")
}

func TestQueryEmbedFailure(t *testing.T) {
	engine := rag.NewEngine(newTestIndex(t), &fakeEmbedder{err: errors.New("backend down")},
		&fakeGenerator{}, &fakeReranker{}, rag.Config{})

	_, err := engine.Query(context.Background(), "問題", rag.QueryOptions{})
	assert.Error(t, err)
}

func TestQueryRerankAndDeduplicate(t *testing.T) {
	gen := &fakeGenerator{answer: "根據文件，流程如下。"}
	// The reranker inverts the similarity order: 乙 wins.
	rr := &fakeReranker{scores: map[string]float64{
		"甲摘要":   0.2,
		"甲部分摘要": 0.5,
		"乙摘要":   0.9,
	}}

	engine := rag.NewEngine(newTestIndex(t), &fakeEmbedder{vec: []float64{1, 0}}, gen, rr, rag.Config{
		SimilarityThreshold: 0.3,
		MaxContextDocs:      3,
	})

	answer, err := engine.Query(context.Background(), "請問如何申請？", rag.QueryOptions{IncludeScores: true})
	require.NoError(t, err)

	assert.Equal(t, "根據文件，流程如下。", answer.Answer)
	assert.Equal(t, 3, answer.RetrievedDocs)
	assert.Equal(t, 3, answer.UsedForAnswer)

	// Two sources after dedup, in rerank order with links carried through.
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "乙.pdf", answer.Sources[0].Filename)
	assert.Equal(t, "http://minio/documents/1/b", answer.Sources[0].SourceLink)
	assert.Equal(t, "甲.docx", answer.Sources[1].Filename)
	require.NotNil(t, answer.Sources[0].Score)
	assert.InDelta(t, 0.9, *answer.Sources[0].Score, 1e-9)

	// Context labels follow dedup order and merge both 甲 chunks under one
	// label.
	assert.Contains(t, gen.prompt, "文檔1（乙.pdf）")
	assert.Contains(t, gen.prompt, "文檔2（甲.docx）")
	assert.NotContains(t, gen.prompt, "文檔3（")
	assert.Contains(t, gen.prompt, "甲第二塊")
	assert.Contains(t, gen.prompt, "甲第一塊")
	assert.Contains(t, gen.prompt, "請問如何申請？")
	part2 := strings.Index(gen.prompt, "甲第二塊")
	part1 := strings.Index(gen.prompt, "甲第一塊")
	assert.Less(t, part2, part1, "grouped contents accumulate in rank order")
}

func TestQueryMaxContextDocs(t *testing.T) {
	gen := &fakeGenerator{answer: "答案"}
	rr := &fakeReranker{scores: map[string]float64{"甲摘要": 0.9, "甲部分摘要": 0.5, "乙摘要": 0.2}}

	engine := rag.NewEngine(newTestIndex(t), &fakeEmbedder{vec: []float64{1, 0}}, gen, rr, rag.Config{
		MaxContextDocs: 1,
	})

	answer, err := engine.Query(context.Background(), "問題", rag.QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, answer.UsedForAnswer)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "甲.docx", answer.Sources[0].Filename)
	assert.Nil(t, answer.Sources[0].Score, "scores only attach when requested")
}

func TestQueryAllowList(t *testing.T) {
	gen := &fakeGenerator{answer: "答案"}
	rr := &fakeReranker{scores: map[string]float64{"乙摘要": 0.9}}

	engine := rag.NewEngine(newTestIndex(t), &fakeEmbedder{vec: []float64{1, 0}}, gen, rr, rag.Config{})

	answer, err := engine.Query(context.Background(), "問題", rag.QueryOptions{
		AllowedFilenames: map[string]struct{}{"乙.pdf": {}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, answer.RetrievedDocs)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "乙.pdf", answer.Sources[0].Filename)
}

func TestQueryDebugFlag(t *testing.T) {
	rr := &fakeReranker{scores: map[string]float64{"甲摘要": 0.9, "甲部分摘要": 0.5, "乙摘要": 0.2}}

	engine := rag.NewEngine(newTestIndex(t), &fakeEmbedder{vec: []float64{1, 0}},
		&fakeGenerator{answer: "答案"}, rr, rag.Config{Debug: true})

	answer, err := engine.Query(context.Background(), "問題", rag.QueryOptions{})
	require.NoError(t, err)

	require.NotNil(t, answer.Debug)
	assert.Contains(t, answer.Debug.Prompt, "問題")
	assert.Equal(t, "答案", answer.Debug.RawResponse)
	assert.Equal(t, "答案", answer.Answer, "debug output never changes the answer")
}
