package http

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/BrotherHong/rag-web-backend/src/core/rag"
	"github.com/BrotherHong/rag-web-backend/src/storage/postgres/documentctrl"
)

// EngineFactory builds the retrieval engine for one scope. It returns an
// error when the model backends are unreachable, which the handler maps to
// 503.
type EngineFactory func(scopeID int64) (*rag.Engine, error)

type RAGHandler struct {
	docs    *documentctrl.DocumentService
	factory EngineFactory

	mu      sync.Mutex
	engines map[int64]*rag.Engine
}

func NewRAGHandler(docs *documentctrl.DocumentService, factory EngineFactory) (*RAGHandler, error) {
	return &RAGHandler{
		docs:    docs,
		factory: factory,
		engines: make(map[int64]*rag.Engine),
	}, nil
}

func (h *RAGHandler) engine(scopeID int64) (*rag.Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if engine, ok := h.engines[scopeID]; ok {
		return engine, nil
	}

	engine, err := h.factory(scopeID)
	if err != nil {
		return nil, err
	}
	h.engines[scopeID] = engine
	return engine, nil
}

// Query handles POST /api/v1/scopes/:scope/query
func (h *RAGHandler) Query(c *gin.Context) {
	scopeID, ok := scopeParam(c)
	if !ok {
		return
	}

	var req struct {
		Question      string   `json:"question" binding:"required"`
		TopK          int      `json:"top_k"`
		Categories    []string `json:"categories"`
		IncludeScores bool     `json:"include_scores"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	engine, err := h.engine(scopeID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Retrieval engine unavailable: " + err.Error()})
		return
	}

	opts := rag.QueryOptions{
		TopK:          req.TopK,
		IncludeScores: req.IncludeScores,
	}

	// Category filtering narrows retrieval to the completed documents in
	// the selected categories via a citation-key allow-list.
	if len(req.Categories) > 0 {
		names, err := h.docs.ListVectorizedFilenames(c.Request.Context(), scopeID, req.Categories)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		allowed := make(map[string]struct{}, len(names))
		for _, name := range names {
			allowed[name] = struct{}{}
		}
		opts.AllowedFilenames = allowed
	}

	answer, err := engine.Query(c.Request.Context(), req.Question, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, answer)
}

// RefreshIndex handles POST /api/v1/scopes/:scope/index/refresh
func (h *RAGHandler) RefreshIndex(c *gin.Context) {
	scopeID, ok := scopeParam(c)
	if !ok {
		return
	}

	engine, err := h.engine(scopeID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Retrieval engine unavailable: " + err.Error()})
		return
	}

	if err := engine.Index().Refresh(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": engine.Index().Size()})
}

// RefreshScope reloads a cached scope index after out-of-band ingestion,
// e.g. when the worker signals completion.
func (h *RAGHandler) RefreshScope(scopeID int64) {
	h.mu.Lock()
	engine, ok := h.engines[scopeID]
	h.mu.Unlock()

	if ok {
		engine.Index().Refresh()
	}
}
