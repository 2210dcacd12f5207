package http

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/BrotherHong/rag-web-backend/src/infrastructure/job"
	"github.com/BrotherHong/rag-web-backend/src/log"
	"github.com/BrotherHong/rag-web-backend/src/storage/minioctrl"
	"github.com/BrotherHong/rag-web-backend/src/storage/postgres/documentctrl"
	"github.com/BrotherHong/rag-web-backend/src/storage/scopestore"
)

// UploadLimits validates incoming files before anything is persisted.
type UploadLimits struct {
	// MaxFileSize in bytes; zero disables the size check.
	MaxFileSize int64
	// AllowedExtensions holds lowercase extensions including the dot.
	AllowedExtensions map[string]struct{}
}

type DocumentHandler struct {
	docs   *documentctrl.DocumentService
	scopes *scopestore.Store
	minio  *minioctrl.MinioService
	jobs   *job.JobService
	limits UploadLimits
}

// NewDocumentHandler wires the upload and processing endpoints. minio may be
// nil when object storage is not configured; citation links are then empty.
func NewDocumentHandler(
	docs *documentctrl.DocumentService,
	scopes *scopestore.Store,
	minio *minioctrl.MinioService,
	jobs *job.JobService,
	limits UploadLimits,
) (*DocumentHandler, error) {
	return &DocumentHandler{
		docs:   docs,
		scopes: scopes,
		minio:  minio,
		jobs:   jobs,
		limits: limits,
	}, nil
}

func scopeParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("scope"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid scope ID"})
		return 0, false
	}
	return id, true
}

// UploadDocument handles POST /api/v1/scopes/:scope/documents. Invalid files
// are rejected before any record or artifact is created.
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	scopeID, ok := scopeParam(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if len(h.limits.AllowedExtensions) > 0 {
		if _, ok := h.limits.AllowedExtensions[ext]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unsupported file type: %s", ext)})
			return
		}
	}
	if h.limits.MaxFileSize > 0 && fileHeader.Size > h.limits.MaxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	storedName := scopestore.UniqueFilename(fileHeader.Filename)
	path, size, err := h.scopes.SaveUpload(scopeID, storedName, src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.minio != nil {
		f, err := fileHeader.Open()
		if err == nil {
			contentType := fileHeader.Header.Get("Content-Type")
			if _, err := h.minio.UploadOriginal(c.Request.Context(), scopeID, storedName, f, size, contentType); err != nil {
				log.Error(err, "failed to mirror upload to object storage", "filename", storedName)
			}
			f.Close()
		}
	}

	doc, err := h.docs.Create(c.Request.Context(), scopeID, fileHeader.Filename, storedName, path, c.PostForm("category"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// ProcessDocument handles POST /api/v1/scopes/:scope/documents/:id/process.
// It queues the ingest job; progress is observed via status polling.
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	scopeID, ok := scopeParam(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID"})
		return
	}

	doc, err := h.docs.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if doc == nil || doc.ScopeID != scopeID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	if doc.Status == documentctrl.StatusProcessing {
		c.JSON(http.StatusConflict, gin.H{"error": "Document is already being processed"})
		return
	}
	if doc.Status == documentctrl.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "Document is already processed"})
		return
	}

	if err := h.jobs.EnqueueProcessDocument(c.Request.Context(), doc.ID, doc.ScopeID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": doc.ID, "status": documentctrl.StatusPending})
}

// GetDocument handles GET /api/v1/scopes/:scope/documents/:id, the status
// polling endpoint.
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	scopeID, ok := scopeParam(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID"})
		return
	}

	doc, err := h.docs.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if doc == nil || doc.ScopeID != scopeID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	c.JSON(http.StatusOK, doc)
}

// ListDocuments handles GET /api/v1/scopes/:scope/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	scopeID, ok := scopeParam(c)
	if !ok {
		return
	}

	offset, limit := getPaginationParams(c)

	docs, err := h.docs.List(c.Request.Context(), scopeID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  docs,
		"offset": offset,
		"limit":  limit,
	})
}

func getPaginationParams(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.Query("offset"))
	limit, _ = strconv.Atoi(c.Query("limit"))

	if limit <= 0 {
		limit = 10 // default limit
	}
	if offset < 0 {
		offset = 0
	}

	return offset, limit
}
