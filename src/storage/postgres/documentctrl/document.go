package documentctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Document is the persisted record for one uploaded file. Only the pipeline
// that owns a document mutates it; progress, step and status are written
// after every stage so status polling sees live state.
type Document struct {
	ID                 int64          `gorm:"primaryKey" json:"id"`
	ScopeID            int64          `gorm:"not null;index" json:"scope_id"`
	OriginalFilename   string         `gorm:"not null" json:"original_filename"`
	StoredFilename     string         `gorm:"not null" json:"stored_filename"`
	Category           string         `json:"category"`
	FilePath           string         `gorm:"not null" json:"file_path"`
	MarkdownPath       string         `json:"markdown_path"`
	SummaryPath        string         `json:"summary_path"`
	EmbeddingPath      string         `json:"embedding_path"`
	Status             DocumentStatus `gorm:"not null;default:pending" json:"status"`
	ProcessingStep     string         `json:"processing_step"`
	ProcessingProgress int            `json:"processing_progress"`
	ChunkCount         int            `json:"chunk_count"`
	VectorCount        int            `json:"vector_count"`
	ErrorMessage       string         `json:"error_message"`
	ProcessingStarted  *time.Time     `json:"processing_started"`
	ProcessingEnded    *time.Time     `json:"processing_ended"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// DocumentService persists documents in postgres.
type DocumentService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

// NewDocumentService creates the service and its snowflake ID node.
func NewDocumentService(db *gorm.DB) (*DocumentService, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &DocumentService{
		db:        db,
		snowflake: node,
	}, nil
}

// AutoMigrate creates or updates the documents table.
func (s *DocumentService) AutoMigrate() error {
	return s.db.AutoMigrate(&Document{})
}

// Create inserts a new pending document record.
func (s *DocumentService) Create(ctx context.Context, scopeID int64, originalFilename, storedFilename, filePath, category string) (*Document, error) {
	doc := &Document{
		ID:               s.snowflake.Generate().Int64(),
		ScopeID:          scopeID,
		OriginalFilename: originalFilename,
		StoredFilename:   storedFilename,
		Category:         category,
		FilePath:         filePath,
		Status:           StatusPending,
	}

	result := s.db.WithContext(ctx).Create(doc)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create document: %v", result.Error)
	}

	return doc, nil
}

// Get returns one document by ID, or nil when absent.
func (s *DocumentService) Get(ctx context.Context, id int64) (*Document, error) {
	var doc Document
	result := s.db.WithContext(ctx).First(&doc, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %v", result.Error)
	}
	return &doc, nil
}

// List returns documents for one scope, newest first.
func (s *DocumentService) List(ctx context.Context, scopeID int64, limit, offset int) ([]Document, error) {
	var docs []Document
	result := s.db.WithContext(ctx).
		Where("scope_id = ?", scopeID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&docs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list documents: %v", result.Error)
	}
	return docs, nil
}

// ListPending returns the IDs of all pending documents in a scope.
func (s *DocumentService) ListPending(ctx context.Context, scopeID int64) ([]int64, error) {
	var ids []int64
	result := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("scope_id = ? AND status = ?", scopeID, StatusPending).
		Order("created_at ASC").
		Pluck("id", &ids)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list pending documents: %v", result.Error)
	}
	return ids, nil
}

// ListVectorizedFilenames returns the original filenames of completed
// documents in a scope, optionally limited to the given categories. Used to
// build query-time filename allow-lists.
func (s *DocumentService) ListVectorizedFilenames(ctx context.Context, scopeID int64, categories []string) ([]string, error) {
	q := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("scope_id = ? AND status = ?", scopeID, StatusCompleted)
	if len(categories) > 0 {
		q = q.Where("category IN ?", categories)
	}

	var names []string
	if result := q.Pluck("original_filename", &names); result.Error != nil {
		return nil, fmt.Errorf("failed to list vectorized filenames: %v", result.Error)
	}
	return names, nil
}

// UpdateProgress persists the current step and progress of a running
// pipeline.
func (s *DocumentService) UpdateProgress(ctx context.Context, id int64, step string, progress int) error {
	result := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processing_step":     step,
		"processing_progress": progress,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update progress: %v", result.Error)
	}
	return nil
}

// MarkProcessing transitions a document into the processing state.
func (s *DocumentService) MarkProcessing(ctx context.Context, id int64) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":              StatusProcessing,
		"processing_step":     "classify",
		"processing_progress": 0,
		"error_message":       "",
		"processing_started":  &now,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to mark document processing: %v", result.Error)
	}
	return nil
}

// MarkFailed records a stage failure with its captured message.
func (s *DocumentService) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           StatusFailed,
		"error_message":    errMsg,
		"processing_ended": &now,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to mark document failed: %v", result.Error)
	}
	return nil
}

// Completion carries the final artifact locations and counts committed by a
// successful pipeline run.
type Completion struct {
	FilePath      string
	MarkdownPath  string
	SummaryPath   string
	EmbeddingPath string
	ChunkCount    int
	VectorCount   int
}

// MarkCompleted commits a successful run: final paths, counts, 100%
// progress.
func (s *DocumentService) MarkCompleted(ctx context.Context, id int64, c Completion) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":              StatusCompleted,
		"processing_step":     "completed",
		"processing_progress": 100,
		"file_path":           c.FilePath,
		"markdown_path":       c.MarkdownPath,
		"summary_path":        c.SummaryPath,
		"embedding_path":      c.EmbeddingPath,
		"chunk_count":         c.ChunkCount,
		"vector_count":        c.VectorCount,
		"processing_ended":    &now,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to mark document completed: %v", result.Error)
	}
	return nil
}

// Delete removes a document record.
func (s *DocumentService) Delete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&Document{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %v", result.Error)
	}
	return nil
}
