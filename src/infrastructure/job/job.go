package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Topic is the queue topic document jobs travel on.
const Topic = "document_jobs"

const TaskTypeProcessDocument = "process_document"

// ProcessDocumentPayload identifies one document to ingest.
type ProcessDocumentPayload struct {
	DocumentID int64 `json:"document_id"`
	ScopeID    int64 `json:"scope_id"`
}

// JobMessage is the wire envelope for queued work.
type JobMessage struct {
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

// DocumentProcessor runs the ingest pipeline for one document. Lifecycle
// state lives on the document record itself, so the queue carries only the
// document's identity.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, docID int64) error
}

// JobService publishes and consumes document processing jobs.
type JobService struct {
	publisher message.Publisher
	logger    watermill.LoggerAdapter
	processor DocumentProcessor
}

func NewJobService(publisher message.Publisher, logger watermill.LoggerAdapter, processor DocumentProcessor) *JobService {
	return &JobService{
		publisher: publisher,
		logger:    logger,
		processor: processor,
	}
}

// EnqueueProcessDocument queues one document for ingestion.
func (s *JobService) EnqueueProcessDocument(ctx context.Context, documentID, scopeID int64) error {
	payload, err := json.Marshal(ProcessDocumentPayload{
		DocumentID: documentID,
		ScopeID:    scopeID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal process payload: %w", err)
	}

	jobMsg := JobMessage{
		TaskType: TaskTypeProcessDocument,
		Payload:  payload,
	}

	msgPayload, err := json.Marshal(jobMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	msg.SetContext(ctx)
	if err := s.publisher.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish job message: %w", err)
	}

	s.logger.Info("Document job enqueued", watermill.LogFields{
		"document_id": documentID,
		"scope_id":    scopeID,
	})

	return nil
}

// ProcessJobMessage consumes one queued job. The pipeline records success or
// failure on the document itself, so the message is acked either way; a
// returned error means the message could not even be dispatched.
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	switch jobMsg.TaskType {
	case TaskTypeProcessDocument:
		var payload ProcessDocumentPayload
		if err := json.Unmarshal(jobMsg.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal process payload: %w", err)
		}

		if err := s.processor.ProcessDocument(context.Background(), payload.DocumentID); err != nil {
			s.logger.Error("Document processing failed", err, watermill.LogFields{
				"document_id": payload.DocumentID,
				"scope_id":    payload.ScopeID,
			})
		}
		return nil
	default:
		return fmt.Errorf("unknown task type: %s", jobMsg.TaskType)
	}
}
