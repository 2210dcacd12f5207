package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/BrotherHong/rag-web-backend/src/log"
)

// BatchResult summarizes one batch run. Failures are isolated per document;
// a failed file never stops the rest of the batch.
type BatchResult struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// ProcessBatch runs the pipeline over every document ID with at most
// maxParallel runs in flight. The optional onDone callback fires after each
// document finishes, successful or not.
func (p *Pipeline) ProcessBatch(ctx context.Context, docIDs []int64, maxParallel int, onDone func(done, total int)) BatchResult {
	if maxParallel <= 0 {
		maxParallel = 1
	}

	result := BatchResult{Total: len(docIDs)}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sem  = make(chan struct{}, maxParallel)
		done int
	)

	for _, id := range docIDs {
		wg.Add(1)
		sem <- struct{}{}

		go func(docID int64) {
			defer wg.Done()
			defer func() { <-sem }()

			err := p.ProcessDocument(ctx, docID)

			mu.Lock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("document %d: %v", docID, err))
				log.Error(err, "batch document failed", "document", docID)
			} else {
				result.Success++
			}
			done++
			current := done
			mu.Unlock()

			if onDone != nil {
				onDone(current, result.Total)
			}
		}(id)
	}

	wg.Wait()

	log.Info("batch finished",
		"total", result.Total,
		"success", result.Success,
		"failed", result.Failed)

	return result
}
