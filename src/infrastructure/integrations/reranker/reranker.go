package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client calls a cross-encoder scoring service. The service evaluates each
// (query, text) pair jointly and returns one relevance score per text, the
// same contract exposed by text-embeddings-inference style /rerank endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type rerankRequest struct {
	Model string   `json:"model,omitempty"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewClient creates a reranker client. The caller owns the http.Client and
// must configure its timeout.
func NewClient(baseURL, model string, c *http.Client) *Client {
	return &Client{
		httpClient: c,
		baseURL:    baseURL,
		model:      model,
	}
}

// Rerank scores every text against the query and returns the scores in the
// same order as the input texts.
func (c *Client) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}

	reqBody := rerankRequest{
		Model: c.model,
		Query: query,
		Texts: texts,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/rerank", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank service returned status %s", resp.Status)
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	// The service may return results ordered by score; map back by index.
	scores := make([]float64, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("rerank result index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
	}

	return scores, nil
}
