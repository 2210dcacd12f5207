package reranker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrotherHong/rag-web-backend/src/infrastructure/integrations/reranker"
)

func TestRerankMapsScoresByIndex(t *testing.T) {
	var gotBody struct {
		Model string   `json:"model"`
		Query string   `json:"query"`
		Texts []string `json:"texts"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		// Score-sorted response, the order TEI-style services use.
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"index": 2, "score": 0.9},
			{"index": 0, "score": 0.5},
			{"index": 1, "score": 0.1},
		})
	}))
	defer srv.Close()

	client := reranker.NewClient(srv.URL, "bge-reranker-v2-m3", srv.Client())
	scores, err := client.Rerank(context.Background(), "申請流程", []string{"甲", "乙", "丙"})
	require.NoError(t, err)

	assert.Equal(t, []float64{0.5, 0.1, 0.9}, scores)
	assert.Equal(t, "bge-reranker-v2-m3", gotBody.Model)
	assert.Equal(t, "申請流程", gotBody.Query)
	assert.Equal(t, []string{"甲", "乙", "丙"}, gotBody.Texts)
}

func TestRerankEmptyInput(t *testing.T) {
	client := reranker.NewClient("http://unused", "", http.DefaultClient)
	scores, err := client.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRerankServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := reranker.NewClient(srv.URL, "", srv.Client())
	_, err := client.Rerank(context.Background(), "q", []string{"甲"})
	assert.Error(t, err)
}

func TestRerankIndexOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"index": 7, "score": 0.9},
		})
	}))
	defer srv.Close()

	client := reranker.NewClient(srv.URL, "", srv.Client())
	_, err := client.Rerank(context.Background(), "q", []string{"甲"})
	assert.Error(t, err)
}
