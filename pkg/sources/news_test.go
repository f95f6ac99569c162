package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewsSearch_ParsesResultsAndEmitsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		_ = json.NewEncoder(w).Encode(newsResponse{Results: []newsResultItem{
			{URL: "https://news.com/a", Title: "Headline", Content: "story body", Score: 0.6},
		}})
	}))
	defer srv.Close()

	emitter := &recordingEmitter{}
	client := NewNewsSearch(srv.URL, "test-key", emitter, nil)

	hits, err := client.Search(context.Background(), "query", 5, "q1", "corr1")

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "tavily", hits[0].SourceName)
	assert.Equal(t, "story body", hits[0].Snippet)
	assert.True(t, emitter.has("SourceQueried"))
}

func TestPerResultCost_DividesFlatFeeEvenly(t *testing.T) {
	assert.InDelta(t, CostPerNewsSearch/2, PerResultCost(2), 1e-9)
	assert.InDelta(t, CostPerNewsSearch, PerResultCost(0), 1e-9)
	assert.InDelta(t, CostPerNewsSearch, PerResultCost(1), 1e-9)
}

func TestNewsSearch_APIErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewNewsSearch(srv.URL, "key", nil, nil)
	client.retryConfig.Budgets.APIBudget = 0

	_, err := client.Search(context.Background(), "q", 5, "q1", "")
	require.Error(t, err)
}
