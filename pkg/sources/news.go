package sources

import (
	"context"
	"encoding/json"
	"time"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/pkg/intel"
)

// CostPerNewsSearch is the flat per-search fee charged by the news search
// source, distributed proportionally across returned results (spec §4.5,
// §4.7, §9 Open Question 3).
const CostPerNewsSearch = 0.01

// NewsSearch is the news/current-events search source client (shaped after
// the Tavily API contract in spec §4.5/§6).
type NewsSearch struct {
	base
	apiKey string
}

func NewNewsSearch(baseURL, apiKey string, bus Emitter, logger corelog.Logger) *NewsSearch {
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &NewsSearch{
		base:   newBase("tavily", baseURL, 15*time.Second, bus, logger),
		apiKey: apiKey,
	}
}

type newsRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type newsResponse struct {
	Results []newsResultItem `json:"results"`
}

type newsResultItem struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Search queries the news source for up to maxResults hits. Per-result cost
// is the flat search fee divided across whatever was returned, so it sums
// back to CostPerNewsSearch exactly.
func (n *NewsSearch) Search(ctx context.Context, query string, maxResults int, queryID, correlationID string) ([]intel.SearchHit, error) {
	n.emit("source_querying", map[string]interface{}{
		"source_name": "tavily",
		"query_id":    queryID,
		"status":      "started",
		"query":       truncate(query, 100),
		"max_results": maxResults,
	}, correlationID)

	start := time.Now()
	reqBody := newsRequest{
		APIKey: n.apiKey, Query: query, MaxResults: maxResults,
		SearchDepth: "advanced", IncludeAnswer: true, IncludeRawContent: false,
	}

	data, err := n.doJSON(ctx, "/search", reqBody, nil, correlationID)
	latency := time.Since(start)
	if err != nil {
		n.emit("SourceQueried", map[string]interface{}{
			"source": "tavily", "status": "failed",
			"latency_ms": latency.Milliseconds(), "error": truncate(err.Error(), 200),
		}, correlationID)
		return nil, err
	}

	var parsed newsResponse
	if jerr := json.Unmarshal(data, &parsed); jerr != nil {
		n.emit("SourceQueried", map[string]interface{}{
			"source": "tavily", "status": "failed",
			"latency_ms": latency.Milliseconds(), "error": truncate(jerr.Error(), 200),
		}, correlationID)
		return nil, jerr
	}

	hits := make([]intel.SearchHit, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		hits = append(hits, intel.SearchHit{
			URL:            item.URL,
			Title:          item.Title,
			Snippet:        truncate(item.Content, 500),
			RelevanceScore: item.Score,
			SourceName:     "tavily",
		})
	}

	n.emit("SourceQueried", map[string]interface{}{
		"source": "tavily", "status": "completed",
		"latency_ms": latency.Milliseconds(), "result_count": len(hits),
		"cost_usd": CostPerNewsSearch,
	}, correlationID)

	return hits, nil
}

// PerResultCost returns the flat search fee divided evenly across count
// results (at least 1), so callers attributing per-Source cost sum back to
// CostPerNewsSearch.
func PerResultCost(count int) float64 {
	if count < 1 {
		count = 1
	}
	return CostPerNewsSearch / float64(count)
}
