package sources

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/pkg/intel"
)

// CostPerNeuralResult is the per-result cost charged by the neural search
// source (spec §4.5).
const CostPerNeuralResult = 0.0005

// NeuralSearch is the neural/semantic web search source client (shaped
// after the Exa API contract in spec §4.5/§6).
type NeuralSearch struct {
	base
	apiKey string
}

// NewNeuralSearch constructs a neural search client. baseURL defaults to
// the documented API root when empty.
func NewNeuralSearch(baseURL, apiKey string, bus Emitter, logger corelog.Logger) *NeuralSearch {
	if baseURL == "" {
		baseURL = "https://api.exa.ai"
	}
	return &NeuralSearch{
		base:   newBase("exa", baseURL, 15*time.Second, bus, logger),
		apiKey: apiKey,
	}
}

type neuralRequest struct {
	Query         string            `json:"query"`
	NumResults    int               `json:"numResults"`
	UseAutoprompt bool              `json:"useAutoprompt"`
	Type          string            `json:"type"`
	Contents      neuralContentsReq `json:"contents"`
}

type neuralContentsReq struct {
	Text       neuralTextReq `json:"text"`
	Highlights bool          `json:"highlights"`
}

type neuralTextReq struct {
	MaxCharacters int `json:"maxCharacters"`
}

type neuralResponse struct {
	Results []neuralResultItem `json:"results"`
}

type neuralResultItem struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	Highlights []string `json:"highlights"`
	Score      float64  `json:"score"`
}

// Search queries the neural source for numResults hits.
func (n *NeuralSearch) Search(ctx context.Context, query string, numResults int, queryID, correlationID string) ([]intel.SearchHit, error) {
	n.emit("source_querying", map[string]interface{}{
		"source_name": "exa",
		"query_id":    queryID,
		"status":      "started",
		"query":       truncate(query, 100),
		"num_results": numResults,
	}, correlationID)

	start := time.Now()
	headers := map[string]string{"x-api-key": n.apiKey}
	reqBody := neuralRequest{
		Query: query, NumResults: numResults, UseAutoprompt: true, Type: "neural",
		Contents: neuralContentsReq{
			Text:       neuralTextReq{MaxCharacters: 1000},
			Highlights: true,
		},
	}

	data, err := n.doJSON(ctx, "/search", reqBody, headers, correlationID)
	latency := time.Since(start)
	if err != nil {
		n.emit("SourceQueried", map[string]interface{}{
			"source": "exa", "status": "failed",
			"latency_ms": latency.Milliseconds(), "error": truncate(err.Error(), 200),
		}, correlationID)
		return nil, err
	}

	var parsed neuralResponse
	if jerr := json.Unmarshal(data, &parsed); jerr != nil {
		n.emit("SourceQueried", map[string]interface{}{
			"source": "exa", "status": "failed",
			"latency_ms": latency.Milliseconds(), "error": truncate(jerr.Error(), 200),
		}, correlationID)
		return nil, jerr
	}

	hits := make([]intel.SearchHit, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		hits = append(hits, intel.SearchHit{
			URL:            item.URL,
			Title:          item.Title,
			Snippet:        neuralSnippet(item),
			RelevanceScore: item.Score,
			SourceName:     "exa",
		})
	}

	n.emit("SourceQueried", map[string]interface{}{
		"source": "exa", "status": "completed",
		"latency_ms": latency.Milliseconds(), "result_count": len(hits),
		"cost_usd": float64(len(hits)) * CostPerNeuralResult,
	}, correlationID)

	return hits, nil
}

func neuralSnippet(item neuralResultItem) string {
	text := item.Text
	if text == "" && len(item.Highlights) > 0 {
		text = strings.Join(item.Highlights, " ")
	}
	if text == "" {
		text = item.Title
	}
	return truncate(text, 500)
}
