// Package intel holds the core data model (Query, Result, Source, ...) and
// the depth-dispatch orchestrator that fans out to source clients, merges
// their results, tracks cost, and drives the cache + event bus.
package intel

import (
	"strings"

	"github.com/itsneelabh/intelcore/internal/ids"
)

// Depth is the intelligence-gathering tier requested for a Query.
type Depth string

const (
	Shallow  Depth = "SHALLOW"
	Standard Depth = "STANDARD"
	Deep     Depth = "DEEP"
)

// Query is the immutable request entering the orchestrator.
type Query struct {
	QueryID         string
	Text            string
	Depth           Depth
	MaxSources      int
	CacheTTLSeconds int
	CorrelationID   string
	Timestamp       ids.Timestamp
}

// NewQuery constructs a Query from bare text, filling in defaults and
// generated identifiers exactly as spec §3 prescribes.
func NewQuery(text string, depth Depth) Query {
	if depth == "" {
		depth = Standard
	}
	return Query{
		QueryID:       ids.New(),
		Text:          text,
		Depth:         depth,
		MaxSources:    10,
		CorrelationID: ids.Correlation(),
		Timestamp:     ids.Now(),
	}
}

// SearchHit is a per-source intermediate result, produced by a source
// client before cost attribution and merging.
type SearchHit struct {
	URL            string
	Title          string
	Snippet        string
	RelevanceScore float64
	SourceName     string
	RawData        map[string]interface{}
}

// ScrapedPage is a single page returned by the scraper source.
type ScrapedPage struct {
	URL       string
	Title     string
	Content   string
	Markdown  string
	Metadata  map[string]interface{}
	CostUSD   float64
	LatencyMS float64
}

// Source is one contribution to a Result: either a search hit or a scraped
// page, normalized and cost-attributed.
type Source struct {
	SourceName     string
	URL            string
	Title          string
	Snippet        string
	RelevanceScore float64
	CostUSD        float64
	LatencyMS      float64
}

// Result is the orchestrator's output: a merged, deduplicated, ranked view
// across whichever sources the requested Depth dispatched to.
type Result struct {
	QueryID       string
	CorrelationID string
	Sources       []Source
	MergedText    string
	DepthUsed     Depth
	TotalCostUSD  float64
	LatencyMS     float64
	Timestamp     ids.Timestamp
	Cached        bool
	Embeddings    []float32
}

// TotalSourceCost sums every source's CostUSD; the orchestrator sets
// TotalCostUSD from it.
func (r Result) TotalSourceCost() float64 {
	var total float64
	for _, s := range r.Sources {
		total += s.CostUSD
	}
	return total
}

// Summary returns the first n runes of MergedText, used to populate
// IntelGathered's result_summary field.
func (r Result) Summary(n int) string {
	text := strings.TrimSpace(r.MergedText)
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
