package intel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/internal/ids"
	"github.com/itsneelabh/intelcore/pkg/events"
)

// ResultCache is the subset of pkg/cache.ResultCache the orchestrator
// depends on, expressed as an interface to avoid a direct dependency
// between pkg/intel and pkg/cache.
type ResultCache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, result Result, ttl time.Duration) error
}

// Emitter is the event-publishing contract the orchestrator depends on.
type Emitter interface {
	Emit(eventType string, payload map[string]interface{}, sourceModule, correlationID string) events.Envelope
}

// NeuralSource is the neural-search source contract (satisfied by
// *sources.NeuralSearch).
type NeuralSource interface {
	Search(ctx context.Context, query string, numResults int, queryID, correlationID string) ([]SearchHit, error)
	IsRateLimited() bool
}

// NewsSource is the news-search source contract (satisfied by
// *sources.NewsSearch).
type NewsSource interface {
	Search(ctx context.Context, query string, maxResults int, queryID, correlationID string) ([]SearchHit, error)
	IsRateLimited() bool
}

// ScrapeSource is the scraper source contract (satisfied by
// *sources.Scraper).
type ScrapeSource interface {
	BatchScrape(ctx context.Context, urls []string, queryID, correlationID string) []ScrapedPage
	IsRateLimited() bool
}

const (
	costPerNeuralResult = 0.0005
	costPerNewsSearch   = 0.01
	costPerScrapedPage  = 0.001
	defaultCacheTTL     = 1 * time.Hour
)

// Orchestrator is C9: it dispatches a Query to the source clients
// appropriate for its Depth, merges and dedupes the results, attributes
// cost, serves/populates the result cache, and emits the lifecycle events
// in spec §4.7/§6.
type Orchestrator struct {
	neural  NeuralSource
	news    NewsSource
	scraper ScrapeSource
	cache   ResultCache
	bus     Emitter
	logger  corelog.Logger
}

func New(neural NeuralSource, news NewsSource, scraper ScrapeSource, cache ResultCache, bus Emitter, logger corelog.Logger) *Orchestrator {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	return &Orchestrator{neural: neural, news: news, scraper: scraper, cache: cache, bus: bus, logger: logger}
}

func (o *Orchestrator) emit(eventType string, payload map[string]interface{}, correlationID string) {
	if o.bus == nil {
		return
	}
	o.bus.Emit(eventType, payload, "intel.orchestrator", correlationID)
}

// GatherIntel runs the full depth-dispatch flow described in spec §4.7 for
// a bare query string, defaulting depth to Standard.
func (o *Orchestrator) GatherIntel(ctx context.Context, text string, depth Depth) (Result, error) {
	return o.GatherQuery(ctx, NewQuery(text, depth))
}

// GatherQuery runs the flow for an already-constructed Query.
func (o *Orchestrator) GatherQuery(ctx context.Context, query Query) (Result, error) {
	start := time.Now()

	o.emit("query_started", map[string]interface{}{
		"query_id":       query.QueryID,
		"depth":          string(query.Depth),
		"correlation_id": query.CorrelationID,
	}, query.CorrelationID)

	cacheKey := CacheKey(query.Text, query.Depth)
	if o.cache != nil {
		if cached, ok, err := o.cache.Get(ctx, cacheKey); err == nil && ok {
			cached.LatencyMS = float64(time.Since(start).Milliseconds())
			cached.QueryID = query.QueryID
			cached.CorrelationID = query.CorrelationID
			cached.Cached = true
			o.emitIntelGathered(cached, query.CorrelationID)
			o.emit("query_completed", map[string]interface{}{
				"query_id": query.QueryID, "status": "success",
				"cost": 0.0, "latency": cached.LatencyMS, "cached": true,
			}, query.CorrelationID)
			return cached, nil
		} else if err != nil {
			o.logger.Warn("cache probe failed", map[string]interface{}{"error": err.Error()})
		}
	}

	var sources []Source
	var err error
	switch query.Depth {
	case Shallow:
		sources, err = o.gatherShallow(ctx, query)
	case Deep:
		sources, err = o.gatherDeep(ctx, query)
	default:
		sources, err = o.gatherStandard(ctx, query)
	}
	if err != nil {
		o.emit("error_occurred", map[string]interface{}{
			"query_id": query.QueryID, "error": err.Error(),
		}, query.CorrelationID)
		o.emit("query_completed", map[string]interface{}{
			"query_id": query.QueryID, "status": "error", "cost": 0.0,
			"latency": float64(time.Since(start).Milliseconds()),
		}, query.CorrelationID)
		return Result{}, err
	}

	deduped := dedupeSources(sources)
	result := Result{
		QueryID:       query.QueryID,
		CorrelationID: query.CorrelationID,
		Sources:       deduped,
		MergedText:    mergeSnippets(deduped),
		DepthUsed:     query.Depth,
		LatencyMS:     float64(time.Since(start).Milliseconds()),
		Timestamp:     ids.Now(),
		Cached:        false,
	}
	result.TotalCostUSD = result.TotalSourceCost()

	if o.cache != nil {
		ttl := defaultCacheTTL
		if query.CacheTTLSeconds > 0 {
			ttl = time.Duration(query.CacheTTLSeconds) * time.Second
		}
		if setErr := o.cache.Set(ctx, cacheKey, result, ttl); setErr != nil {
			o.logger.Warn("cache write failed", map[string]interface{}{"error": setErr.Error()})
		}
	}

	o.emitIntelGathered(result, query.CorrelationID)
	o.emit("query_completed", map[string]interface{}{
		"query_id": query.QueryID, "status": "success",
		"cost": result.TotalCostUSD, "latency": result.LatencyMS, "cached": false,
	}, query.CorrelationID)

	return result, nil
}

func (o *Orchestrator) emitIntelGathered(result Result, correlationID string) {
	o.emit("IntelGathered", map[string]interface{}{
		"query_id":        result.QueryID,
		"depth_used":      string(result.DepthUsed),
		"source_count":    len(result.Sources),
		"total_cost_usd":  result.TotalCostUSD,
		"latency_ms":      result.LatencyMS,
		"cached":          result.Cached,
		"result_summary":  result.Summary(200),
		"has_embeddings":  len(result.Embeddings) > 0,
	}, correlationID)
}

func (o *Orchestrator) gatherShallow(ctx context.Context, query Query) ([]Source, error) {
	hits, err := o.searchNeural(ctx, query, 5)
	if err != nil {
		return nil, nil
	}
	return hitsToSources(hits, func(int) float64 { return costPerNeuralResult }), nil
}

func (o *Orchestrator) gatherStandard(ctx context.Context, query Query) ([]Source, error) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var sources []Source

	if o.neural != nil && !o.neural.IsRateLimited() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := o.searchNeural(ctx, query, 10)
			if err != nil {
				return
			}
			neuralSources := hitsToSources(hits, func(int) float64 { return costPerNeuralResult })
			mu.Lock()
			sources = append(sources, neuralSources...)
			mu.Unlock()
		}()
	}

	if o.news != nil && !o.news.IsRateLimited() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := o.searchNews(ctx, query, 5)
			if err != nil {
				return
			}
			perResult := costPerNewsSearch / float64(maxInt(len(hits), 1))
			newsSources := hitsToSources(hits, func(int) float64 { return perResult })
			if len(hits) == 0 {
				newsSources = nil
			}
			mu.Lock()
			sources = append(sources, newsSources...)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return sources, nil
}

func (o *Orchestrator) gatherDeep(ctx context.Context, query Query) ([]Source, error) {
	hits, err := o.searchNeural(ctx, query, 10)
	if err != nil {
		hits = nil
	}
	sources := hitsToSources(hits, func(int) float64 { return costPerNeuralResult })

	if o.scraper == nil || o.scraper.IsRateLimited() {
		return sources, nil
	}

	urls := extractScrapeURLs(hits, 5)
	if len(urls) == 0 {
		return sources, nil
	}

	pages := o.scraper.BatchScrape(ctx, urls, query.QueryID, query.CorrelationID)
	for _, p := range pages {
		snippet := p.Markdown
		if snippet == "" {
			snippet = p.Content
		}
		sources = append(sources, Source{
			SourceName:     "firecrawl",
			URL:            p.URL,
			Title:          p.Title,
			Snippet:        truncateRunes(snippet, 500),
			RelevanceScore: 0.8,
			CostUSD:        costPerScrapedPage,
			LatencyMS:      p.LatencyMS,
		})
	}
	return sources, nil
}

func (o *Orchestrator) searchNeural(ctx context.Context, query Query, numResults int) ([]SearchHit, error) {
	if o.neural == nil {
		return nil, fmt.Errorf("no neural source configured")
	}
	hits, err := o.neural.Search(ctx, query.Text, numResults, query.QueryID, query.CorrelationID)
	if err != nil {
		o.logger.Warn("neural search failed, dropping", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	return hits, nil
}

func (o *Orchestrator) searchNews(ctx context.Context, query Query, maxResults int) ([]SearchHit, error) {
	if o.news == nil {
		return nil, fmt.Errorf("no news source configured")
	}
	hits, err := o.news.Search(ctx, query.Text, maxResults, query.QueryID, query.CorrelationID)
	if err != nil {
		o.logger.Warn("news search failed, dropping", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	return hits, nil
}

func hitsToSources(hits []SearchHit, costFn func(i int) float64) []Source {
	sources := make([]Source, 0, len(hits))
	for i, h := range hits {
		sources = append(sources, Source{
			SourceName:     h.SourceName,
			URL:            h.URL,
			Title:          h.Title,
			Snippet:        h.Snippet,
			RelevanceScore: h.RelevanceScore,
			CostUSD:        costFn(i),
		})
	}
	return sources
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// CacheKey computes the deterministic cache key for (text, depth), mirroring
// pkg/cache.Key so pkg/intel can probe/populate the cache through the
// ResultCache interface without importing pkg/cache.
func CacheKey(text string, depth Depth) string {
	sum := sha256.Sum256([]byte(text + ":" + string(depth)))
	return "intel:cache:" + hex.EncodeToString(sum[:])
}

