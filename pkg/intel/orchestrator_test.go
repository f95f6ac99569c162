package intel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/intelcore/pkg/events"
)

type fakeNeural struct {
	hits        []SearchHit
	err         error
	rateLimited bool
	calls       int
	mu          sync.Mutex
}

func (f *fakeNeural) Search(ctx context.Context, query string, numResults int, queryID, correlationID string) ([]SearchHit, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}
func (f *fakeNeural) IsRateLimited() bool { return f.rateLimited }

type fakeNews struct {
	hits        []SearchHit
	err         error
	rateLimited bool
}

func (f *fakeNews) Search(ctx context.Context, query string, maxResults int, queryID, correlationID string) ([]SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}
func (f *fakeNews) IsRateLimited() bool { return f.rateLimited }

type fakeScraper struct {
	pages       []ScrapedPage
	rateLimited bool
	gotURLs     []string
}

func (f *fakeScraper) BatchScrape(ctx context.Context, urls []string, queryID, correlationID string) []ScrapedPage {
	f.gotURLs = urls
	return f.pages
}
func (f *fakeScraper) IsRateLimited() bool { return f.rateLimited }

type fakeCache struct {
	mu    sync.Mutex
	store map[string]Result
}

func newFakeCache() *fakeCache { return &fakeCache{store: make(map[string]Result)} }

func (f *fakeCache) Get(ctx context.Context, key string) (Result, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.store[key]
	return r, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, result Result, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = result
	return nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEmitter) Emit(eventType string, payload map[string]interface{}, sourceModule, correlationID string) events.Envelope {
	f.mu.Lock()
	f.events = append(f.events, eventType)
	f.mu.Unlock()
	return events.Envelope{EventType: eventType, Payload: payload}
}

func (f *fakeEmitter) has(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == eventType {
			return true
		}
	}
	return false
}

func TestGatherQuery_ShallowHappyPath(t *testing.T) {
	neural := &fakeNeural{hits: []SearchHit{
		{URL: "https://a.com", SourceName: "exa", RelevanceScore: 0.9, Snippet: "hello"},
		{URL: "https://b.com", SourceName: "exa", RelevanceScore: 0.8, Snippet: "world"},
	}}
	emitter := &fakeEmitter{}
	orch := New(neural, nil, nil, nil, emitter, nil)

	result, err := orch.GatherIntel(context.Background(), "what is the weather", Shallow)

	require.NoError(t, err)
	assert.Len(t, result.Sources, 2)
	assert.InDelta(t, 2*costPerNeuralResult, result.TotalCostUSD, 1e-9)
	assert.True(t, emitter.has("query_started"))
	assert.True(t, emitter.has("IntelGathered"))
	assert.True(t, emitter.has("query_completed"))
}

func TestGatherQuery_ShallowSwallowsNeuralError(t *testing.T) {
	neural := &fakeNeural{err: errors.New("exa down")}
	orch := New(neural, nil, nil, nil, nil, nil)

	result, err := orch.GatherIntel(context.Background(), "query", Shallow)

	require.NoError(t, err)
	assert.Empty(t, result.Sources)
}

func TestGatherQuery_StandardDedupesAcrossNeuralAndNews(t *testing.T) {
	neural := &fakeNeural{hits: []SearchHit{
		{URL: "https://shared.com", SourceName: "exa", RelevanceScore: 0.5, Snippet: "exa version"},
	}}
	news := &fakeNews{hits: []SearchHit{
		{URL: "https://shared.com", SourceName: "tavily", RelevanceScore: 0.95, Snippet: "tavily version"},
		{URL: "https://unique.com", SourceName: "tavily", RelevanceScore: 0.4, Snippet: "unique"},
	}}
	orch := New(neural, news, nil, nil, nil, nil)

	result, err := orch.GatherIntel(context.Background(), "query", Standard)

	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "https://shared.com", result.Sources[0].URL)
	assert.Equal(t, "tavily", result.Sources[0].SourceName)
}

func TestGatherQuery_StandardNewsCostSumsToFlatFee(t *testing.T) {
	news := &fakeNews{hits: []SearchHit{
		{URL: "https://a.com", RelevanceScore: 0.1},
		{URL: "https://b.com", RelevanceScore: 0.2},
	}}
	orch := New(nil, news, nil, nil, nil, nil)

	result, err := orch.GatherIntel(context.Background(), "query", Standard)

	require.NoError(t, err)
	assert.InDelta(t, costPerNewsSearch, result.TotalCostUSD, 1e-9)
}

func TestGatherQuery_StandardSkipsRateLimitedSources(t *testing.T) {
	neural := &fakeNeural{rateLimited: true, hits: []SearchHit{{URL: "https://a.com"}}}
	news := &fakeNews{hits: []SearchHit{{URL: "https://b.com", RelevanceScore: 0.5}}}
	orch := New(neural, news, nil, nil, nil, nil)

	result, err := orch.GatherIntel(context.Background(), "query", Standard)

	require.NoError(t, err)
	assert.Equal(t, 0, neural.calls)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "https://b.com", result.Sources[0].URL)
}

func TestGatherQuery_DeepScrapesFilteredURLs(t *testing.T) {
	neural := &fakeNeural{hits: []SearchHit{
		{URL: "https://twitter.com/x", RelevanceScore: 0.9},
		{URL: "https://docs.example.com/page", RelevanceScore: 0.7},
	}}
	scraper := &fakeScraper{pages: []ScrapedPage{
		{URL: "https://docs.example.com/page", Markdown: "scraped content", LatencyMS: 120},
	}}
	orch := New(neural, nil, scraper, nil, nil, nil)

	result, err := orch.GatherIntel(context.Background(), "query", Deep)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://docs.example.com/page"}, scraper.gotURLs)

	var firecrawl *Source
	for i := range result.Sources {
		if result.Sources[i].SourceName == "firecrawl" {
			firecrawl = &result.Sources[i]
		}
	}
	require.NotNil(t, firecrawl)
	assert.Equal(t, "scraped content", firecrawl.Snippet)
	assert.InDelta(t, costPerScrapedPage, firecrawl.CostUSD, 1e-9)
}

func TestGatherQuery_DeepSkipsScrapeWhenRateLimited(t *testing.T) {
	neural := &fakeNeural{hits: []SearchHit{{URL: "https://example.com/a", RelevanceScore: 0.5}}}
	scraper := &fakeScraper{rateLimited: true}
	orch := New(neural, nil, scraper, nil, nil, nil)

	result, err := orch.GatherIntel(context.Background(), "query", Deep)

	require.NoError(t, err)
	for _, s := range result.Sources {
		assert.NotEqual(t, "firecrawl", s.SourceName)
	}
	assert.Nil(t, scraper.gotURLs)
}

func TestGatherQuery_CacheHitSkipsSourceDispatchAndReturnsFast(t *testing.T) {
	neural := &fakeNeural{hits: []SearchHit{{URL: "https://a.com", RelevanceScore: 0.5}}}
	cache := newFakeCache()
	emitter := &fakeEmitter{}
	orch := New(neural, nil, nil, cache, emitter, nil)

	first, err := orch.GatherIntel(context.Background(), "repeat query", Standard)
	require.NoError(t, err)
	assert.Equal(t, 1, neural.calls)

	second, err := orch.GatherIntel(context.Background(), "repeat query", Standard)
	require.NoError(t, err)

	assert.Equal(t, 1, neural.calls, "cache hit must not re-dispatch to sources")
	assert.True(t, second.Cached)
	assert.Less(t, second.LatencyMS, 50.0)
	assert.False(t, first.Cached)
	assert.Equal(t, first.TotalCostUSD, second.TotalCostUSD)
}

func TestCacheKey_DeterministicAndDepthSensitive(t *testing.T) {
	k1 := CacheKey("same text", Standard)
	k2 := CacheKey("same text", Standard)
	k3 := CacheKey("same text", Deep)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestGatherQuery_NoSourcesConfiguredSucceedsWithZeroSources(t *testing.T) {
	// Standard never returns an error itself (failures are swallowed per
	// source): an orchestrator with no neural/news source configured still
	// succeeds with zero sources.
	orch := New(nil, nil, nil, nil, nil, nil)
	result, err := orch.GatherIntel(context.Background(), "query", Standard)
	require.NoError(t, err)
	assert.Empty(t, result.Sources)
}
