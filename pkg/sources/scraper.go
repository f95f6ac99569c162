package sources

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/pkg/intel"
)

// CostPerScrapedPage is the per-page cost charged by the scraper source
// (spec §4.5).
const CostPerScrapedPage = 0.001

// DefaultBatchConcurrency bounds BatchScrape's in-flight scrapes (spec §4.5,
// §5).
const DefaultBatchConcurrency = 5

// Scraper is the deep-content extraction source client (shaped after the
// Firecrawl API contract in spec §4.5/§6).
type Scraper struct {
	base
	apiKey      string
	concurrency int
}

func NewScraper(baseURL, apiKey string, bus Emitter, logger corelog.Logger) *Scraper {
	if baseURL == "" {
		baseURL = "https://api.firecrawl.dev/v1"
	}
	return &Scraper{
		base:        newBase("firecrawl", baseURL, 30*time.Second, bus, logger),
		apiKey:      apiKey,
		concurrency: DefaultBatchConcurrency,
	}
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Data scrapePageData `json:"data"`
}

type scrapePageData struct {
	Markdown string                 `json:"markdown"`
	RawHTML  string                 `json:"rawHtml"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Scrape fetches a single URL's content.
func (s *Scraper) Scrape(ctx context.Context, url, queryID, correlationID string) (intel.ScrapedPage, error) {
	s.emit("source_querying", map[string]interface{}{
		"source_name": "firecrawl",
		"query_id":    queryID,
		"status":      "started",
		"url":         truncate(url, 200),
	}, correlationID)

	start := time.Now()
	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	reqBody := scrapeRequest{URL: url, Formats: []string{"markdown", "rawHtml"}, OnlyMainContent: true}

	data, err := s.doJSON(ctx, "/scrape", reqBody, headers, correlationID)
	latency := time.Since(start)
	if err != nil {
		s.emit("SourceQueried", map[string]interface{}{
			"source": "firecrawl", "status": "failed", "url": truncate(url, 200),
			"latency_ms": latency.Milliseconds(), "error": truncate(err.Error(), 200),
		}, correlationID)
		return intel.ScrapedPage{}, err
	}

	var parsed scrapeResponse
	if jerr := json.Unmarshal(data, &parsed); jerr != nil {
		s.emit("SourceQueried", map[string]interface{}{
			"source": "firecrawl", "status": "failed", "url": truncate(url, 200),
			"latency_ms": latency.Milliseconds(), "error": truncate(jerr.Error(), 200),
		}, correlationID)
		return intel.ScrapedPage{}, jerr
	}

	title := ""
	if t, ok := parsed.Data.Metadata["title"].(string); ok {
		title = t
	}
	page := intel.ScrapedPage{
		URL: url, Title: title,
		Content: parsed.Data.RawHTML, Markdown: parsed.Data.Markdown,
		Metadata: parsed.Data.Metadata, CostUSD: CostPerScrapedPage,
		LatencyMS: float64(latency.Milliseconds()),
	}

	s.emit("SourceQueried", map[string]interface{}{
		"source": "firecrawl", "status": "completed", "url": truncate(url, 200),
		"latency_ms": latency.Milliseconds(), "content_length": len(page.Content),
		"cost_usd": CostPerScrapedPage,
	}, correlationID)

	return page, nil
}

// BatchScrape scrapes every URL with at most s.concurrency in flight.
// Individual failures are logged and dropped: the batch only returns
// successful pages.
func (s *Scraper) BatchScrape(ctx context.Context, urls []string, queryID, correlationID string) []intel.ScrapedPage {
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	pages := make([]intel.ScrapedPage, 0, len(urls))

	for _, url := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()

			page, err := s.Scrape(ctx, u, queryID, correlationID)
			if err != nil {
				s.logger.Warn("scrape failed, dropping from batch", map[string]interface{}{
					"url": u, "error": err.Error(),
				})
				return
			}
			mu.Lock()
			pages = append(pages, page)
			mu.Unlock()
		}(url)
	}

	wg.Wait()
	return pages
}
