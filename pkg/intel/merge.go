package intel

import (
	"fmt"
	"sort"
	"strings"
)

// dedupeSources keeps, for each URL, the Source with the highest
// RelevanceScore seen for that URL; URL-less sources are retained as-is.
// The result is ordered URL-bearing-first (descending relevance), then
// URL-less sources appended in their original order, matching spec §4.7.
func dedupeSources(sources []Source) []Source {
	byURL := make(map[string]Source)
	order := make([]string, 0, len(sources))
	var noURL []Source

	for _, s := range sources {
		if s.URL == "" {
			noURL = append(noURL, s)
			continue
		}
		if existing, ok := byURL[s.URL]; !ok {
			byURL[s.URL] = s
			order = append(order, s.URL)
		} else if s.RelevanceScore > existing.RelevanceScore {
			byURL[s.URL] = s
		}
	}

	withURL := make([]Source, 0, len(order))
	for _, u := range order {
		withURL = append(withURL, byURL[u])
	}
	sort.SliceStable(withURL, func(i, j int) bool {
		return withURL[i].RelevanceScore > withURL[j].RelevanceScore
	})

	return append(withURL, noURL...)
}

// mergeSnippets renders the ordered, deduplicated source list into a single
// merged_text, dropping near-duplicate snippets (by their first 100
// case-folded, trimmed characters) as it walks the sequence.
func mergeSnippets(sources []Source) string {
	seen := make(map[string]struct{})
	var parts []string

	for _, s := range sources {
		key := similarityKey(s.Snippet)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		header := fmt.Sprintf("[%s]", s.SourceName)
		if s.Title != "" {
			header += " " + s.Title
		}
		parts = append(parts, header+"\n"+s.Snippet)
	}

	return strings.Join(parts, "\n\n")
}

func similarityKey(snippet string) string {
	trimmed := strings.TrimSpace(snippet)
	runes := []rune(trimmed)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	return strings.ToLower(strings.TrimSpace(string(runes)))
}

// blockedScrapeDomains are social/search domains excluded from deep-mode
// scraping candidates (spec §4.7 step 4).
var blockedScrapeDomains = []string{
	"twitter.com", "x.com", "reddit.com", "facebook.com", "youtube.com", "google.com",
}

// extractScrapeURLs picks up to maxURLs candidate URLs from hits, skipping
// blocked domains and URL-less hits, preserving hit order.
func extractScrapeURLs(hits []SearchHit, maxURLs int) []string {
	var urls []string
	for _, h := range hits {
		if len(urls) >= maxURLs {
			break
		}
		if h.URL == "" || isBlockedDomain(h.URL) {
			continue
		}
		urls = append(urls, h.URL)
	}
	return urls
}

func isBlockedDomain(url string) bool {
	lower := strings.ToLower(url)
	for _, domain := range blockedScrapeDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}
