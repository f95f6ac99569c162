package intel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeSources_KeepsHighestRelevancePerURL(t *testing.T) {
	sources := []Source{
		{URL: "https://a.com", RelevanceScore: 0.5, SourceName: "exa"},
		{URL: "https://a.com", RelevanceScore: 0.9, SourceName: "tavily"},
		{URL: "https://b.com", RelevanceScore: 0.7, SourceName: "exa"},
	}

	deduped := dedupeSources(sources)

	assert.Len(t, deduped, 2)
	assert.Equal(t, "https://a.com", deduped[0].URL)
	assert.Equal(t, 0.9, deduped[0].RelevanceScore)
	assert.Equal(t, "tavily", deduped[0].SourceName)
}

func TestDedupeSources_OrdersByRelevanceDescending(t *testing.T) {
	sources := []Source{
		{URL: "https://low.com", RelevanceScore: 0.1},
		{URL: "https://high.com", RelevanceScore: 0.9},
		{URL: "https://mid.com", RelevanceScore: 0.5},
	}

	deduped := dedupeSources(sources)

	assert.Equal(t, "https://high.com", deduped[0].URL)
	assert.Equal(t, "https://mid.com", deduped[1].URL)
	assert.Equal(t, "https://low.com", deduped[2].URL)
}

func TestDedupeSources_URLLessSourcesKeptAndAppended(t *testing.T) {
	sources := []Source{
		{URL: "", RelevanceScore: 0.9, SourceName: "firecrawl", Snippet: "no url"},
		{URL: "https://a.com", RelevanceScore: 0.2},
	}

	deduped := dedupeSources(sources)

	assert.Len(t, deduped, 2)
	assert.Equal(t, "https://a.com", deduped[0].URL)
	assert.Equal(t, "", deduped[1].URL)
}

func TestMergeSnippets_DropsNearDuplicates(t *testing.T) {
	sources := []Source{
		{SourceName: "exa", Title: "A", Snippet: "the quick brown fox jumps over the lazy dog repeatedly today"},
		{SourceName: "tavily", Title: "B", Snippet: "The Quick Brown Fox Jumps Over The Lazy Dog Repeatedly Today"},
		{SourceName: "firecrawl", Title: "C", Snippet: "completely different content here"},
	}

	merged := mergeSnippets(sources)

	assert.Contains(t, merged, "[exa] A")
	assert.NotContains(t, merged, "[tavily]")
	assert.Contains(t, merged, "[firecrawl] C")
}

func TestMergeSnippets_SkipsEmptySnippets(t *testing.T) {
	sources := []Source{
		{SourceName: "exa", Snippet: ""},
		{SourceName: "tavily", Snippet: "real content"},
	}

	merged := mergeSnippets(sources)

	assert.Equal(t, "[tavily]\nreal content", merged)
}

func TestExtractScrapeURLs_FiltersBlockedDomainsAndCaps(t *testing.T) {
	hits := []SearchHit{
		{URL: "https://twitter.com/x"},
		{URL: "https://example.com/a"},
		{URL: "https://example.com/b"},
		{URL: ""},
		{URL: "https://example.com/c"},
		{URL: "https://example.com/d"},
	}

	urls := extractScrapeURLs(hits, 3)

	assert.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}, urls)
}

func TestExtractScrapeURLs_EmptyWhenNoneQualify(t *testing.T) {
	hits := []SearchHit{{URL: "https://reddit.com/r/x"}, {URL: ""}}
	urls := extractScrapeURLs(hits, 5)
	assert.Empty(t, urls)
}
