package knowledge

import (
	"context"
	"strings"

	"github.com/itsneelabh/intelcore/pkg/intel"
)

// Exporter ties the Embedder and Store together to implement the
// export_result flow from spec §4.8/§4.9: build merged_text, embed it,
// persist the record.
type Exporter struct {
	embedder *Embedder
	store    *Store
}

func NewExporter(embedder *Embedder, store *Store) *Exporter {
	return &Exporter{embedder: embedder, store: store}
}

// ExportResult embeds result.MergedText (falling back to a snippet
// concatenation when it's empty) and persists the resulting Record.
func (e *Exporter) ExportResult(ctx context.Context, result intel.Result, tags []string, metadata map[string]interface{}) (Record, error) {
	mergedText := strings.TrimSpace(result.MergedText)
	if mergedText == "" {
		var snippets []string
		for _, s := range result.Sources {
			if s.Snippet != "" {
				snippets = append(snippets, s.Snippet)
			}
		}
		mergedText = strings.Join(snippets, "\n")
	}

	vector, err := e.embedder.Embed(ctx, mergedText, result.CorrelationID)
	if err != nil {
		return Record{}, err
	}

	record := NewRecord()
	record.QueryID = result.QueryID
	record.CorrelationID = result.CorrelationID
	record.MergedText = mergedText
	record.EmbeddingVector = vector
	record.SourceNames = uniqueSourceNames(result.Sources)
	record.DepthUsed = string(result.DepthUsed)
	record.TotalCostUSD = result.TotalCostUSD
	if tags != nil {
		record.Tags = tags
	}
	if metadata != nil {
		record.Metadata = metadata
	} else {
		record.Metadata = map[string]interface{}{}
	}

	if err := e.store.Export(ctx, record); err != nil {
		return Record{}, err
	}
	return record, nil
}

func uniqueSourceNames(sources []intel.Source) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, s := range sources {
		if s.SourceName == "" {
			continue
		}
		if _, ok := seen[s.SourceName]; ok {
			continue
		}
		seen[s.SourceName] = struct{}{}
		names = append(names, s.SourceName)
	}
	return names
}
