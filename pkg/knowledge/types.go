package knowledge

import (
	"time"

	"github.com/itsneelabh/intelcore/internal/ids"
)

// Record is a single exported piece of knowledge: an intel.Result's merged
// text plus its embedding vector and source metadata, indexed for both
// full-text and k-nearest-neighbor retrieval (spec §3).
type Record struct {
	ID              string
	QueryID         string
	CorrelationID   string
	MergedText      string
	EmbeddingVector []float32
	SourceNames     []string
	DepthUsed       string
	TotalCostUSD    float64
	Tags            []string
	Metadata        map[string]interface{}
	CreatedAt       time.Time
}

// NewRecord fills in the generated id and creation timestamp.
func NewRecord() Record {
	return Record{ID: ids.New(), CreatedAt: time.Now()}
}
