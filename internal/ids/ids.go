// Package ids provides identifier and timestamp helpers shared across the
// intel core: query/correlation/event ids and the nanosecond+ISO clock used
// throughout Result, EventEnvelope and KnowledgeRecord.
package ids

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a fresh random identifier (no prefix).
func New() string {
	return uuid.New().String()
}

// Correlation returns a correlation id in the "req-<random>" shape used when
// a caller does not supply one.
func Correlation() string {
	return fmt.Sprintf("req-%s", uuid.New().String())
}

// Timestamp is the nanosecond + ISO-8601 clock reading attached to Query,
// Result, EventEnvelope and KnowledgeRecord.
type Timestamp struct {
	UnixNanos int64  `json:"unix_nanos"`
	ISO8601   string `json:"iso8601"`
}

// Now captures the current instant.
func Now() Timestamp {
	t := time.Now().UTC()
	return Timestamp{
		UnixNanos: t.UnixNano(),
		ISO8601:   t.Format(time.RFC3339Nano),
	}
}

// Since returns the elapsed time in milliseconds from start to now.
func Since(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
