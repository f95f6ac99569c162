package events

import (
	"github.com/itsneelabh/intelcore/internal/ids"
)

// Envelope is the canonical wrapper emitted by every lifecycle event in the
// intel core (query_started, SourceQueried, CircuitBreakerStateChanged,
// IntelGathered, query_completed, error_occurred, and the completion-path
// events).
type Envelope struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	Timestamp     ids.Timestamp          `json:"timestamp"`
	SourceModule  string                 `json:"source_module"`
	CorrelationID string                 `json:"correlation_id"`
	Payload       map[string]interface{} `json:"payload"`
}

func newEnvelope(eventType string, payload map[string]interface{}, sourceModule, correlationID string) Envelope {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Envelope{
		EventID:       ids.New(),
		EventType:     eventType,
		Timestamp:     ids.Now(),
		SourceModule:  sourceModule,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}
