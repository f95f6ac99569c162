package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// heartbeatInterval is how often a streaming SSE connection gets a
// sentinel keep-alive comment (spec §4.4).
const heartbeatInterval = 30 * time.Second

// ServeSSE adapts a bus Subscription into an SSE HTTP response, forwarding
// every envelope as `event: <type>\ndata: <json>\n\n`. If an envelope's
// payload carries a session_id, it is only forwarded when it matches
// sessionID; envelopes without one are broadcast to every session. A 30s
// heartbeat ticker keeps the connection alive. Disconnect (request context
// cancellation) releases only this subscription's queue — never another
// session's, unlike the teacher's known "unsubscribe all" defect.
func (b *Bus) ServeSSE(w http.ResponseWriter, r *http.Request, sessionID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if _, err := fmt.Fprintf(w, "event: system\ndata: {\"type\":\"connected\",\"session_id\":%q}\n\n", sessionID); err != nil {
		return
	}
	flusher.Flush()

	sub := b.StreamSubscribe()
	defer sub.Close()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case env, ok := <-sub.Envelopes():
			if !ok {
				return
			}
			if target, has := env.Payload["session_id"]; has {
				if targetStr, isStr := target.(string); isStr && targetStr != sessionID {
					continue
				}
			}
			if err := writeSSEEvent(w, env); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.EventType, data)
	return err
}
