// Package knowledge implements the coupled knowledge-export subsystem
// (C10/C11): embedding a Result's merged text and persisting it to a
// Redis-backed store that supports full-text and k-nearest-neighbor
// retrieval (spec §4.8/§4.9, grounded on original_source/council).
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/pkg/events"
	"github.com/itsneelabh/intelcore/pkg/intelerrors"
	"github.com/itsneelabh/intelcore/pkg/resilience"
)

// EmbeddingDim is the fixed embedding vector dimension produced by the
// embedder (spec §3 knowledge record invariant).
const EmbeddingDim = 768

const jinaAPIBase = "https://api.jina.ai/v1"
const jinaModel = "jina-embeddings-v2-base-en"

// Embedder turns text into a fixed-dimension embedding vector via the Jina
// embeddings API, wrapped in the same circuit-breaker + dual-budget retry
// stack as the intel source clients.
type Embedder struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	breaker     *resilience.CircuitBreaker
	retryConfig *resilience.RetryConfig
	logger      corelog.Logger
}

// Emitter is the event-publishing contract the embedder's circuit breaker
// depends on.
type Emitter interface {
	Emit(eventType string, payload map[string]interface{}, sourceModule, correlationID string) events.Envelope
}

// NewEmbedder constructs an Embedder. baseURL defaults to the Jina API
// root when empty, matching the other source clients' NewXxx(baseURL, ...)
// shape.
func NewEmbedder(baseURL, apiKey string, bus Emitter, logger corelog.Logger) *Embedder {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	if baseURL == "" {
		baseURL = jinaAPIBase
	}
	cbCfg := resilience.DefaultConfig("jina")
	cbCfg.Logger = logger
	if bus != nil {
		cbCfg.Emit = func(eventType string, payload map[string]interface{}, sourceModule, correlationID string) {
			bus.Emit(eventType, payload, sourceModule, correlationID)
		}
	}
	return &Embedder{
		apiKey:      apiKey,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		breaker:     resilience.New(cbCfg),
		retryConfig: resilience.DefaultRetryConfig(),
		logger:      logger,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []embedDatum `json:"data"`
}

type embedDatum struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns a 768-dimension embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text, correlationID string) ([]float32, error) {
	var vector []float32

	err := e.breaker.Execute(func() error {
		return resilience.Run(ctx, e.retryConfig, func() error {
			payload, err := json.Marshal(embedRequest{Model: jinaModel, Input: []string{text}})
			if err != nil {
				return fmt.Errorf("marshal embed request: %w", err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")

			start := time.Now()
			resp, err := e.httpClient.Do(req)
			if err != nil {
				return intelerrors.NewAPIError("council.embedder", correlationID, "jina", "/embeddings", 0, time.Since(start), err.Error())
			}
			defer resp.Body.Close()

			data, _ := io.ReadAll(resp.Body)
			elapsed := time.Since(start)

			if resp.StatusCode == http.StatusTooManyRequests {
				retryAfter := 2 * time.Second
				if h := resp.Header.Get("Retry-After"); h != "" {
					if d, perr := time.ParseDuration(h + "s"); perr == nil {
						retryAfter = d
					}
				}
				return intelerrors.NewRateLimitError("council.embedder", correlationID, "jina", retryAfter)
			}
			if resp.StatusCode != http.StatusOK {
				body := string(data)
				if len(body) > 200 {
					body = body[:200]
				}
				return intelerrors.NewAPIError("council.embedder", correlationID, "jina", "/embeddings", resp.StatusCode, elapsed, body)
			}

			var parsed embedResponse
			if jerr := json.Unmarshal(data, &parsed); jerr != nil {
				return fmt.Errorf("unmarshal embed response: %w", jerr)
			}
			if len(parsed.Data) == 0 {
				return fmt.Errorf("jina response contained no embeddings")
			}
			vector = parsed.Data[0].Embedding
			if len(vector) != EmbeddingDim {
				return fmt.Errorf("expected %d-dim vector, got %d", EmbeddingDim, len(vector))
			}
			return nil
		})
	})

	return vector, err
}
