// Package sources implements the three source clients (neural search, news
// search, scraper) that the orchestrator dispatches to: each wraps an HTTP
// call in a circuit breaker and dual-budget retry, tracks its own
// rate-limit window, and emits source_querying/SourceQueried lifecycle
// events (spec §4.5).
package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/pkg/events"
	"github.com/itsneelabh/intelcore/pkg/intelerrors"
	"github.com/itsneelabh/intelcore/pkg/resilience"
)

// Emitter is the event-publishing contract source clients depend on.
type Emitter interface {
	Emit(eventType string, payload map[string]interface{}, sourceModule, correlationID string) events.Envelope
}

// base is embedded by every concrete source client. It owns the
// *http.Client (built in newBase; it dials on first request), the
// per-service circuit breaker, the retry config,
// and the rate-limit bookkeeping described in spec §4.5.
type base struct {
	name          string
	baseURL       string
	httpClient    *http.Client
	breaker       *resilience.CircuitBreaker
	retryConfig   *resilience.RetryConfig
	bus           Emitter
	logger        corelog.Logger
	sourceModule  string

	rateLimitedUntil atomic.Int64 // unix nanos
}

func newBase(name, baseURL string, timeout time.Duration, bus Emitter, logger corelog.Logger) base {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	sourceModule := "intel.sources." + name
	cbCfg := resilience.DefaultConfig(name)
	cbCfg.Logger = logger
	if bus != nil {
		cbCfg.Emit = func(eventType string, payload map[string]interface{}, sourceModule, correlationID string) {
			bus.Emit(eventType, payload, sourceModule, correlationID)
		}
	}
	return base{
		name:         name,
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		breaker:      resilience.New(cbCfg),
		retryConfig:  resilience.DefaultRetryConfig(),
		bus:          bus,
		logger:       logger,
		sourceModule: sourceModule,
	}
}

// IsRateLimited reports whether the source is currently within a rate-limit
// cooldown window.
func (b *base) IsRateLimited() bool {
	return time.Now().UnixNano() < b.rateLimitedUntil.Load()
}

// CircuitBreaker exposes the underlying breaker for status checks.
func (b *base) CircuitBreaker() *resilience.CircuitBreaker {
	return b.breaker
}

func (b *base) markRateLimited(window time.Duration) {
	if window <= 0 {
		window = 60 * time.Second
	}
	b.rateLimitedUntil.Store(time.Now().Add(window).UnixNano())
}

func (b *base) emit(eventType string, payload map[string]interface{}, correlationID string) {
	if b.bus == nil {
		return
	}
	b.bus.Emit(eventType, payload, b.sourceModule, correlationID)
}

// doJSON executes a POST of body to path under the breaker+retry stack,
// returning the raw response body bytes on 2xx. It classifies 429 as
// RateLimitError (honoring Retry-After) and any other non-2xx as APIError.
func (b *base) doJSON(ctx context.Context, path string, body interface{}, headers map[string]string, correlationID string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var respBody []byte
	var lastRetryAfter time.Duration
	err = b.breaker.Execute(func() error {
		return resilience.Run(ctx, b.retryConfig, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			start := time.Now()
			resp, err := b.httpClient.Do(req)
			if err != nil {
				return intelerrors.NewAPIError(b.sourceModule, correlationID, b.name, path, 0, time.Since(start), err.Error())
			}
			defer resp.Body.Close()

			data, _ := io.ReadAll(resp.Body)
			elapsed := time.Since(start)

			if resp.StatusCode == http.StatusTooManyRequests {
				lastRetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
				return intelerrors.NewRateLimitError(b.sourceModule, correlationID, b.name, lastRetryAfter)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return intelerrors.NewAPIError(b.sourceModule, correlationID, b.name, path, resp.StatusCode, elapsed, truncate(string(data), 200))
			}

			respBody = data
			return nil
		})
	})
	// Only mark the source rate-limited once the retry loop has given up and
	// a RateLimitError is the final outcome; a 429 the retry recovers from
	// must not leave the source falsely IsRateLimited().
	if _, ok := err.(*intelerrors.RateLimitError); ok {
		b.markRateLimited(maxDuration(lastRetryAfter, 60*time.Second))
	}
	return respBody, err
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 2 * time.Second
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return 2 * time.Second
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
