package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/pkg/events"
	"github.com/itsneelabh/intelcore/pkg/intelerrors"
	"github.com/itsneelabh/intelcore/pkg/resilience"
)

const maxRotationAttempts = 10

var innerBackoffs = []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}

// Usage is token-accounting metadata returned alongside a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
}

// CompletionResult is the standardized response from Client.Complete.
type CompletionResult struct {
	Content string
	Model   string
	Usage   Usage
}

// Emitter is the event-publishing contract the client depends on.
type Emitter interface {
	Emit(eventType string, payload map[string]interface{}, sourceModule, correlationID string) events.Envelope
}

// Client is C13: it wraps a Rotator with per-model circuit breakers (30s
// failure window, per spec §4.10) and invokes an external chat-completion
// API, rotating away from rate-limited or erroring models until one
// succeeds or attempts are exhausted.
type Client struct {
	apiKey   string
	baseURL  string
	rotator  *Rotator
	bus      Emitter
	logger   corelog.Logger
	http     *http.Client

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// NewClient constructs a Client. baseURL defaults to the OpenRouter API
// root when empty.
func NewClient(baseURL, apiKey string, rotator *Rotator, bus Emitter, logger corelog.Logger) *Client {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	if rotator == nil {
		rotator = NewRotator(nil, nil)
	}
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &Client{
		apiKey:   apiKey,
		baseURL:  baseURL,
		rotator:  rotator,
		bus:      bus,
		logger:   logger,
		http:     &http.Client{Timeout: 30 * time.Second},
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

func (c *Client) breakerFor(modelID string) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[modelID]; ok {
		return b
	}
	cbCfg := resilience.Config{
		Name: modelID, FailureThreshold: 3, Timeout: 60 * time.Second,
		HalfOpenMaxCalls: 1, FailureWindow: 30 * time.Second, Logger: c.logger,
	}
	if c.bus != nil {
		cbCfg.Emit = func(eventType string, payload map[string]interface{}, sourceModule, correlationID string) {
			c.bus.Emit(eventType, payload, sourceModule, correlationID)
		}
	}
	b := resilience.New(&cbCfg)
	c.breakers[modelID] = b
	return b
}

func (c *Client) emit(eventType string, payload map[string]interface{}, correlationID string) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(eventType, payload, "completion.client", correlationID)
}

// Complete generates a completion for prompt, rotating across models until
// one succeeds or maxRotationAttempts is exhausted.
func (c *Client) Complete(ctx context.Context, prompt, taskType string, maxTokens int, correlationID string) (CompletionResult, error) {
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var lastErr error
	for attempt := 0; attempt < maxRotationAttempts; attempt++ {
		modelID := c.rotator.Next(taskType)
		breaker := c.breakerFor(modelID)

		var result CompletionResult
		err := breaker.Execute(func() error {
			r, execErr := c.executeWithBackoff(ctx, prompt, modelID, maxTokens, correlationID)
			if execErr != nil {
				return execErr
			}
			result = r
			return nil
		})

		if err == nil {
			c.emit("CompletionGenerated", map[string]interface{}{
				"model": result.Model, "prompt_tokens": result.Usage.PromptTokens,
				"completion_tokens": result.Usage.CompletionTokens, "cost_usd": result.Usage.CostUSD,
			}, correlationID)
			return result, nil
		}

		lastErr = err
		if intelerrors.IsRateLimit(err) || isCircuitOpen(err) {
			c.rotator.MarkRateLimited(modelID)
			c.emit("RateLimitHit", map[string]interface{}{"model": modelID, "error": err.Error()}, correlationID)
			c.emit("ModelRotated", map[string]interface{}{"previous_model": modelID}, correlationID)
			continue
		}

		c.emit("ModelError", map[string]interface{}{"model": modelID, "error": err.Error()}, correlationID)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all models exhausted or max attempts reached")
	}
	return CompletionResult{}, fmt.Errorf("completion failed: all models exhausted: %w", lastErr)
}

func isCircuitOpen(err error) bool {
	var circuitErr *intelerrors.CircuitOpenError
	return errors.As(err, &circuitErr)
}

// executeWithBackoff retries transient (non-rate-limit) API errors through
// the fixed three-step backoff ladder from original_source's
// _execute_with_backoff, re-raising RateLimitError immediately.
func (c *Client) executeWithBackoff(ctx context.Context, prompt, modelID string, maxTokens int, correlationID string) (CompletionResult, error) {
	var lastErr error
	for i := 0; i <= len(innerBackoffs); i++ {
		result, err := c.makeRequest(ctx, prompt, modelID, maxTokens, correlationID)
		if err == nil {
			return result, nil
		}
		if intelerrors.IsRateLimit(err) {
			return CompletionResult{}, err
		}
		lastErr = err
		if i == len(innerBackoffs) {
			break
		}
		select {
		case <-ctx.Done():
			return CompletionResult{}, ctx.Err()
		case <-time.After(innerBackoffs[i]):
		}
	}
	return CompletionResult{}, lastErr
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Model   string       `json:"model"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (c *Client) makeRequest(ctx context.Context, prompt, modelID string, maxTokens int, correlationID string) (CompletionResult, error) {
	if c.apiKey == "" {
		return CompletionResult{}, intelerrors.NewConfigurationError("completion.client", "OPENROUTER_API_KEY", "not configured")
	}

	payload, err := json.Marshal(chatRequest{
		Model:     modelID,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return CompletionResult{}, fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return CompletionResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", "https://intelcore.dev")
	req.Header.Set("X-Title", "IntelCore")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return CompletionResult{}, intelerrors.NewAPIError("completion.client", correlationID, "openrouter", "/chat/completions", 0, time.Since(start), err.Error())
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 5 * time.Second
		if h := resp.Header.Get("Retry-After"); h != "" {
			if d, perr := time.ParseDuration(h + "s"); perr == nil {
				retryAfter = d
			}
		}
		return CompletionResult{}, intelerrors.NewRateLimitError("completion.client", correlationID, "openrouter", retryAfter)
	}
	if resp.StatusCode != http.StatusOK {
		body := string(data)
		if len(body) > 200 {
			body = body[:200]
		}
		return CompletionResult{}, intelerrors.NewAPIError("completion.client", correlationID, "openrouter", "/chat/completions", resp.StatusCode, time.Since(start), body)
	}

	var parsed chatResponse
	if jerr := json.Unmarshal(data, &parsed); jerr != nil {
		return CompletionResult{}, fmt.Errorf("unmarshal completion response: %w", jerr)
	}
	if len(parsed.Choices) == 0 {
		return CompletionResult{}, fmt.Errorf("completion response contained no choices")
	}

	return CompletionResult{
		Content: parsed.Choices[0].Message.Content,
		Model:   modelID,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}
