// Package intelerrors defines the structured error taxonomy shared by every
// resilience-wrapped call in the intel core: outbound source/embedding/
// completion calls, the circuit breaker, and request validation.
package intelerrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/itsneelabh/intelcore/internal/ids"
)

// Sentinel errors for errors.Is comparisons across the taxonomy.
var (
	ErrRateLimited  = errors.New("rate limited")
	ErrCircuitOpen  = errors.New("circuit breaker open")
	ErrValidation   = errors.New("validation failed")
	ErrConfig       = errors.New("invalid configuration")
	ErrAPI          = errors.New("api call failed")
)

// Base carries the fields every taxonomy member shares: which module raised
// it, the request's correlation id, how many retries preceded it, and when
// it was constructed.
type Base struct {
	SourceModule  string    `json:"source_module"`
	CorrelationID string    `json:"correlation_id"`
	RetryCount    int       `json:"retry_count"`
	Timestamp     time.Time `json:"timestamp"`
}

func newBase(sourceModule, correlationID string) Base {
	return Base{
		SourceModule:  sourceModule,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
}

// APIError represents a non-2xx response or a connection failure from a
// downstream HTTP service.
type APIError struct {
	Base
	Service           string `json:"service"`
	Endpoint          string `json:"endpoint"`
	HTTPStatus        int    `json:"http_status"`
	RequestDurationMS int64  `json:"request_duration_ms"`
	Detail            string `json:"detail"`
}

func NewAPIError(sourceModule, correlationID, service, endpoint string, status int, duration time.Duration, detail string) *APIError {
	return &APIError{
		Base:              newBase(sourceModule, correlationID),
		Service:           service,
		Endpoint:          endpoint,
		HTTPStatus:        status,
		RequestDurationMS: duration.Milliseconds(),
		Detail:            detail,
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s %s returned %d: %s", e.SourceModule, e.Service, e.Endpoint, e.HTTPStatus, e.Detail)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// RateLimitError represents an HTTP 429 (or service-equivalent) response.
type RateLimitError struct {
	Base
	Service          string     `json:"service"`
	RetryAfterSec    float64    `json:"retry_after_seconds"`
	QuotaRemaining   *int       `json:"quota_remaining,omitempty"`
	QuotaResetAt     *time.Time `json:"quota_reset_at,omitempty"`
}

func NewRateLimitError(sourceModule, correlationID, service string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Base:          newBase(sourceModule, correlationID),
		Service:       service,
		RetryAfterSec: retryAfter.Seconds(),
	}
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s rate limited, retry after %.1fs", e.SourceModule, e.Service, e.RetryAfterSec)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter satisfies resilience.RetryAfterer so the retry engine can honor
// a service-supplied delay without importing intelerrors.
func (e *RateLimitError) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterSec * float64(time.Second))
}

// CircuitOpenError is returned when a breaker refuses a call outright.
type CircuitOpenError struct {
	Base
	Service          string  `json:"service"`
	ReopensInSeconds float64 `json:"reopens_in_seconds"`
}

func NewCircuitOpenError(sourceModule, correlationID, service string, reopensIn time.Duration) *CircuitOpenError {
	if reopensIn < 0 {
		reopensIn = 0
	}
	return &CircuitOpenError{
		Base:             newBase(sourceModule, correlationID),
		Service:          service,
		ReopensInSeconds: reopensIn.Seconds(),
	}
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %s is open, reopens in %.1fs", e.Service, e.ReopensInSeconds)
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// ValidationError represents a violated input precondition.
type ValidationError struct {
	Base
	FieldName string `json:"field_name"`
	Expected  string `json:"expected"`
	Received string  `json:"received"`
	Rule      string `json:"rule"`
}

func NewValidationError(sourceModule, correlationID, field, expected, received, rule string) *ValidationError {
	return &ValidationError{
		Base:      newBase(sourceModule, correlationID),
		FieldName: field,
		Expected:  expected,
		Received:  received,
		Rule:      rule,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: expected %s, got %s (%s)", e.FieldName, e.Expected, e.Received, e.Rule)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConfigurationError represents missing or invalid configuration.
type ConfigurationError struct {
	Base
	Setting string `json:"setting"`
	Detail  string `json:"detail"`
}

func NewConfigurationError(sourceModule, setting, detail string) *ConfigurationError {
	return &ConfigurationError{
		Base:    newBase(sourceModule, ""),
		Setting: setting,
		Detail:  detail,
	}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Setting, e.Detail)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfig }

// IsRetryable reports whether err is a class that the retry engine should
// ever attempt again (APIError, RateLimitError). CircuitOpenError,
// ValidationError and ConfigurationError are never retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAPI) || errors.Is(err, ErrRateLimited)
}

// IsRateLimit reports whether err (or something it wraps) is a RateLimitError.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// HTTPStatus maps a taxonomy member to the status code the boundary should
// respond with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConfig):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrAPI):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Envelope is the JSON body returned at the HTTP boundary for any failed
// request.
type Envelope struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
	Trace     string `json:"traceback,omitempty"`
}

// NewEnvelope builds the boundary response body for err, generating a fresh
// request id if one was not supplied by middleware. When includeTrace is
// true (a debug flag) the error's Go-level detail is included.
func NewEnvelope(err error, requestID string, includeTrace bool) Envelope {
	if requestID == "" {
		requestID = ids.New()
	}
	env := Envelope{Error: err.Error(), RequestID: requestID}
	if includeTrace {
		env.Trace = fmt.Sprintf("%+v", err)
	}
	return env
}
