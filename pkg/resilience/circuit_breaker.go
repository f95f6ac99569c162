package resilience

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/pkg/intelerrors"
)

// State is one of Closed, Open, HalfOpen.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// EmitFunc is the minimal event-publishing contract the breaker depends on.
// It is injected at construction time (events.Bus.Emit, adapted, satisfies
// it) rather than looked up at call time, breaking the cyclic import
// between the events and resilience packages per the framework's
// dependency-injection convention.
type EmitFunc func(eventType string, payload map[string]interface{}, sourceModule, correlationID string)

// Config configures one CircuitBreaker instance. Defaults match spec §4.2.
type Config struct {
	Name              string
	FailureThreshold  int
	Timeout           time.Duration
	HalfOpenMaxCalls  int
	FailureWindow     time.Duration
	Logger            corelog.Logger
	// Emit, if set, publishes CircuitBreakerStateChanged on every
	// transition. Emission must never block or fail the call path, so it
	// is invoked in its own goroutine.
	Emit EmitFunc
}

// DefaultConfig returns spec §4.2's defaults for service name.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		FailureThreshold: 3,
		Timeout:          60 * time.Second,
		HalfOpenMaxCalls: 1,
		FailureWindow:    60 * time.Second,
	}
}

// CircuitBreaker is the three-state breaker described in spec §4.2:
// Closed (failures are counted within a rolling window; threshold failures
// open the circuit), Open (calls are rejected until Timeout elapses, then
// the breaker becomes HalfOpen), HalfOpen (a bounded number of probes may
// run; a success closes the circuit, a failure reopens it).
type CircuitBreaker struct {
	cfg *Config

	mu               sync.Mutex
	state            State
	failureTimes     []time.Time
	openedAt         time.Time
	halfOpenInFlight int

	totalExecutions    atomic.Uint64
	rejectedExecutions atomic.Uint64
}

// New constructs a breaker from cfg, filling in any zero-valued fields from
// DefaultConfig.
func New(cfg *Config) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig("default")
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = corelog.NoOpLogger{}
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the current state, first applying the Open->HalfOpen
// auto-transition if Timeout has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeExpireOpenLocked()
	return cb.state
}

// maybeExpireOpenLocked must be called with cb.mu held.
func (cb *CircuitBreaker) maybeExpireOpenLocked() {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.Timeout {
		cb.transitionLocked(StateHalfOpen)
		cb.halfOpenInFlight = 0
	}
}

// CanExecute reports whether a call may proceed right now, reserving a
// half-open probe slot if necessary. Call RecordSuccess or RecordFailure
// exactly once for every call this allowed.
func (cb *CircuitBreaker) CanExecute() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeExpireOpenLocked()

	switch cb.state {
	case StateClosed:
		return true, nil
	case StateOpen:
		reopensIn := cb.cfg.Timeout - time.Since(cb.openedAt)
		if reopensIn < 0 {
			reopensIn = 0
		}
		cb.rejectedExecutions.Add(1)
		return false, intelerrors.NewCircuitOpenError("resilience.circuit_breaker", "", cb.cfg.Name, reopensIn)
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.cfg.HalfOpenMaxCalls {
			cb.rejectedExecutions.Add(1)
			return false, intelerrors.NewCircuitOpenError("resilience.circuit_breaker", "", cb.cfg.Name, time.Second)
		}
		cb.halfOpenInFlight++
		return true, nil
	default:
		return false, intelerrors.NewCircuitOpenError("resilience.circuit_breaker", "", cb.cfg.Name, 0)
	}
}

// RecordSuccess reports a successful call. In HalfOpen this releases the
// probe slot, closes the circuit and clears recorded failures; in Closed it
// only counts the execution and leaves recorded failures in place.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalExecutions.Add(1)

	if cb.state == StateHalfOpen {
		cb.halfOpenInFlight--
		cb.transitionLocked(StateClosed)
		cb.failureTimes = nil
	}
}

// RecordFailure reports a failed call, pruning failure timestamps outside
// the failure window and opening the circuit if the threshold is reached.
// In HalfOpen, any probe failure reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalExecutions.Add(1)
	now := time.Now()

	if cb.state == StateHalfOpen {
		cb.halfOpenInFlight--
		cb.openedAt = now
		cb.transitionLocked(StateOpen)
		return
	}

	cb.failureTimes = append(cb.failureTimes, now)
	cb.pruneFailuresLocked(now)

	if len(cb.failureTimes) >= cb.cfg.FailureThreshold {
		cb.openedAt = now
		cb.transitionLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) pruneFailuresLocked(now time.Time) {
	kept := cb.failureTimes[:0]
	for _, t := range cb.failureTimes {
		if now.Sub(t) <= cb.cfg.FailureWindow {
			kept = append(kept, t)
		}
	}
	cb.failureTimes = kept
}

// transitionLocked must be called with cb.mu held. It updates state and
// fires the CircuitBreakerStateChanged event asynchronously.
func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.cfg.Logger.Info("circuit breaker state changed", map[string]interface{}{
		"service": cb.cfg.Name, "from": from.String(), "to": to.String(),
	})

	if cb.cfg.Emit != nil {
		payload := map[string]interface{}{
			"source_name":    cb.cfg.Name,
			"previous_state": from.String(),
			"state":          to.String(),
		}
		if to == StateOpen {
			payload["reopens_in_seconds"] = cb.cfg.Timeout.Seconds()
		}
		emit := cb.cfg.Emit
		go emit("CircuitBreakerStateChanged", payload, "resilience.circuit_breaker", "")
	}
}

// Execute runs fn under the breaker's protection: rejects immediately with
// a CircuitOpenError if the circuit is Open (or HalfOpen with no probe
// slots available), otherwise runs fn and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	ok, err := cb.CanExecute()
	if !ok {
		return err
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Reset forces the breaker back to Closed with empty counters. Used by
// tests and manual operator intervention.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureTimes = nil
	cb.halfOpenInFlight = 0
}

// Stats returns a point-in-time snapshot of execution counters, useful for
// metrics export.
func (cb *CircuitBreaker) Stats() (total, rejected uint64) {
	return cb.totalExecutions.Load(), cb.rejectedExecutions.Load()
}
