package events

import (
	"fmt"
	"sync"

	"github.com/itsneelabh/intelcore/internal/corelog"
)

// Handler is a named subscriber callback. Handlers are isolated from each
// other and from the emitting caller: a panic or returned value is swallowed
// and logged, never propagated.
type Handler func(Envelope)

// DefaultStreamQueueCapacity is the bounded size of each streaming
// subscription's queue (spec §4.3).
const DefaultStreamQueueCapacity = 256

// Subscription is a single streaming consumer's view of the bus. Calling
// Close releases only this subscription's queue and registration; it never
// affects any other subscriber.
type Subscription struct {
	id       uint64
	bus      *Bus
	envelope chan Envelope
}

// Envelopes returns the channel this subscription receives emitted
// envelopes on.
func (s *Subscription) Envelopes() <-chan Envelope {
	return s.envelope
}

// Close unregisters this subscription and releases its queue.
func (s *Subscription) Close() {
	s.bus.removeSubscription(s.id)
}

// Bus is an in-process publish/subscribe hub. It is safe for concurrent use:
// Subscribe/Unsubscribe/StreamSubscribe may run concurrently with Emit, and
// each Emit snapshots its dispatch list so subscription changes mid-dispatch
// never race with (or see a half-applied) dispatch.
type Bus struct {
	mu            sync.RWMutex
	handlers      map[string][]namedHandler
	nextHandlerID uint64
	subs          map[uint64]*Subscription
	nextSubID     uint64
	queueCap      int
	logger        corelog.Logger
}

type namedHandler struct {
	id      uint64
	handler Handler
}

// HandlerToken identifies a registered handler for later Unsubscribe calls.
type HandlerToken struct {
	eventType string
	id        uint64
}

// New constructs an empty bus. logger may be nil (defaults to a no-op).
func New(logger corelog.Logger) *Bus {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	return &Bus{
		handlers: make(map[string][]namedHandler),
		subs:     make(map[uint64]*Subscription),
		queueCap: DefaultStreamQueueCapacity,
		logger:   logger,
	}
}

// Subscribe registers handler for eventType and returns a token usable with
// Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) HandlerToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextHandlerID++
	id := b.nextHandlerID
	b.handlers[eventType] = append(b.handlers[eventType], namedHandler{id: id, handler: handler})
	return HandlerToken{eventType: eventType, id: id}
}

// Unsubscribe removes the handler identified by token, if still registered.
func (b *Bus) Unsubscribe(token HandlerToken) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[token.eventType]
	for i, nh := range list {
		if nh.id == token.id {
			b.handlers[token.eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// StreamSubscribe registers a new streaming consumer and returns its
// Subscription. The consumer must call Close when done.
func (b *Bus) StreamSubscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	sub := &Subscription{
		id:       b.nextSubID,
		bus:      b,
		envelope: make(chan Envelope, b.queueCap),
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) removeSubscription(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Emit builds an envelope, dispatches it to every handler registered for
// eventType (in subscription order), then offers it to every active
// streaming subscription without blocking. A handler panic or a full
// streaming queue is logged and never surfaces to the caller.
func (b *Bus) Emit(eventType string, payload map[string]interface{}, sourceModule, correlationID string) Envelope {
	env := newEnvelope(eventType, payload, sourceModule, correlationID)

	b.mu.RLock()
	handlers := append([]namedHandler(nil), b.handlers[eventType]...)
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, nh := range handlers {
		b.dispatchSafely(nh.handler, env)
	}

	for _, s := range subs {
		select {
		case s.envelope <- env:
		default:
			b.logger.Warn("streaming queue full, dropping event", map[string]interface{}{
				"event_type": eventType,
				"event_id":   env.EventID,
			})
		}
	}

	return env
}

func (b *Bus) dispatchSafely(h Handler, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", map[string]interface{}{
				"event_type": env.EventType,
				"event_id":   env.EventID,
				"panic":      fmt.Sprintf("%v", r),
			})
		}
	}()
	h(env)
}

// --- process-wide singleton, exposed only through an accessor so tests can
// reset state between cases (design note in spec §9). ---

var (
	globalMu  sync.Mutex
	globalBus *Bus
)

// Get returns the process-wide bus, creating it on first use.
func Get() *Bus {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalBus == nil {
		globalBus = New(nil)
	}
	return globalBus
}

// Reset discards the process-wide bus. Intended for tests: the next Get()
// call constructs a fresh instance with no subscribers.
func Reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalBus = nil
}
