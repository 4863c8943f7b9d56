package events

import (
	"context"
	"sync"
	"time"

	"digido/models"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeSummaryGenerated  EventType = "summary_generated"
	EventTypeSummaryFailed     EventType = "summary_failed"
	EventTypeDeliveryExhausted EventType = "delivery_exhausted"
	EventTypeRunStale          EventType = "run_stale"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// SummaryGeneratedEvent is emitted after a summary run commits successfully
type SummaryGeneratedEvent struct {
	UserID        string
	RunID         int64
	SummaryDate   time.Time
	ContentLength int
	Channels      []models.Channel
}

func (e SummaryGeneratedEvent) Type() EventType {
	return EventTypeSummaryGenerated
}

// SummaryFailedEvent is emitted when content generation fails for a user
type SummaryFailedEvent struct {
	UserID      string
	RunID       int64
	SummaryDate time.Time
	Reason      string
}

func (e SummaryFailedEvent) Type() EventType {
	return EventTypeSummaryFailed
}

// DeliveryExhaustedEvent is emitted when an outbox entry runs out of
// delivery attempts and transitions to its terminal failed state.
// This is the operator-visible alert path: entries are never dropped silently.
type DeliveryExhaustedEvent struct {
	EntryID   int64
	UserID    string
	Channel   models.Channel
	Attempts  int
	LastError string
}

func (e DeliveryExhaustedEvent) Type() EventType {
	return EventTypeDeliveryExhausted
}

// RunStaleEvent is emitted for runs stuck in a live state past the staleness
// threshold. Stale runs are an alerting concern; they are never auto-retried.
type RunStaleEvent struct {
	RunID       int64
	UserID      string
	SummaryDate time.Time
	StartedAt   time.Time
}

func (e RunStaleEvent) Type() EventType {
	return EventTypeRunStale
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Call handlers asynchronously to avoid blocking the scheduler
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds pending events coupled to a unit of work and
// flushes them to the underlying bus only after a successful commit.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

// NewTransactionalBus creates a transactional bus over the real bus
func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

// Publish stashes an event until Flush
func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all pending events. Called after a successful DB commit.
func (b *TransactionalBus) Flush(ctx context.Context) {
	// Events outlive the transaction context
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops pending events. Called after a rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
