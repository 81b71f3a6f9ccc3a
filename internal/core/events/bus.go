package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Event interface {
	EventType() string
	EventID() string
	OccurredAt() time.Time
	Payload() interface{}
}

// Keyed events carry a partition key for downstream brokers.
type Keyed interface {
	EventKey() string
}

type BaseEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) EventID() string {
	return e.ID
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func (e BaseEvent) Payload() interface{} {
	return e.Data
}

type Handler func(ctx context.Context, event Event) error

// Publisher is what producers depend on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// DefaultHandlerTimeout bounds each asynchronous handler run.
const DefaultHandlerTimeout = 30 * time.Second

type EventBus struct {
	handlers       map[string][]Handler
	logger         *slog.Logger
	handlerTimeout time.Duration
	mu             sync.RWMutex
	inflight       sync.WaitGroup
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:       make(map[string][]Handler),
		logger:         logger,
		handlerTimeout: DefaultHandlerTimeout,
	}
}

// WithHandlerTimeout changes the deadline given to asynchronous handlers.
func (eb *EventBus) WithHandlerTimeout(d time.Duration) *EventBus {
	if d > 0 {
		eb.handlerTimeout = d
	}
	return eb
}

func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	eb.logger.Info("event handler registered",
		"event_type", eventType,
		"total_handlers", len(eb.handlers[eventType]))
}

// Publish runs handlers asynchronously. Handlers get a context that outlives
// the caller, bounded by the handler timeout.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	handlers, exists := eb.handlers[event.EventType()]
	eb.mu.RUnlock()

	if !exists || len(handlers) == 0 {
		eb.logger.Debug("no handlers for event type", "event_type", event.EventType())
		return nil
	}

	eb.logger.Debug("publishing event",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"handlers_count", len(handlers))

	detached := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		eb.inflight.Add(1)
		go func(h Handler) {
			defer eb.inflight.Done()
			hctx, cancel := context.WithTimeout(detached, eb.handlerTimeout)
			defer cancel()
			if err := h(hctx, event); err != nil {
				eb.logger.Error("event handler failed",
					"event_type", event.EventType(),
					"event_id", event.EventID(),
					"error", err)
			}
		}(handler)
	}

	return nil
}

// Drain waits for in-flight asynchronous handlers or until ctx is done.
func (eb *EventBus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		eb.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
