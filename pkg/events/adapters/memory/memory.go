// Package memory provides an in-process events.Bus implementation: fan-out
// to subscribers of a topic, invoked synchronously on the publishing
// goroutine in subscription order.
package memory

import (
	"context"
	"sync"

	"github.com/open-collar/reliablequeue/pkg/events"
	"github.com/open-collar/reliablequeue/pkg/logger"
)

// Bus is an in-memory, goroutine-safe events.Bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]events.Handler
	closed      bool
}

// New creates an empty in-memory Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]events.Handler)}
}

// Publish invokes every handler subscribed to topic synchronously. A
// handler error is logged and does not stop delivery to the remaining
// subscribers, since domain-event consumers (metrics, audit logging) must
// not be able to affect one another.
func (b *Bus) Publish(ctx context.Context, topic string, event events.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return events.ErrBusClosed
	}
	handlers := append([]events.Handler(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			logger.L().WarnContext(ctx, "event handler failed", "topic", topic, "event_type", event.Type, "error", err)
		}
	}
	return nil
}

// Subscribe registers handler against topic. There is no Unsubscribe; the
// bus lives for the process lifetime.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return events.ErrBusClosed
	}
	b.subscribers[topic] = append(b.subscribers[topic], handler)
	return nil
}

// Close marks the bus closed; further Publish/Subscribe calls fail.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = nil
	return nil
}
