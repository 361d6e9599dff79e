// Package notify delivers committed lifecycle events to observers.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rpggio/fundflow/internal/domain/event"
)

// Broker fans events out to in-process subscribers. A subscriber whose
// buffer is full misses the event rather than blocking the publisher; the
// drop is only logged. The event log is the at-least-once record: a
// subscriber that sees a gap in Seq resyncs from the engine's ListEvents
// (the list_events tool) starting after the last seq it handled.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]chan event.Event
	nextID int
	buffer int
	logger *slog.Logger
}

// NewBroker creates a broker whose subscriptions buffer up to buffer events.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broker{
		subs:   make(map[int]chan event.Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber. The returned func cancels the
// subscription and closes the channel.
func (b *Broker) Subscribe() (<-chan event.Event, func()) {
	ch := make(chan event.Event, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers evt to every current subscriber.
func (b *Broker) Publish(_ context.Context, evt event.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("subscriber buffer full, dropping event", "subscriber", id, "type", evt.Type, "seq", evt.Seq)
		}
	}
	return nil
}

// Multi publishes to several publishers and joins their errors.
type Multi []event.Publisher

// Publish hands evt to every publisher, continuing past failures.
func (m Multi) Publish(ctx context.Context, evt event.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
