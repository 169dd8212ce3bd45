// Package bus is a synchronous publish/subscribe channel for messages.
//
// Publish delivers a message to every matching subscription before it
// returns, in registration order. Nothing is queued: a message that no
// subscription matches at publish time is dropped.
package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/symphoner/internal/message"
)

// SubscriptionID is the opaque handle returned by Subscribe.
type SubscriptionID string

// Handler receives messages that matched every predicate of its subscription.
type Handler func(message.Message)

type subscription struct {
	id      SubscriptionID
	preds   []message.Predicate
	handler Handler
	active  atomic.Bool
}

func (s *subscription) matches(m message.Message) bool {
	for _, pred := range s.preds {
		if !pred(m) {
			return false
		}
	}
	return true
}

// Bus is safe for concurrent use. Handlers may subscribe, unsubscribe and
// publish from inside a delivery.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for messages matching all preds. An empty
// predicate list matches everything.
func (b *Bus) Subscribe(preds []message.Predicate, handler Handler) SubscriptionID {
	sub := &subscription{
		id:      SubscriptionID(ulid.Make().String()),
		preds:   append([]message.Predicate(nil), preds...),
		handler: handler,
	}
	sub.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub.id
}

// Unsubscribe removes a subscription. It reports whether id was registered.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id != id {
			continue
		}
		sub.active.Store(false)
		b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
		return true
	}
	return false
}

// Publish delivers m synchronously. A panicking handler is logged and does
// not stop delivery to the remaining subscriptions.
func (b *Bus) Publish(m message.Message) {
	b.mu.RLock()
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		if !sub.active.Load() || !sub.matches(m) {
			continue
		}
		b.deliver(sub, m)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) deliver(sub *subscription, m message.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus handler panicked",
				"subscription", string(sub.id),
				"source", m.Head().Source.String(),
				"error", fmt.Sprint(r),
			)
		}
	}()
	sub.handler(m)
}
