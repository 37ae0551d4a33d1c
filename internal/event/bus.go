package event

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/holrepl/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// Token identifies a subscription. The zero Token is never issued.
type Token uint64

// String implements fmt.Stringer.
func (t Token) String() string {
	return fmt.Sprintf("sub-%d", uint64(t))
}

const wildcard = "*"

type subscription struct {
	token     Token
	eventType string
	handler   Handler
}

// Bus is a synchronous pub-sub event bus.
//
// Handlers run on the publishing goroutine in registration order. The kernel
// publishes from a single goroutine, so subscribers observe its events in
// FIFO order without further locking.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription
	nextToken     atomic.Uint64
	logger        *logging.Logger
}

// NewBus creates a new event bus. A nil logger discards handler panics.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{
		subscriptions: make(map[string][]subscription),
		logger:        logger.WithComponent("event"),
	}
}

// Subscribe registers a handler for a specific event type and returns a
// token that can be passed to Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	token := Token(b.nextToken.Add(1))
	b.subscriptions[eventType] = append(b.subscriptions[eventType], subscription{
		token:     token,
		eventType: eventType,
		handler:   handler,
	})
	return token
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) Token {
	return b.Subscribe(wildcard, handler)
}

// Unsubscribe removes a subscription. It reports whether the token was found.
func (b *Bus) Unsubscribe(token Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.token != token {
				continue
			}
			// Copy so a Publish holding the old slice is unaffected.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.subscriptions, eventType)
			} else {
				b.subscriptions[eventType] = next
			}
			return true
		}
	}
	return false
}

// Publish dispatches an event to all registered handlers.
// Specific handlers are called first, then wildcard handlers.
// A panicking handler is logged and recovered; delivery continues.
func (b *Bus) Publish(event Event) {
	eventType := event.EventType()

	b.mu.RLock()
	specific := b.subscriptions[eventType]
	wildcards := b.subscriptions[wildcard]
	b.mu.RUnlock()

	for _, sub := range specific {
		b.safeCall(sub, event)
	}
	for _, sub := range wildcards {
		b.safeCall(sub, event)
	}
}

func (b *Bus) safeCall(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", event.EventType(),
				"subscription", sub.token.String(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	sub.handler(event)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string][]subscription)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}
