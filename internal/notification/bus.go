package notification

import (
	"context"
	"sync"
	"time"
)

// Topic names an event kind published on the Bus.
type Topic string

const (
	TopicPaymentCreated     Topic = "payment.created"
	TopicScreenshotUploaded Topic = "payment.screenshot_uploaded"
	TopicPaymentVerified    Topic = "payment.verified"
	TopicPaymentRejected    Topic = "payment.rejected"
	TopicAccessGranted      Topic = "access.granted"
	TopicAccessRevoked      Topic = "access.revoked"
)

// Event is the typed message carried by the Bus. Fields irrelevant to a
// topic stay zero.
type Event struct {
	Topic      Topic
	TelegramID int64
	PaymentID  string
	Amount     int64
	Currency   string
	AccessLink string
	ExpiresAt  *time.Time
	Reason     string
}

// EventHandler receives events of a subscribed topic.
type EventHandler func(ctx context.Context, e Event)

type subscription struct {
	id int
	fn EventHandler
}

// Bus is an in-process publish/subscribe channel. Handlers run synchronously
// on the publishing goroutine in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic][]subscription
}

// NewBus builds an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers fn for topic and returns a function removing it.
func (b *Bus) Subscribe(topic Topic, fn EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to the subscribers of e.Topic. A nil Bus drops events.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[e.Topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ctx, e)
	}
}
