package events

import (
	"sync"
	"sync/atomic"
)

// Subscription is one listener on a topic. Read from C; call Close when done.
// The channel is closed by Close, never by the bus.
type Subscription struct {
	C <-chan any

	topic   Event
	ch      chan any
	bus     *Bus
	dropped atomic.Int64
	once    sync.Once
}

// Close detaches the subscription from the bus and closes C. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.detach(s)
		close(s.ch)
	})
}

// Dropped reports how many payloads were discarded because the subscriber
// fell behind its buffer.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Bus routes payloads from publishers to topic subscribers. Publish never
// blocks: a full subscriber loses the payload, not the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]*Subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]*Subscription)}
}

// Subscribe attaches a listener with the given channel buffer.
func (b *Bus) Subscribe(topic Event, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan any, buffer)
	sub := &Subscription{C: ch, topic: topic, ch: ch, bus: b}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers payload to every current subscriber of the topic.
func (b *Bus) Publish(topic Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- payload:
		default:
			sub.dropped.Add(1)
		}
	}
}

func (b *Bus) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
