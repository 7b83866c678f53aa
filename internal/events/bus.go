// Package events is a typed publish/subscribe fan-out used to notify
// observers (telemetry, UI) without coupling them to the simulation loop.
package events

import (
	"sync"
	"sync/atomic"
)

// Bus fans published values out to every registered subscription.
//
// Publish never blocks: a subscriber whose buffer is full misses the value and
// its drop counter is incremented. Subscribers are notified in registration
// order.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs []*Subscription[T]
}

// Subscription is one observer's channel.
type Subscription[T any] struct {
	C <-chan T

	ch      chan T
	bus     *Bus[T]
	dropped atomic.Uint64
	once    sync.Once
}

// NewBus creates a bus with no subscribers.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers a new observer with a channel buffer of size buffer.
func (b *Bus[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan T, buffer)
	s := &Subscription[T]{C: ch, ch: ch, bus: b}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

// Publish delivers v to every subscriber that has room for it.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- v:
		default:
			s.dropped.Add(1)
		}
	}
}

// Len is the number of registered subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		for i, other := range b.subs {
			if other == s {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		// no Publish can be sending while the write lock is held
		close(s.ch)
		b.mu.Unlock()
	})
}

// Dropped is how many values this subscriber missed because its buffer was
// full.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}
