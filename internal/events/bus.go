// Package events provides a small in-process publish/subscribe bus used to
// stream harvest progress to interested observers (the daemon's cycle log,
// a status follower) without coupling them to the harvester.
package events

import (
	"context"
	"sync"
)

// Kind labels what a published event describes.
type Kind string

const (
	// CycleCompleted fires after every harvest cycle with its report.
	CycleCompleted Kind = "cycle_completed"
	// GraphStable fires when a cycle concludes the graph has converged.
	GraphStable Kind = "graph_stable"
)

// Event pairs a kind with a typed payload.
type Event[T any] struct {
	Kind    Kind
	Payload T
}

// defaultBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events rather than stalling the
// publisher.
const defaultBuffer = 128

// Bus fans events out to any number of subscribers. Publishing never
// blocks; slow subscribers drop events. The zero value is not usable,
// construct with NewBus.
type Bus[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event[T]
}

// NewBus creates an empty Bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]chan Event[T])}
}

// Subscribe registers a new subscriber. The returned channel delivers
// events until ctx is cancelled, then closes.
func (b *Bus[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T], defaultBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish delivers an event to every current subscriber. Subscribers whose
// buffers are full miss this event.
func (b *Bus[T]) Publish(kind Kind, payload T) {
	evt := Event[T]{Kind: kind, Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount reports how many subscriptions are currently live.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
