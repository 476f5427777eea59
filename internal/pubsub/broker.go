package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 64

// Broker fans events out to any number of subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event, which is counted and
// reported to the drop hook.
type Broker[T any] struct {
	name       string
	bufferSize int
	onDrop     func(feed string)

	mu     sync.RWMutex
	subs   map[chan Event[T]]struct{}
	closed bool

	dropped atomic.Uint64
}

var (
	_ Subscriber[struct{}] = (*Broker[struct{}])(nil)
	_ Publisher[struct{}]  = (*Broker[struct{}])(nil)
)

// Option configures a Broker.
type Option func(*options)

type options struct {
	name       string
	bufferSize int
	onDrop     func(feed string)
}

// WithName names the feed in drop reports.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithBuffer sets the per-subscriber channel capacity. Sizes below 1 keep
// the default of 64.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithDropHook calls fn with the feed name for every dropped delivery. fn
// runs on the publishing goroutine and must not block.
func WithDropHook(fn func(feed string)) Option {
	return func(o *options) { o.onDrop = fn }
}

// New creates a broker.
func New[T any](opts ...Option) *Broker[T] {
	o := options{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broker[T]{
		name:       o.name,
		bufferSize: o.bufferSize,
		onDrop:     o.onDrop,
		subs:       make(map[chan Event[T]]struct{}),
	}
}

// Name returns the feed name given to WithName.
func (b *Broker[T]) Name() string {
	return b.name
}

// Subscribe returns a channel receiving every event published from now on.
// It is closed when ctx is done or the broker is closed; after Close it is
// returned already closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(chan Event[T], b.bufferSize)
	if b.closed {
		close(sub)
		return sub
	}
	b.subs[sub] = struct{}{}

	context.AfterFunc(ctx, func() { b.unsubscribe(sub) })
	return sub
}

func (b *Broker[T]) unsubscribe(sub chan Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub)
}

// Publish stamps payload and offers it to every subscriber.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	event := Event[T]{Type: eventType, Payload: payload, Timestamp: time.Now()}
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(b.name)
			}
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub)
	}
	clear(b.subs)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}
