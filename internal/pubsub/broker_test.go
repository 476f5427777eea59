package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func receive[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		require.FailNow(t, "no event delivered")
		return Event[T]{}
	}
}

func TestBroker_DeliversToEverySubscriber(t *testing.T) {
	b := New[string](WithName("registry"))
	defer b.Close()
	require.Equal(t, "registry", b.Name())

	subs := []<-chan Event[string]{
		b.Subscribe(context.Background()),
		b.Subscribe(context.Background()),
	}
	require.Equal(t, 2, b.SubscriberCount())

	b.Publish(AddedEvent, "#1")
	for _, ch := range subs {
		ev := receive(t, ch)
		require.Equal(t, AddedEvent, ev.Type)
		require.Equal(t, "#1", ev.Payload)
		require.False(t, ev.Timestamp.IsZero())
	}
}

func TestBroker_UnsubscribesWhenContextEnds(t *testing.T) {
	b := New[int]()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, time.Millisecond)
	_, ok := <-ch
	require.False(t, ok)
}

func TestBroker_FullSubscriberDropsAndReports(t *testing.T) {
	var (
		mu    sync.Mutex
		feeds []string
	)
	b := New[int](WithName("changes"), WithBuffer(1), WithDropHook(func(feed string) {
		mu.Lock()
		defer mu.Unlock()
		feeds = append(feeds, feed)
	}))
	defer b.Close()

	ch := b.Subscribe(context.Background())
	b.Publish(AddedEvent, 1)
	b.Publish(AddedEvent, 2)
	b.Publish(RemovedEvent, 3)

	require.Equal(t, 1, receive(t, ch).Payload)
	require.Equal(t, uint64(2), b.Dropped())
	require.Equal(t, []string{"changes", "changes"}, feeds)
	require.Empty(t, ch)
}

func TestBroker_NonPositiveBufferKeepsDefault(t *testing.T) {
	for _, n := range []int{0, -5} {
		b := New[int](WithBuffer(n))
		ch := b.Subscribe(context.Background())
		for i := range defaultBufferSize {
			b.Publish(AddedEvent, i)
		}
		require.Len(t, ch, defaultBufferSize)
		require.Zero(t, b.Dropped())
		b.Close()
	}
}

func TestBroker_Close(t *testing.T) {
	b := New[string]()
	ch := b.Subscribe(context.Background())

	b.Close()
	b.Close()

	_, ok := <-ch
	require.False(t, ok)
	require.Zero(t, b.SubscriberCount())

	late := b.Subscribe(context.Background())
	_, ok = <-late
	require.False(t, ok, "subscribing to a closed broker yields a closed channel")

	require.NotPanics(t, func() { b.Publish(AddedEvent, "ignored") })
	require.Zero(t, b.Dropped())
}

func TestBroker_CancelAfterCloseIsHarmless(t *testing.T) {
	b := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	b.Subscribe(ctx)
	b.Close()
	require.NotPanics(t, func() { cancel() })
}

func TestBroker_ConcurrentPublishAndCancel(t *testing.T) {
	b := New[int](WithBuffer(4))
	defer b.Close()

	var wg sync.WaitGroup
	for range 8 {
		ctx, cancel := context.WithCancel(context.Background())
		ch := b.Subscribe(ctx)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			for i := range 50 {
				b.Publish(AddedEvent, i)
			}
			cancel()
		}()
	}
	wg.Wait()
	require.Zero(t, b.SubscriberCount())
}

// Every published event is either delivered or counted as dropped.
func TestBroker_DeliveredPlusDroppedIsPublished(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buf := rapid.IntRange(1, 8).Draw(t, "buffer")
		n := rapid.IntRange(0, 32).Draw(t, "published")

		b := New[int](WithBuffer(buf))
		ch := b.Subscribe(context.Background())
		for i := range n {
			b.Publish(AddedEvent, i)
		}
		b.Close()

		delivered := 0
		for ev := range ch {
			if ev.Payload != delivered {
				t.Fatalf("payload %d delivered out of order, want %d", ev.Payload, delivered)
			}
			delivered++
		}
		if delivered+int(b.Dropped()) != n {
			t.Fatalf("delivered %d + dropped %d != published %d", delivered, b.Dropped(), n)
		}
		if delivered != min(n, buf) {
			t.Fatalf("delivered %d, want %d", delivered, min(n, buf))
		}
	})
}
