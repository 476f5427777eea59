package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/szhem/osgi-utils/internal/filter"
	"github.com/szhem/osgi-utils/internal/metrics"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func publish(t *testing.T, r *Registry, iface string, attrs map[string]any) *Registration {
	t.Helper()
	reg, err := r.Publish(context.Background(), Descriptor{Interfaces: []string{iface}, Service: iface}, attrs)
	require.NoError(t, err)
	return reg
}

func TestPublish_AssignsIDsAndReservedAttributes(t *testing.T) {
	r := New()

	a := publish(t, r, "com.acme.Store", map[string]any{"region": "eu", AttrServiceID: int64(999)})
	b := publish(t, r, "com.acme.Store", nil)

	require.Equal(t, ServiceID(1), a.ID())
	require.Equal(t, ServiceID(2), b.ID())

	ref := a.Reference()
	require.Equal(t, []string{"com.acme.Store"}, ref.Interfaces())
	v, ok := ref.Attribute(AttrServiceID)
	require.True(t, ok)
	require.Equal(t, int64(1), v, "reserved attributes are overwritten")
	v, _ = ref.Attribute(AttrObjectClass)
	require.Equal(t, []string{"com.acme.Store"}, v)
	v, _ = ref.Attribute("region")
	require.Equal(t, "eu", v)

	attrs := ref.Attributes()
	attrs["region"] = "us"
	v, _ = ref.Attribute("region")
	require.Equal(t, "eu", v, "Attributes returns a copy")

	require.Equal(t, 2, r.Len())
}

func TestPublish_InvalidDescriptor(t *testing.T) {
	r := New()

	_, err := r.Publish(context.Background(), Descriptor{}, nil)
	require.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = r.Publish(context.Background(), Descriptor{Interfaces: []string{" "}}, nil)
	require.ErrorIs(t, err, ErrInvalidDescriptor)
	require.Zero(t, r.Len())
}

func TestWithdraw(t *testing.T) {
	r := New()
	reg := publish(t, r, "com.acme.Store", nil)

	require.NoError(t, reg.Withdraw(context.Background()))
	require.Zero(t, r.Len())

	err := reg.Withdraw(context.Background())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.GetService(reg.ID())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetService(t *testing.T) {
	r := New()
	reg := publish(t, r, "com.acme.Store", nil)

	svc, err := r.GetService(reg.ID())
	require.NoError(t, err)
	require.Equal(t, "com.acme.Store", svc)
}

func TestQuery(t *testing.T) {
	r := New()
	publish(t, r, "com.acme.Store", map[string]any{"region": "eu"})
	publish(t, r, "com.acme.Cache", map[string]any{"region": "eu"})
	publish(t, r, "com.acme.Store", map[string]any{"region": "us"})

	snap, err := r.Query(context.Background(), "(&(objectClass=com.acme.Store)(region=*))")
	require.NoError(t, err)
	require.Equal(t, uint64(3), snap.Seq)
	require.Len(t, snap.References, 2)
	require.Equal(t, ServiceID(1), snap.References[0].ID())
	require.Equal(t, ServiceID(3), snap.References[1].ID())

	all, err := r.Query(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all.References, 3)

	_, err = r.Query(context.Background(), "(objectClass=")
	require.ErrorIs(t, err, filter.ErrMalformed)
}

func TestSubscribe_DeliversMatchingEventsInOrder(t *testing.T) {
	r := New()
	rec := &recorder{}

	id, err := r.Subscribe(context.Background(), "(objectClass=com.acme.Store)", rec.listen)
	require.NoError(t, err)
	require.True(t, id.IsValid())

	store := publish(t, r, "com.acme.Store", nil)
	publish(t, r, "com.acme.Cache", nil)
	require.NoError(t, store.Withdraw(context.Background()))

	events := rec.snapshot()
	require.Len(t, events, 2)
	require.Equal(t, Added, events[0].Type)
	require.Equal(t, Removed, events[1].Type)
	require.Equal(t, store.ID(), events[1].Reference.ID())
	require.Equal(t, uint64(1), events[0].Seq)
	require.Equal(t, uint64(3), events[1].Seq, "the cache publication consumed seq 2")
}

func TestSubscribe_Errors(t *testing.T) {
	r := New()

	_, err := r.Subscribe(context.Background(), "(a=b)", nil)
	require.Error(t, err)

	_, err = r.Subscribe(context.Background(), "a=b", func(Event) {})
	require.ErrorIs(t, err, filter.ErrMalformed)
}

func TestUnsubscribe(t *testing.T) {
	r := New()
	rec := &recorder{}
	id, err := r.Subscribe(context.Background(), "(objectClass=*)", rec.listen)
	require.NoError(t, err)

	require.NoError(t, r.Unsubscribe(id))
	publish(t, r, "com.acme.Store", nil)
	require.Empty(t, rec.snapshot())

	require.ErrorIs(t, r.Unsubscribe(id), ErrNotFound)
}

// Events committed after a query carry a higher Seq than the snapshot, and
// earlier ones a lower or equal one.
func TestQueryAndSubscribe_SeqPartitionsEvents(t *testing.T) {
	r := New()
	rec := &recorder{}
	_, err := r.Subscribe(context.Background(), "(objectClass=*)", rec.listen)
	require.NoError(t, err)

	publish(t, r, "a", nil)
	publish(t, r, "b", nil)
	snap, err := r.Query(context.Background(), "(objectClass=*)")
	require.NoError(t, err)
	publish(t, r, "c", nil)

	for _, ev := range rec.snapshot() {
		inSnapshot := false
		for _, ref := range snap.References {
			if ref.ID() == ev.Reference.ID() {
				inSnapshot = true
			}
		}
		require.Equal(t, inSnapshot, ev.Seq <= snap.Seq, "event %d", ev.Seq)
	}
}

func TestFeed(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := r.Feed(ctx)
	reg := publish(t, r, "com.acme.Store", nil)

	select {
	case ev := <-feed:
		require.Equal(t, reg.ID(), ev.Payload.Reference.ID())
		require.Equal(t, Added, ev.Payload.Type)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for feed event")
	}
}

func TestSync(t *testing.T) {
	r := New()
	direct := publish(t, r, "direct", nil)
	rec := &recorder{}
	_, err := r.Subscribe(context.Background(), "(objectClass=com.acme.Store)", rec.listen)
	require.NoError(t, err)

	pubs := []Publication{
		{Key: "1", Interfaces: []string{"com.acme.Store"}, Attributes: map[string]any{"region": "eu"}},
		{Key: "2", Interfaces: []string{"com.acme.Store"}, Attributes: map[string]any{"region": "us"}},
	}
	added, removed, err := r.Sync(context.Background(), pubs)
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.Zero(t, removed)
	require.Equal(t, 3, r.Len())

	added, removed, err = r.Sync(context.Background(), pubs)
	require.NoError(t, err)
	require.Zero(t, added, "unchanged publications are left alone")
	require.Zero(t, removed)

	pubs = []Publication{
		{Key: "2", Interfaces: []string{"com.acme.Store"}, Attributes: map[string]any{"region": "ap"}},
	}
	added, removed, err = r.Sync(context.Background(), pubs)
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.Equal(t, 2, removed)

	snap, err := r.Query(context.Background(), "(objectClass=com.acme.Store)")
	require.NoError(t, err)
	require.Len(t, snap.References, 1)
	v, _ := snap.References[0].Attribute("region")
	require.Equal(t, "ap", v)

	_, err = r.GetService(direct.ID())
	require.NoError(t, err, "directly published services survive sync")
	require.Len(t, rec.snapshot(), 5)
}

func TestClose(t *testing.T) {
	r := New()
	reg := publish(t, r, "a", nil)
	feed := r.Feed(context.Background())

	r.Close()
	r.Close()

	_, ok := <-feed
	require.False(t, ok)

	_, err := r.Publish(context.Background(), Descriptor{Interfaces: []string{"a"}}, nil)
	require.True(t, errors.Is(err, ErrClosed))
	require.ErrorIs(t, r.Withdraw(context.Background(), reg.ID()), ErrClosed)
	_, err = r.Subscribe(context.Background(), "(a=b)", func(Event) {})
	require.ErrorIs(t, err, ErrClosed)
	_, err = r.Query(context.Background(), "")
	require.ErrorIs(t, err, ErrClosed)
}

func TestMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := New(WithMetrics(m))

	reg := publish(t, r, "a", nil)
	publish(t, r, "b", nil)
	require.Equal(t, 2.0, testutil.ToFloat64(m.RegisteredServices))

	require.NoError(t, reg.Withdraw(context.Background()))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RegisteredServices))
}

func TestConcurrentPublishers_SeqIsStrictlyIncreasing(t *testing.T) {
	r := New()
	rec := &recorder{}
	_, err := r.Subscribe(context.Background(), "(objectClass=*)", rec.listen)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				reg, err := r.Publish(context.Background(), Descriptor{Interfaces: []string{"x"}}, nil)
				if err != nil {
					return
				}
				_ = reg.Withdraw(context.Background())
			}
		}()
	}
	wg.Wait()

	events := rec.snapshot()
	require.Len(t, events, 8*25*2)
	for i := 1; i < len(events); i++ {
		require.Equal(t, events[i-1].Seq+1, events[i].Seq)
	}
}

func TestServiceID_RoundTrip(t *testing.T) {
	id, err := ParseServiceID(ServiceID(42).String())
	require.NoError(t, err)
	require.Equal(t, ServiceID(42), id)

	_, err = ParseServiceID("x")
	require.Error(t, err)
}

func TestFilterCacheDisabled(t *testing.T) {
	r := New(WithFilterCacheExpiration(0))
	publish(t, r, "com.acme.Store", map[string]any{"region": "eu"})

	for range 3 {
		snap, err := r.Query(context.Background(), "(region=eu)")
		require.NoError(t, err)
		require.Len(t, snap.References, 1)
	}

	_, err := r.Query(context.Background(), "(region=")
	require.ErrorIs(t, err, filter.ErrMalformed)
}
