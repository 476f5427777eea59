// Package registry is an in-memory service registry: services are published
// under interface names with attributes, found by filter, and watched through
// subscriptions that receive sequence-numbered added/removed events.
package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/szhem/osgi-utils/internal/cachemanager"
	"github.com/szhem/osgi-utils/internal/filter"
	"github.com/szhem/osgi-utils/internal/log"
	"github.com/szhem/osgi-utils/internal/metrics"
	"github.com/szhem/osgi-utils/internal/pubsub"
	"github.com/szhem/osgi-utils/internal/tracing"
)

var (
	// ErrNotFound is returned for unknown service or subscription IDs.
	ErrNotFound = errors.New("not found")

	// ErrInvalidDescriptor is returned when a publication names no interface
	// or an empty one.
	ErrInvalidDescriptor = errors.New("invalid service descriptor")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("registry closed")
)

type service struct {
	ref    Reference
	object any
}

type subscription struct {
	filter   *filter.Filter
	listener Listener
}

// Registry is safe for concurrent use.
type Registry struct {
	// dispatch serializes mutations together with their event delivery, so
	// listeners observe events in Seq order.
	dispatch sync.Mutex

	mu       sync.RWMutex
	seq      uint64
	lastID   ServiceID
	services map[ServiceID]*service
	subs     map[SubscriptionID]*subscription
	synced   map[string]ServiceID
	closed   bool

	filters   *cachemanager.Loader[string, *filter.Filter, string]
	filterTTL time.Duration
	broker    *pubsub.Broker[Event]
	feedBuf   int
	tracer    trace.Tracer
	metrics   *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithTracer sets the tracer used for publish, withdraw and query spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// WithMetrics enables instrumentation, including the filter cache.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithFeedBuffer sets the per-subscriber buffer of the Feed broker.
func WithFeedBuffer(n int) Option {
	return func(r *Registry) { r.feedBuf = n }
}

// WithFilterCacheExpiration sets how long compiled filters stay cached after
// their last use. Zero disables the cache.
func WithFilterCacheExpiration(d time.Duration) Option {
	return func(r *Registry) { r.filterTTL = d }
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		services:  make(map[ServiceID]*service),
		subs:      make(map[SubscriptionID]*subscription),
		synced:    make(map[string]ServiceID),
		tracer:    tracing.NoopTracer(),
		filterTTL: cachemanager.DefaultExpiration,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.broker = pubsub.New[Event](
		pubsub.WithName("registry"),
		pubsub.WithBuffer(r.feedBuf),
		pubsub.WithDropHook(r.metrics.IncrementFeedDropped),
	)

	var cache cachemanager.Cache[string, *filter.Filter]
	if r.filterTTL > 0 {
		mem := cachemanager.NewMemory[string, *filter.Filter]("compiled-filters", r.filterTTL)
		r.metrics.RegisterCache(mem)
		cache = mem
	}
	r.filters = cachemanager.NewLoader(cache, r.filterTTL,
		func(_ context.Context, s string) (*filter.Filter, error) {
			return filter.Parse(s)
		})

	return r
}

// compile returns the cached compiled form of s.
func (r *Registry) compile(ctx context.Context, s string) (*filter.Filter, error) {
	return r.filters.GetTouch(ctx, s, s)
}

// Publish registers a service and notifies matching subscriptions.
// Reserved attributes in attrs are overwritten.
func (r *Registry) Publish(ctx context.Context, d Descriptor, attrs map[string]any) (*Registration, error) {
	_, span := r.tracer.Start(ctx, tracing.SpanRegistryPublish)
	ref, err := r.publish(d, attrs)
	if err == nil {
		span.SetAttributes(
			attribute.Int64(tracing.AttrServiceID, int64(ref.ID())),
			attribute.StringSlice(tracing.AttrInterfaces, ref.interfaces),
		)
	}
	tracing.End(span, err)
	if err != nil {
		return nil, err
	}
	return &Registration{registry: r, ref: ref}, nil
}

func (r *Registry) publish(d Descriptor, attrs map[string]any) (Reference, error) {
	if err := validateDescriptor(d); err != nil {
		return Reference{}, err
	}

	r.dispatch.Lock()
	defer r.dispatch.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Reference{}, ErrClosed
	}
	r.lastID++
	r.seq++
	ref := newReference(r.lastID, d.Interfaces, attrs)
	r.services[ref.id] = &service{ref: ref, object: d.Service}
	ev := Event{Type: Added, Seq: r.seq, Reference: ref}
	targets := r.matchingListeners(ref)
	n := len(r.services)
	r.mu.Unlock()

	log.Debug(log.CatRegistry, "service published", "id", ref.id, "interfaces", strings.Join(ref.interfaces, ","), "seq", ev.Seq)
	r.metrics.SetRegisteredServices(n)
	r.deliver(ev, targets)
	return ref, nil
}

// Withdraw unpublishes a service. Unknown IDs wrap ErrNotFound.
func (r *Registry) Withdraw(ctx context.Context, id ServiceID) error {
	_, span := r.tracer.Start(ctx, tracing.SpanRegistryWithdraw,
		trace.WithAttributes(attribute.Int64(tracing.AttrServiceID, int64(id))))
	err := r.withdraw(id)
	tracing.End(span, err)
	return err
}

func (r *Registry) withdraw(id ServiceID) error {
	r.dispatch.Lock()
	defer r.dispatch.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	svc, ok := r.services[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	delete(r.services, id)
	r.seq++
	ev := Event{Type: Removed, Seq: r.seq, Reference: svc.ref}
	targets := r.matchingListeners(svc.ref)
	n := len(r.services)
	r.mu.Unlock()

	log.Debug(log.CatRegistry, "service withdrawn", "id", id, "seq", ev.Seq)
	r.metrics.SetRegisteredServices(n)
	r.deliver(ev, targets)
	return nil
}

// matchingListeners must be called with mu held.
func (r *Registry) matchingListeners(ref Reference) []Listener {
	var out []Listener
	for _, sub := range r.subs {
		if sub.filter.Match(ref.attrs) {
			out = append(out, sub.listener)
		}
	}
	return out
}

func (r *Registry) deliver(ev Event, targets []Listener) {
	for _, l := range targets {
		l(ev)
	}
	r.broker.Publish(feedType(ev.Type), ev)
}

func feedType(t EventType) pubsub.EventType {
	if t == Removed {
		return pubsub.RemovedEvent
	}
	return pubsub.AddedEvent
}

// Query returns the services matching filterStr together with the sequence
// number they reflect. An empty filter matches everything.
func (r *Registry) Query(ctx context.Context, filterStr string) (Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, tracing.SpanRegistryQuery,
		trace.WithAttributes(attribute.String(tracing.AttrFilter, filterStr)))

	var f *filter.Filter
	if filterStr != "" {
		var err error
		f, err = r.compile(ctx, filterStr)
		if err != nil {
			tracing.End(span, err)
			return Snapshot{}, err
		}
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		tracing.End(span, ErrClosed)
		return Snapshot{}, ErrClosed
	}
	snap := Snapshot{Seq: r.seq}
	for _, svc := range r.services {
		if f == nil || f.Match(svc.ref.attrs) {
			snap.References = append(snap.References, svc.ref)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(snap.References, func(a, b Reference) int {
		return compareIDs(a.id, b.id)
	})
	span.SetAttributes(
		attribute.Int64(tracing.AttrSnapshotSeq, int64(snap.Seq)),
		attribute.Int(tracing.AttrSnapshotSize, len(snap.References)),
	)
	tracing.End(span, nil)
	return snap, nil
}

func compareIDs(a, b ServiceID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Subscribe registers listener for services matching filterStr. The listener
// sees every event committed after Subscribe returns.
func (r *Registry) Subscribe(ctx context.Context, filterStr string, listener Listener) (SubscriptionID, error) {
	if listener == nil {
		return "", errors.New("listener cannot be nil")
	}
	f, err := r.compile(ctx, filterStr)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrClosed
	}
	id := NewSubscriptionID()
	r.subs[id] = &subscription{filter: f, listener: listener}

	log.Debug(log.CatRegistry, "subscribed", "subscription", id, "filter", f)
	return id, nil
}

// Unsubscribe removes a subscription. Once it returns, the listener is not
// called again.
func (r *Registry) Unsubscribe(id SubscriptionID) error {
	// Taking dispatch waits out an in-flight delivery.
	r.dispatch.Lock()
	defer r.dispatch.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	delete(r.subs, id)

	log.Debug(log.CatRegistry, "unsubscribed", "subscription", id)
	return nil
}

// GetService returns the object published under id.
func (r *Registry) GetService(id ServiceID) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	return svc.object, nil
}

// Reference returns the reference of a published service.
func (r *Registry) Reference(id ServiceID) (Reference, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	if !ok {
		return Reference{}, false
	}
	return svc.ref, true
}

// Len returns the number of published services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// Feed streams every registry event, best effort. Slow readers miss events;
// use Subscribe when every event matters.
func (r *Registry) Feed(ctx context.Context) <-chan pubsub.Event[Event] {
	return r.broker.Subscribe(ctx)
}

// Sync reconciles the services previously synced from an external store with
// pubs: new keys are published, missing keys withdrawn, and changed ones
// republished under a new ID. Services published directly are left alone.
func (r *Registry) Sync(ctx context.Context, pubs []Publication) (added, removed int, err error) {
	r.mu.RLock()
	current := maps.Clone(r.synced)
	r.mu.RUnlock()

	want := make(map[string]Publication, len(pubs))
	for _, p := range pubs {
		want[p.Key] = p
	}

	for key, id := range current {
		p, keep := want[key]
		if keep && r.unchanged(id, p) {
			delete(want, key)
			continue
		}
		if err := r.Withdraw(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			return added, removed, err
		}
		r.forget(key)
		removed++
	}

	keys := slices.Sorted(maps.Keys(want))
	for _, key := range keys {
		p := want[key]
		reg, err := r.Publish(ctx, Descriptor{Interfaces: p.Interfaces, Service: p}, p.Attributes)
		if err != nil {
			return added, removed, fmt.Errorf("sync %s: %w", key, err)
		}
		r.mu.Lock()
		r.synced[key] = reg.ID()
		r.mu.Unlock()
		added++
	}

	if added > 0 || removed > 0 {
		log.Info(log.CatRegistry, "registry synced", "added", added, "removed", removed)
	}
	return added, removed, nil
}

func (r *Registry) unchanged(id ServiceID, p Publication) bool {
	ref, ok := r.Reference(id)
	if !ok || !slices.Equal(ref.interfaces, p.Interfaces) {
		return false
	}
	want := newReference(id, p.Interfaces, p.Attributes)
	return reflect.DeepEqual(ref.attrs, want.attrs)
}

func (r *Registry) forget(key string) {
	r.mu.Lock()
	delete(r.synced, key)
	r.mu.Unlock()
}

// Close drops all subscriptions and closes the feed. Further mutations fail
// with ErrClosed.
func (r *Registry) Close() {
	r.dispatch.Lock()
	defer r.dispatch.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	clear(r.subs)
	r.mu.Unlock()

	r.broker.Close()
}

func validateDescriptor(d Descriptor) error {
	if len(d.Interfaces) == 0 {
		return fmt.Errorf("%w: no interfaces", ErrInvalidDescriptor)
	}
	for _, name := range d.Interfaces {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty interface name", ErrInvalidDescriptor)
		}
	}
	return nil
}

// Registration is returned by Publish and can withdraw what it published.
type Registration struct {
	registry *Registry
	ref      Reference
}

func (g *Registration) ID() ServiceID {
	return g.ref.id
}

func (g *Registration) Reference() Reference {
	return g.ref
}

// Withdraw withdraws the service. A second call wraps ErrNotFound.
func (g *Registration) Withdraw(ctx context.Context) error {
	return g.registry.Withdraw(ctx, g.ref.id)
}
