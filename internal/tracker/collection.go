// Package tracker keeps a live, filtered view of a registry. A Collection
// subscribes under a filter, backfills what already matches, then follows
// added and removed events while callers read it concurrently.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/szhem/osgi-utils/internal/filter"
	"github.com/szhem/osgi-utils/internal/log"
	"github.com/szhem/osgi-utils/internal/metrics"
	"github.com/szhem/osgi-utils/internal/proxy"
	"github.com/szhem/osgi-utils/internal/pubsub"
	"github.com/szhem/osgi-utils/internal/registry"
	"github.com/szhem/osgi-utils/internal/resolver"
	"github.com/szhem/osgi-utils/internal/tracing"
)

var (
	// ErrTrackingSetup wraps failures of Start. The collection stays inactive.
	ErrTrackingSetup = errors.New("tracking setup failed")

	// ErrProxyConstruction wraps per-entry proxy failures reported on the
	// Errors feed. The entry is skipped.
	ErrProxyConstruction = errors.New("proxy construction failed")

	// ErrExhausted is returned by Iterator.Next past the last entry.
	ErrExhausted = errors.New("iterator exhausted")
)

// Registry is the part of the registry a Collection consumes.
type Registry interface {
	proxy.Context
	Query(ctx context.Context, filter string) (registry.Snapshot, error)
	Subscribe(ctx context.Context, filter string, l registry.Listener) (registry.SubscriptionID, error)
	Unsubscribe(id registry.SubscriptionID) error
}

// State is the activation state of a Collection.
type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// TrackedEntry is one element of a Collection.
type TrackedEntry struct {
	Reference registry.Reference
	Proxy     any
	// Position is the insertion order, unique within a Collection.
	Position uint64
}

// session is one Start..Stop cycle.
type session struct {
	subID       registry.SubscriptionID
	snapshotSeq uint64
	events      chan registry.Event
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// listen runs on the registry's dispatch goroutine. It waits for room in the
// channel unless the session is stopped.
func (s *session) listen(ev registry.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// Collection is a live view of the registry entries matching a criterion.
// All methods are safe for concurrent use.
type Collection struct {
	reg       Registry
	criterion filter.Criterion
	filterStr string
	creator   proxy.Creator

	resolver            resolver.Resolver
	tracer              trace.Tracer
	metrics             *metrics.Metrics
	bufferSize          int
	backfillConcurrency int

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu      sync.RWMutex
	state   State
	session *session
	entries []TrackedEntry
	index   map[registry.ServiceID]struct{}
	nextPos uint64

	changes *pubsub.Broker[TrackedEntry]
	errs    *pubsub.Broker[error]
}

var _ pubsub.Subscriber[TrackedEntry] = (*Collection)(nil)

// New creates an inactive collection. A nil creator uses proxy.Default.
func New(reg Registry, c filter.Criterion, creator proxy.Creator, opts ...Option) (*Collection, error) {
	if reg == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if c == nil {
		return nil, errors.New("criterion cannot be nil")
	}
	if creator == nil {
		creator = proxy.Default{}
	}

	col := &Collection{
		reg:                 reg,
		criterion:           c,
		filterStr:           c.Value(),
		creator:             creator,
		tracer:              tracing.NoopTracer(),
		bufferSize:          DefaultBufferSize,
		backfillConcurrency: DefaultBackfillConcurrency,
		index:               make(map[registry.ServiceID]struct{}),
	}
	for _, opt := range opts {
		opt(col)
	}
	col.changes = pubsub.New[TrackedEntry](pubsub.WithName("changes"),
		pubsub.WithBuffer(col.bufferSize), pubsub.WithDropHook(col.metrics.IncrementFeedDropped))
	col.errs = pubsub.New[error](pubsub.WithName("errors"),
		pubsub.WithBuffer(col.bufferSize), pubsub.WithDropHook(col.metrics.IncrementFeedDropped))

	return col, nil
}

// Filter returns the canonical filter string the collection subscribes with.
func (c *Collection) Filter() string {
	return c.filterStr
}

// Start subscribes, backfills the entries already matching, and starts
// following events. Starting an active collection does nothing.
func (c *Collection) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.Active() {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, tracing.SpanTrackerStart,
		trace.WithAttributes(attribute.String(tracing.AttrFilter, c.filterStr)))

	err := c.start(ctx)
	tracing.End(span, err)
	if err != nil {
		log.ErrorErr(log.CatTracker, "start failed", err, "filter", c.filterStr)
		return fmt.Errorf("%w: %w", ErrTrackingSetup, err)
	}
	return nil
}

func (c *Collection) start(ctx context.Context) error {
	if _, err := c.criterion.Filter(); err != nil {
		return err
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		events: make(chan registry.Event, c.bufferSize),
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// Subscribe before querying: every event not reflected in the snapshot
	// then reaches the listener, and Seq tells the two apart.
	subID, err := c.reg.Subscribe(ctx, c.filterStr, s.listen)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe: %w", err)
	}
	s.subID = subID

	abort := func() {
		cancel()
		if err := c.reg.Unsubscribe(subID); err != nil {
			log.Warn(log.CatTracker, "unsubscribe after failed start", "subscription", subID, "error", err)
		}
	}

	snap, err := c.reg.Query(ctx, c.filterStr)
	if err != nil {
		abort()
		return fmt.Errorf("query: %w", err)
	}
	s.snapshotSeq = snap.Seq

	backfilled, err := c.backfill(ctx, snap.References)
	if err != nil {
		abort()
		return fmt.Errorf("backfill: %w", err)
	}

	c.mu.Lock()
	for i := range backfilled {
		backfilled[i].Position = c.nextPos
		c.nextPos++
		c.index[backfilled[i].Reference.ID()] = struct{}{}
	}
	c.entries = backfilled
	c.session = s
	c.state = Active
	c.mu.Unlock()

	for _, e := range backfilled {
		c.changes.Publish(pubsub.AddedEvent, e)
	}
	c.metrics.SetTracked(c.filterStr, len(backfilled))

	log.SafeGo("tracker.consume["+c.filterStr+"]", func() {
		c.consume(s)
	})

	log.Info(log.CatTracker, "tracking started", "filter", c.filterStr, "subscription", subID,
		"backfilled", len(backfilled), "seq", snap.Seq)
	return nil
}

// backfill builds proxies for refs in parallel, keeping snapshot order.
// Entries whose proxy fails are reported and left out.
func (c *Collection) backfill(ctx context.Context, refs []registry.Reference) ([]TrackedEntry, error) {
	ctx, span := c.tracer.Start(ctx, tracing.SpanTrackerBackfill,
		trace.WithAttributes(attribute.Int(tracing.AttrSnapshotSize, len(refs))))
	started := time.Now()

	proxies := make([]any, len(refs))
	built := make([]bool, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.backfillConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := c.creator.CreateProxy(gctx, c.reg, ref, c.resolver)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.reportProxyError(span, ref, err)
				return nil
			}
			proxies[i] = p
			built[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracing.End(span, err)
		return nil, err
	}

	entries := make([]TrackedEntry, 0, len(refs))
	for i, ref := range refs {
		if built[i] {
			entries = append(entries, TrackedEntry{Reference: ref, Proxy: proxies[i]})
		}
	}

	c.metrics.ObserveBackfillLatency(time.Since(started))
	tracing.End(span, nil)
	return entries, nil
}

// consume applies the session's events one at a time until it is stopped.
func (c *Collection) consume(s *session) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			c.handle(s, ev)
		}
	}
}

func (c *Collection) handle(s *session, ev registry.Event) {
	ctx, span := c.tracer.Start(s.ctx, tracing.SpanTrackerEvent, trace.WithAttributes(
		attribute.String(tracing.AttrEventType, ev.Type.String()),
		attribute.Int64(tracing.AttrEventSeq, int64(ev.Seq)),
		attribute.Int64(tracing.AttrServiceID, int64(ev.Reference.ID())),
	))
	defer span.End()

	outcome := c.apply(ctx, span, s, ev)
	c.metrics.IncrementEvent(ev.Type.String(), outcome)
	if outcome != metrics.OutcomeApplied {
		span.AddEvent(tracing.EventEventDiscarded, trace.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (c *Collection) apply(ctx context.Context, span trace.Span, s *session, ev registry.Event) string {
	// Already reflected by the backfill snapshot.
	if ev.Seq <= s.snapshotSeq {
		return metrics.OutcomeStale
	}

	id := ev.Reference.ID()
	switch ev.Type {
	case registry.Added:
		if c.tracks(id) {
			return metrics.OutcomeDuplicate
		}
		p, err := c.creator.CreateProxy(ctx, c.reg, ev.Reference, c.resolver)
		if err != nil {
			c.reportProxyError(span, ev.Reference, err)
			return metrics.OutcomeFailed
		}
		entry, ok := c.add(s, ev.Reference, p)
		if !ok {
			return metrics.OutcomeStale
		}
		span.AddEvent(tracing.EventEntryAdded)
		c.changes.Publish(pubsub.AddedEvent, entry)
		return metrics.OutcomeApplied

	case registry.Removed:
		entry, ok := c.remove(s, id)
		if !ok {
			return metrics.OutcomeUnknown
		}
		span.AddEvent(tracing.EventEntryRemoved)
		c.changes.Publish(pubsub.RemovedEvent, entry)
		return metrics.OutcomeApplied
	}
	return metrics.OutcomeUnknown
}

func (c *Collection) tracks(id registry.ServiceID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[id]
	return ok
}

// add appends an entry unless s was stopped meanwhile.
func (c *Collection) add(s *session, ref registry.Reference, p any) (TrackedEntry, bool) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return TrackedEntry{}, false
	}
	if _, ok := c.index[ref.ID()]; ok {
		c.mu.Unlock()
		return TrackedEntry{}, false
	}
	entry := TrackedEntry{Reference: ref, Proxy: p, Position: c.nextPos}
	c.nextPos++
	c.entries = append(c.entries, entry)
	c.index[ref.ID()] = struct{}{}
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.SetTracked(c.filterStr, n)
	log.Debug(log.CatTracker, "entry added", "filter", c.filterStr, "id", ref.ID(), "size", n)
	return entry, true
}

// remove drops the entry for id, keeping the order of the rest.
func (c *Collection) remove(s *session, id registry.ServiceID) (TrackedEntry, bool) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return TrackedEntry{}, false
	}
	if _, ok := c.index[id]; !ok {
		c.mu.Unlock()
		return TrackedEntry{}, false
	}
	i := slices.IndexFunc(c.entries, func(e TrackedEntry) bool { return e.Reference.ID() == id })
	entry := c.entries[i]
	c.entries = slices.Delete(c.entries, i, i+1)
	delete(c.index, id)
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.SetTracked(c.filterStr, n)
	log.Debug(log.CatTracker, "entry removed", "filter", c.filterStr, "id", id, "size", n)
	return entry, true
}

func (c *Collection) reportProxyError(span trace.Span, ref registry.Reference, err error) {
	wrapped := fmt.Errorf("%w: service %s: %w", ErrProxyConstruction, ref.ID(), err)
	log.ErrorErr(log.CatTracker, "proxy construction failed", err, "filter", c.filterStr, "id", ref.ID())
	span.AddEvent(tracing.EventProxyFailed, trace.WithAttributes(
		attribute.Int64(tracing.AttrServiceID, int64(ref.ID())),
		attribute.String(tracing.AttrErrorMessage, err.Error()),
	))
	c.metrics.IncrementProxyFailures()
	c.errs.Publish(pubsub.FailedEvent, wrapped)
}

// Stop unsubscribes and empties the collection. Events still in flight are
// discarded. Stopping an inactive collection does nothing.
func (c *Collection) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return
	}
	s := c.session
	cleared := c.entries
	c.session = nil
	c.entries = nil
	clear(c.index)
	c.state = Inactive
	c.mu.Unlock()

	// Cancel first: a listener blocked on a full channel holds the registry's
	// dispatch lock, which Unsubscribe needs.
	s.cancel()
	if err := c.reg.Unsubscribe(s.subID); err != nil {
		log.Warn(log.CatTracker, "unsubscribe failed", "subscription", s.subID, "error", err)
	}
	<-s.done

	for _, e := range cleared {
		c.changes.Publish(pubsub.RemovedEvent, e)
	}
	c.metrics.ForgetTracked(c.filterStr)
	log.Info(log.CatTracker, "tracking stopped", "filter", c.filterStr, "discarded", len(cleared))
}

// Close stops the collection and closes its feeds. It cannot be restarted.
func (c *Collection) Close() {
	c.Stop()
	c.changes.Close()
	c.errs.Close()
}

// State reports whether the collection is tracking.
func (c *Collection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Collection) Active() bool {
	return c.State() == Active
}

// Size returns the number of entries at the moment of the call.
func (c *Collection) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Collection) IsEmpty() bool {
	return c.Size() == 0
}

// Entries returns a copy of the current entries in insertion order.
func (c *Collection) Entries() []TrackedEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.entries)
}

// Changes streams entries as they are added and removed, including the
// backfill and the entries discarded by Stop. Slow readers lose events.
func (c *Collection) Changes(ctx context.Context) <-chan pubsub.Event[TrackedEntry] {
	return c.changes.Subscribe(ctx)
}

// Subscribe is Changes, so a Collection can feed pubsub listeners.
func (c *Collection) Subscribe(ctx context.Context) <-chan pubsub.Event[TrackedEntry] {
	return c.Changes(ctx)
}

// Errors streams proxy construction failures. Each wraps ErrProxyConstruction.
func (c *Collection) Errors(ctx context.Context) <-chan pubsub.Event[error] {
	return c.errs.Subscribe(ctx)
}

func (c *Collection) at(i int) (TrackedEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.entries) {
		return TrackedEntry{}, false
	}
	return c.entries[i], true
}
