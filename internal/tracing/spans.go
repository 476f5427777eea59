package tracing

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanRegistryPublish  = "registry.publish"
	SpanRegistryWithdraw = "registry.withdraw"
	SpanRegistryQuery    = "registry.query"
	SpanTrackerStart     = "tracker.start"
	SpanTrackerBackfill  = "tracker.backfill"
	SpanTrackerEvent     = "tracker.event"
	SpanProxyCreate      = "proxy.create"
)

// Span attribute keys.
const (
	AttrFilter         = "filter"
	AttrServiceID      = "service.id"
	AttrInterfaces     = "service.interfaces"
	AttrSubscriptionID = "subscription.id"
	AttrEventType      = "event.type"
	AttrEventSeq       = "event.seq"
	AttrSnapshotSeq    = "snapshot.seq"
	AttrSnapshotSize   = "snapshot.size"
	AttrTrackedSize    = "tracked.size"
	AttrErrorMessage   = "error.message"
)

// Event names recorded on spans.
const (
	EventEntryAdded     = "entry.added"
	EventEntryRemoved   = "entry.removed"
	EventEventDiscarded = "event.discarded"
	EventProxyFailed    = "proxy.failed"
)

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
