package tracker

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/szhem/osgi-utils/internal/metrics"
	"github.com/szhem/osgi-utils/internal/resolver"
)

const (
	DefaultBufferSize          = 64
	DefaultBackfillConcurrency = 8
)

// Option configures a Collection.
type Option func(*Collection)

// WithBufferSize sets the capacity of the event channel between the registry
// and the collection's consumer. Values below 1 keep the default.
func WithBufferSize(n int) Option {
	return func(c *Collection) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithResolver sets the resolver handed to the proxy creator.
func WithResolver(r resolver.Resolver) Option {
	return func(c *Collection) { c.resolver = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Collection) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collection) { c.metrics = m }
}

// WithBackfillConcurrency bounds how many proxies are built in parallel
// while backfilling. Values below 1 keep the default.
func WithBackfillConcurrency(n int) Option {
	return func(c *Collection) {
		if n > 0 {
			c.backfillConcurrency = n
		}
	}
}
