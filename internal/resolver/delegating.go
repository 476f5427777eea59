package resolver

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/szhem/osgi-utils/internal/cachemanager"
	"github.com/szhem/osgi-utils/internal/log"
)

// ErrNoPrimary is returned by NewDelegating when the owning module is nil.
var ErrNoPrimary = errors.New("delegating resolver requires a primary")

// Delegating resolves through Primary and, on any failure, through Fallback.
// It reports ErrNotFound only when both fail. Successful lookups are cached.
type Delegating struct {
	primary  Resolver
	fallback Resolver

	types     *cachemanager.Loader[string, reflect.Type, string]
	resources *cachemanager.Loader[string, []byte, string]
	typeCache *cachemanager.Memory[string, reflect.Type]
	ttl       time.Duration
}

var _ Resolver = (*Delegating)(nil)

// DelegatingOption configures a Delegating resolver.
type DelegatingOption func(*Delegating)

// WithCacheExpiration sets how long results stay cached. Zero or negative
// disables caching.
func WithCacheExpiration(ttl time.Duration) DelegatingOption {
	return func(d *Delegating) { d.ttl = ttl }
}

// NewDelegating returns a resolver trying primary, then fallback. fallback
// may be nil.
func NewDelegating(primary, fallback Resolver, opts ...DelegatingOption) (*Delegating, error) {
	if primary == nil {
		return nil, ErrNoPrimary
	}
	d := &Delegating{
		primary:  primary,
		fallback: fallback,
		ttl:      cachemanager.DefaultExpiration,
	}
	for _, opt := range opts {
		opt(d)
	}

	var (
		types     cachemanager.Cache[string, reflect.Type]
		resources cachemanager.Cache[string, []byte]
	)
	if d.ttl > 0 {
		d.typeCache = cachemanager.NewMemory[string, reflect.Type]("resolved-types", d.ttl)
		types = d.typeCache
		resources = cachemanager.NewMemory[string, []byte]("resolved-resources", d.ttl)
	}
	d.types = cachemanager.NewLoader(types, d.ttl,
		func(_ context.Context, name string) (reflect.Type, error) {
			return d.resolveType(name)
		})
	d.resources = cachemanager.NewLoader(resources, d.ttl,
		func(_ context.Context, path string) ([]byte, error) {
			return d.resolveResource(path)
		})

	return d, nil
}

// TypeCache exposes the type cache for instrumentation. It is nil when
// caching is disabled.
func (d *Delegating) TypeCache() cachemanager.StatsReporter {
	if d.typeCache == nil {
		return nil
	}
	return d.typeCache
}

func (d *Delegating) ResolveType(name string) (reflect.Type, error) {
	return d.types.Get(context.Background(), name, name)
}

func (d *Delegating) ResolveResource(path string) ([]byte, error) {
	return d.resources.Get(context.Background(), path, path)
}

// ResolveResources returns path from every side that has it, primary first.
// Results are not cached.
func (d *Delegating) ResolveResources(path string) ([][]byte, error) {
	var found [][]byte
	for _, r := range []Resolver{d.primary, d.fallback} {
		if r == nil {
			continue
		}
		data, err := r.ResolveResource(path)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		found = append(found, data)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("resource %q: %w", path, ErrNotFound)
	}
	return found, nil
}

func (d *Delegating) resolveType(name string) (reflect.Type, error) {
	t, primaryErr := d.primary.ResolveType(name)
	if primaryErr == nil {
		return t, nil
	}
	if d.fallback != nil {
		t, err := d.fallback.ResolveType(name)
		if err == nil {
			log.Debug(log.CatResolver, "type resolved by fallback", "type", name, "primaryError", primaryErr)
			return t, nil
		}
		return nil, fmt.Errorf("type %q: %w (primary: %v; fallback: %v)", name, ErrNotFound, primaryErr, err)
	}
	return nil, fmt.Errorf("type %q: %w (primary: %v)", name, ErrNotFound, primaryErr)
}

func (d *Delegating) resolveResource(path string) ([]byte, error) {
	data, primaryErr := d.primary.ResolveResource(path)
	if primaryErr == nil {
		return data, nil
	}
	if d.fallback != nil {
		data, err := d.fallback.ResolveResource(path)
		if err == nil {
			return data, nil
		}
		return nil, fmt.Errorf("resource %q: %w (primary: %v; fallback: %v)", path, ErrNotFound, primaryErr, err)
	}
	return nil, fmt.Errorf("resource %q: %w (primary: %v)", path, ErrNotFound, primaryErr)
}
