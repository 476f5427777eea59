// Package proxy builds the objects a tracking collection hands to callers in
// place of raw registry references.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/szhem/osgi-utils/internal/log"
	"github.com/szhem/osgi-utils/internal/registry"
	"github.com/szhem/osgi-utils/internal/resolver"
)

var (
	// ErrUnavailable is returned by Service.Get once the service is withdrawn.
	ErrUnavailable = errors.New("service unavailable")

	// ErrUnresolved is returned when an advertised interface cannot be
	// resolved to a type.
	ErrUnresolved = errors.New("interface not resolvable")

	// ErrTypeMismatch is returned when the published object does not
	// implement an advertised interface.
	ErrTypeMismatch = errors.New("service does not implement advertised interface")
)

// Context is what a proxy needs from the registry.
type Context interface {
	GetService(id registry.ServiceID) (any, error)
}

// Creator constructs the caller-facing object for a tracked reference. It is
// called once per newly tracked reference and may be called concurrently.
type Creator interface {
	CreateProxy(ctx context.Context, pc Context, ref registry.Reference, res resolver.Resolver) (any, error)
}

// CreatorFunc adapts a function to Creator.
type CreatorFunc func(ctx context.Context, pc Context, ref registry.Reference, res resolver.Resolver) (any, error)

func (f CreatorFunc) CreateProxy(ctx context.Context, pc Context, ref registry.Reference, res resolver.Resolver) (any, error) {
	return f(ctx, pc, ref, res)
}

// Default resolves every advertised interface and returns a *Service. With a
// nil resolver no interface is checked.
type Default struct{}

var _ Creator = Default{}

func (Default) CreateProxy(ctx context.Context, pc Context, ref registry.Reference, res resolver.Resolver) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var types []reflect.Type
	if res != nil {
		for _, name := range ref.Interfaces() {
			t, err := res.ResolveType(name)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrUnresolved, name, err)
			}
			types = append(types, t)
		}
	}

	log.Debug(log.CatProxy, "proxy created", "id", ref.ID(), "types", len(types))
	return &Service{ref: ref, types: types, pc: pc}, nil
}

// Service is a lazy handle on a published service.
type Service struct {
	ref   registry.Reference
	types []reflect.Type
	pc    Context
}

func (s *Service) Reference() registry.Reference {
	return s.ref
}

func (s *Service) ID() registry.ServiceID {
	return s.ref.ID()
}

// Types returns the resolved interface types.
func (s *Service) Types() []reflect.Type {
	return s.types
}

// Get fetches the live service object. It checks the object against every
// resolved interface type.
func (s *Service) Get() (any, error) {
	obj, err := s.pc.GetService(s.ref.ID())
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, fmt.Errorf("service %s: %w", s.ref.ID(), ErrUnavailable)
		}
		return nil, err
	}

	ot := reflect.TypeOf(obj)
	for _, t := range s.types {
		if t.Kind() != reflect.Interface || ot == nil {
			continue
		}
		if !ot.Implements(t) {
			return nil, fmt.Errorf("%w: %s does not implement %s", ErrTypeMismatch, ot, t)
		}
	}
	return obj, nil
}

func (s *Service) String() string {
	return fmt.Sprintf("service %s %v", s.ref.ID(), s.ref.Interfaces())
}

// As returns the service object of s as T.
func As[T any](s *Service) (T, error) {
	var zero T
	obj, err := s.Get()
	if err != nil {
		return zero, err
	}
	v, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, obj, reflect.TypeFor[T]())
	}
	return v, nil
}
