// Package resolver looks up types and resources by name across module
// boundaries. A Module owns a type table and a resource filesystem; a
// Delegating resolver asks one module first and falls back to another.
package resolver

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"sync"

	"github.com/szhem/osgi-utils/internal/log"
)

// ErrNotFound is returned when a name cannot be resolved.
var ErrNotFound = errors.New("not found")

// Resolver resolves type names and resource paths.
type Resolver interface {
	ResolveType(name string) (reflect.Type, error)
	ResolveResource(path string) ([]byte, error)
}

// TypeName is the name a type is registered under: its package path and
// name, e.g. "github.com/acme/store.Store". Unnamed types use their String.
func TypeName(t reflect.Type) string {
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// Module resolves the types registered with it and the resources in its
// filesystem.
type Module struct {
	name      string
	resources fs.FS

	mu    sync.RWMutex
	types map[string]reflect.Type
}

var _ Resolver = (*Module)(nil)

// NewModule creates a module. resources may be nil.
func NewModule(name string, resources fs.FS) *Module {
	return &Module{
		name:      name,
		resources: resources,
		types:     make(map[string]reflect.Type),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.name
}

// Register adds t under name, replacing any previous registration.
func (m *Module) Register(name string, t reflect.Type) *Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[name] = t
	return m
}

// Register adds T to m under TypeName.
func Register[T any](m *Module) *Module {
	t := reflect.TypeFor[T]()
	return m.Register(TypeName(t), t)
}

func (m *Module) ResolveType(name string) (reflect.Type, error) {
	m.mu.RLock()
	t, ok := m.types[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("module %s: type %q: %w", m.name, name, ErrNotFound)
	}
	return t, nil
}

func (m *Module) ResolveResource(path string) ([]byte, error) {
	if m.resources == nil {
		return nil, fmt.Errorf("module %s: resource %q: %w", m.name, path, ErrNotFound)
	}
	data, err := fs.ReadFile(m.resources, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, fmt.Errorf("module %s: resource %q: %w", m.name, path, ErrNotFound)
		}
		return nil, fmt.Errorf("module %s: resource %q: %w", m.name, path, err)
	}
	log.Debug(log.CatResolver, "resource loaded", "module", m.name, "path", path, "bytes", len(data))
	return data, nil
}
