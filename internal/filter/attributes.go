package filter

import (
	"iter"
	"slices"
)

// Attributes is a string map that remembers insertion order, so that AllEq
// and AnyEq serialize deterministically.
type Attributes struct {
	keys   []string
	values map[string]string
}

// NewAttributes returns an empty ordered attribute map.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]string)}
}

// AttributesFromMap copies m in sorted key order.
func AttributesFromMap(m map[string]string) *Attributes {
	a := NewAttributes()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		a.Set(k, m[k])
	}
	return a
}

// Set stores value under key. Re-setting a key keeps its original position.
func (a *Attributes) Set(key, value string) *Attributes {
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
	return a
}

// Get returns the value stored under key.
func (a *Attributes) Get(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a.values[key]
	return v, ok
}

// Len returns the number of attributes. A nil receiver has none.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// All iterates key/value pairs in insertion order.
func (a *Attributes) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if a == nil {
			return
		}
		for _, k := range a.keys {
			if !yield(k, a.values[k]) {
				return
			}
		}
	}
}

// Map returns a copy as a plain map.
func (a *Attributes) Map() map[string]any {
	m := make(map[string]any, a.Len())
	for k, v := range a.All() {
		m[k] = v
	}
	return m
}
