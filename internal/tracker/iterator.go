package tracker

import "iter"

// Iterator walks a Collection by position. The collection's length is
// re-read on every call, so entries added while iterating are visited and
// entries removed ahead of the cursor are not. An entry removed behind the
// cursor shifts the rest down, and one element may be skipped.
type Iterator struct {
	c    *Collection
	next int
}

// Iterator returns a cursor positioned before the first entry.
func (c *Collection) Iterator() *Iterator {
	return &Iterator{c: c}
}

// HasNext reports whether Next would return an entry right now.
func (it *Iterator) HasNext() bool {
	return it.next < it.c.Size()
}

// Next advances and returns the proxy of the next entry.
func (it *Iterator) Next() (any, error) {
	e, err := it.Entry()
	if err != nil {
		return nil, err
	}
	return e.Proxy, nil
}

// Entry advances like Next but returns the whole entry.
func (it *Iterator) Entry() (TrackedEntry, error) {
	e, ok := it.c.at(it.next)
	if !ok {
		return TrackedEntry{}, ErrExhausted
	}
	it.next++
	return e, nil
}

// All yields the proxies of the collection through a fresh Iterator.
func (c *Collection) All() iter.Seq[any] {
	return func(yield func(any) bool) {
		it := c.Iterator()
		for {
			p, err := it.Next()
			if err != nil {
				return
			}
			if !yield(p) {
				return
			}
		}
	}
}
