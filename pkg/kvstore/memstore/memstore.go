// Package memstore implements the embedded in-memory kvstore.Store
// backend: a sorted slice guarded by a mutex. It is the fastest backend
// and the one used by default in tests and ephemeral datastores.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/meridiandb/meridian/pkg/kvstore"
)

// Store is an in-memory, sorted kvstore.Store.
type Store struct {
	mu    sync.RWMutex
	items kvstore.Items
	// items stays sorted by key at all times, so lookups binary-search it
	// in O(log n).
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{}
}

func (s *Store) search(key kvstore.Key) (int, bool) {
	i := sort.Search(len(s.items), func(i int) bool {
		return !s.items[i].Key.Less(key)
	})
	if i < len(s.items) && string(s.items[i].Key) == string(key) {
		return i, true
	}
	return i, false
}

// Put implements kvstore.Store.
func (s *Store) Put(_ context.Context, key kvstore.Key, value kvstore.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := append(kvstore.Value{}, value...)
	i, found := s.search(key)
	if found {
		s.items[i].Value = v
		return nil
	}
	s.items = append(s.items, kvstore.Item{})
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = kvstore.Item{Key: key.Clone(), Value: v}
	return nil
}

// Get implements kvstore.Store.
func (s *Store) Get(_ context.Context, key kvstore.Key) (kvstore.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, found := s.search(key)
	if !found {
		return nil, kvstore.ErrKeyNotFound
	}
	return append(kvstore.Value{}, s.items[i].Value...), nil
}

// Delete implements kvstore.Store.
func (s *Store) Delete(_ context.Context, key kvstore.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, found := s.search(key)
	if !found {
		return nil
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

// Range implements kvstore.Store.
func (s *Store) Range(ctx context.Context, fn kvstore.RangeFunc) error {
	s.mu.RLock()
	snapshot := make(kvstore.Items, len(s.items))
	for i, it := range s.items {
		snapshot[i] = kvstore.Item{Key: it.Key.Clone(), Value: append(kvstore.Value{}, it.Value...)}
	}
	s.mu.RUnlock()

	for _, it := range snapshot {
		if err := fn(ctx, it.Key, it.Value); err != nil {
			return err
		}
	}
	return nil
}

// List implements kvstore.Store.
func (s *Store) List(_ context.Context, opts kvstore.ListOptions) (kvstore.Items, kvstore.More, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out kvstore.Items
	end := kvstore.PrefixSuffix(opts.Prefix)

	// lo is the first index whose key is >= opts.Prefix; hi is the first
	// index whose key is >= end (or len(s.items) if the prefix is
	// unbounded above, i.e. all 0xff bytes).
	lo := sort.Search(len(s.items), func(i int) bool {
		return !s.items[i].Key.Less(kvstore.Key(opts.Prefix))
	})
	hi := len(s.items)
	if end != nil {
		hi = sort.Search(len(s.items), func(i int) bool {
			return !s.items[i].Key.Less(end)
		})
	}

	emit := func(it kvstore.Item) bool {
		if opts.After != nil {
			if opts.Reverse {
				if !it.Key.Less(opts.After) {
					return true // skip, continue
				}
			} else if !opts.After.Less(it.Key) {
				return true // skip, continue
			}
		}
		out = append(out, kvstore.Item{Key: it.Key.Clone(), Value: append(kvstore.Value{}, it.Value...)})
		return opts.Limit == 0 || len(out) <= opts.Limit
	}

	if opts.Reverse {
		for i := hi - 1; i >= lo; i-- {
			if !emit(s.items[i]) {
				break
			}
		}
	} else {
		for i := lo; i < hi; i++ {
			if !emit(s.items[i]) {
				break
			}
		}
	}

	more := kvstore.More(false)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
		more = true
	}
	return out, more, nil
}

// Close implements kvstore.Store.
func (s *Store) Close() error { return nil }
