// Package memory implements domain.Store as a mutex-guarded map. It backs the
// "memory" store backend for local runs and is the store used by tests; its
// semantics (idempotent puts, chunked batch writes, all-or-nothing
// transactions, condition failures) mirror the DynamoDB implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"nftstats/internal/domain"
)

// Store is an in-memory domain.Store.
type Store struct {
	mu    sync.RWMutex
	items map[domain.Key]domain.Item
}

// New creates an empty Store.
func New() *Store {
	return &Store{items: make(map[domain.Key]domain.Item)}
}

// GetItem returns a copy of the item at key, or domain.ErrNotFound.
func (s *Store) GetItem(_ context.Context, key domain.Key) (domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(it), nil
}

// Query returns the items of one partition ordered by sort key.
func (s *Store) Query(_ context.Context, pk string, opts domain.QueryOpts) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Item
	for key, it := range s.items {
		if key.PK != pk {
			continue
		}
		if opts.SKPrefix != "" && !strings.HasPrefix(key.SK, opts.SKPrefix) {
			continue
		}
		out = append(out, cloneItem(it))
	}

	sort.Slice(out, func(i, j int) bool {
		less := out[i].String(domain.AttrSK) < out[j].String(domain.AttrSK)
		if opts.Descending {
			return !less
		}
		return less
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// PutItem stores an item, overwriting any existing item with the same key.
func (s *Store) PutItem(_ context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[item.Key()] = cloneItem(item)
	return nil
}

// BatchPutItems stores all items. The in-memory backend has no real batch
// limit, but chunking is preserved so tests observe the same write pattern as
// the DynamoDB store.
func (s *Store) BatchPutItems(ctx context.Context, items []domain.Item) error {
	for start := 0; start < len(items); start += domain.BatchPutLimit {
		end := min(start+domain.BatchPutLimit, len(items))
		for _, it := range items[start:end] {
			if err := s.PutItem(ctx, it); err != nil {
				return err
			}
		}
	}
	return nil
}

// AtomicAdd increments numeric fields on one item, creating it as needed.
func (s *Store) AtomicAdd(_ context.Context, key domain.Key, deltas map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyAdd(key, deltas)
	return nil
}

// TransactUpdate applies all updates atomically. Conditions are checked
// before any write; a failed condition leaves every target untouched and
// returns domain.ErrConditionFailed. The DynamoDB transaction size cap is
// enforced here too so oversized transactions fail in tests, not production.
func (s *Store) TransactUpdate(_ context.Context, updates []domain.Update) error {
	if len(updates) > domain.TransactItemLimit {
		return fmt.Errorf("memory: transact update: %d items exceeds limit %d", len(updates), domain.TransactItemLimit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		it, exists := s.items[u.Key]
		if u.NotExists && exists {
			return domain.ErrConditionFailed
		}
		if u.NotTrue != "" && exists && it.Bool(u.NotTrue) {
			return domain.ErrConditionFailed
		}
	}

	for _, u := range updates {
		s.applyAdd(u.Key, u.Add)
		if len(u.Set) > 0 {
			it := s.ensure(u.Key)
			for f, v := range u.Set {
				it[f] = v
			}
		} else {
			s.ensure(u.Key)
		}
	}
	return nil
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) ensure(key domain.Key) domain.Item {
	it, ok := s.items[key]
	if !ok {
		it = domain.Item{domain.AttrPK: key.PK, domain.AttrSK: key.SK}
		s.items[key] = it
	}
	return it
}

func (s *Store) applyAdd(key domain.Key, deltas map[string]float64) {
	it := s.ensure(key)
	for f, d := range deltas {
		it[f] = it.Float(f) + d
	}
}

func cloneItem(it domain.Item) domain.Item {
	out := make(domain.Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)
