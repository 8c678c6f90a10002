// Package memory provides in-process implementations of the storage
// interfaces. Every write is conditional on the version the caller read, the
// same contract the PostgreSQL adapter enforces.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/storefront/internal/domain/catalog"
)

var _ catalog.Repository = (*CatalogStore)(nil)

// CatalogStore is a mutex-guarded catalog. Entries are copied on the way in
// and out so callers never share review slices with the store.
type CatalogStore struct {
	mu      sync.RWMutex
	entries map[string]*catalog.Entry
}

// NewCatalogStore returns a store pre-populated with entries.
func NewCatalogStore(entries ...catalog.Entry) *CatalogStore {
	s := &CatalogStore{entries: make(map[string]*catalog.Entry, len(entries))}
	for _, e := range entries {
		s.Save(e)
	}
	return s
}

// Save inserts or overwrites an entry, recomputing its aggregate. A zero
// version is stored as 1.
func (s *CatalogStore) Save(e catalog.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneEntry(&e)
	cp.Rating = catalog.Summarize(cp.Reviews)
	if cp.Version == 0 {
		cp.Version = 1
	}
	s.entries[cp.ID] = cp
}

// Find returns matching entries, newest first.
func (s *CatalogStore) Find(_ context.Context, f catalog.Filter) ([]catalog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if f.Match(e) {
			out = append(out, *cloneEntry(e))
		}
	}
	slices.SortFunc(out, func(a, b catalog.Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// GetByID returns a copy of the entry.
func (s *CatalogStore) GetByID(_ context.Context, id string) (*catalog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return cloneEntry(e), nil
}

// ReplaceReviews swaps the review collection iff the entry is still at
// version.
func (s *CatalogStore) ReplaceReviews(_ context.Context, id string, version int64, reviews []catalog.Review, rating catalog.Aggregate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return 0, catalog.ErrNotFound
	}
	if e.Version != version {
		return 0, catalog.ErrVersionConflict
	}
	e.Reviews = slices.Clone(reviews)
	e.Rating = rating
	e.Version++
	return e.Version, nil
}

func cloneEntry(e *catalog.Entry) *catalog.Entry {
	cp := *e
	cp.Reviews = slices.Clone(e.Reviews)
	return &cp
}
