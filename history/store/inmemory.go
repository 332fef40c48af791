package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	pkgerrors "github.com/docsage/docsage/errors"
	"github.com/docsage/docsage/history"
)

// InMemoryStore implements history.Store with process-local storage. Useful
// for tests and single-process deployments that do not need durability.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*history.Record
}

// NewInMemoryStore creates an empty in-memory history store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*history.Record),
	}
}

// Save persists the record, replacing any existing record with the same ID.
func (s *InMemoryStore) Save(ctx context.Context, rec *history.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.ID == "" {
		return fmt.Errorf("record ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Get returns the record by ID.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, pkgerrors.ErrNotFound)
	}
	return rec.Clone(), nil
}

// List returns up to limit records, newest first.
func (s *InMemoryStore) List(ctx context.Context, limit int) ([]*history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*history.Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Delete removes the record by ID.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("record %s: %w", id, pkgerrors.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// Clear removes all records.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*history.Record)
}

// Count returns the number of stored records.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
