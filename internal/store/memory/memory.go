// Package memory keeps the transaction working set in process memory.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/ports"
)

var _ ports.TransactionStore = (*Store)(nil)

// Store is safe for concurrent use. Records keep insertion order.
type Store struct {
	mu    sync.RWMutex
	items []core.Transaction
}

// New returns a store holding a copy of records. Records with id 0 get one
// assigned as if inserted in order; a duplicate id is an error.
func New(records ...core.Transaction) (*Store, error) {
	s := &Store{items: make([]core.Transaction, 0, len(records))}
	for _, r := range records {
		if _, err := s.Insert(context.Background(), r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewFromFile seeds the store from a JSON array of transactions. A missing
// file yields the fallback records instead.
func NewFromFile(path string, fallback []core.Transaction) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(fallback...)
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var records []core.Transaction
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return New(records...)
}

// NextID returns one more than the highest id held, or 1 when empty.
func (s *Store) NextID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextIDLocked()
}

func (s *Store) nextIDLocked() int64 {
	var maxID int64
	for _, t := range s.items {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	return maxID + 1
}

func (s *Store) indexLocked(id int64) int {
	for i, t := range s.items {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) Insert(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.nextIDLocked()
	} else if s.indexLocked(t.ID) >= 0 {
		return core.Transaction{}, &core.ConflictError{ID: t.ID}
	}
	s.items = append(s.items, t)
	return t, nil
}

func (s *Store) Update(_ context.Context, id int64, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return core.Transaction{}, &core.NotFoundError{ID: id}
	}
	t.ID = id
	s.items[i] = t
	return t, nil
}

func (s *Store) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true, nil
}

func (s *Store) Get(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return core.Transaction{}, &core.NotFoundError{ID: id}
	}
	return s.items[i], nil
}

// List returns a copy; callers may reorder it freely.
func (s *Store) List(_ context.Context) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.items...), nil
}

// Len reports how many records are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
