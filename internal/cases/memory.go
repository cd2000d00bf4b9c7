package cases

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kycdesk.org/internal/match"
)

// InMemory is a Store for tests and DSN-less runs. Each case carries its
// own lock so operations on different cases never contend.
type InMemory struct {
	mu    sync.RWMutex
	cases map[string]*memCase
}

type memCase struct {
	mu sync.Mutex
	c  *Case
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{cases: make(map[string]*memCase)}
}

// Create stores a new case.
func (s *InMemory) Create(ctx context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; ok {
		return fmt.Errorf("cases: case %s already exists", c.ID)
	}
	s.cases[c.ID] = &memCase{c: c.Clone()}
	return nil
}

// Get returns a deep copy of the case.
func (s *InMemory) Get(ctx context.Context, id string) (*Case, error) {
	mc, err := s.find(id)
	if err != nil {
		return nil, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.c.Clone(), nil
}

// List returns copies of every case matching the filter, oldest first.
func (s *InMemory) List(ctx context.Context, f Filter) ([]*Case, error) {
	s.mu.RLock()
	snapshot := make([]*memCase, 0, len(s.cases))
	for _, mc := range s.cases {
		snapshot = append(snapshot, mc)
	}
	s.mu.RUnlock()

	out := []*Case{}
	for _, mc := range snapshot {
		mc.mu.Lock()
		c := mc.c
		if (f.Status == "" || c.Status == f.Status) && (f.CreatorID == "" || c.CreatorID == f.CreatorID) {
			out = append(out, c.Clone())
		}
		mc.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Update applies fn atomically to the case. fn works on a copy; an
// error discards every change.
func (s *InMemory) Update(ctx context.Context, id string, fn func(*Case) error) (*Case, error) {
	mc, err := s.find(id)
	if err != nil {
		return nil, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	working := mc.c.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	mc.c = working
	return working.Clone(), nil
}

// Delete removes the case.
func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[id]; !ok {
		return ErrNotFound
	}
	delete(s.cases, id)
	return nil
}

// FindIdentifier scans other cases for the same normalized extracted
// identifier value.
func (s *InMemory) FindIdentifier(ctx context.Context, field, value, excludeCaseID string) (string, error) {
	s.mu.RLock()
	snapshot := make([]*memCase, 0, len(s.cases))
	for id, mc := range s.cases {
		if id == excludeCaseID {
			continue
		}
		snapshot = append(snapshot, mc)
	}
	s.mu.RUnlock()

	for _, mc := range snapshot {
		mc.mu.Lock()
		for _, ocr := range mc.c.OCR {
			if match.NormalizeIdentifier(ocr.Fields[field]) == value {
				id := mc.c.ID
				mc.mu.Unlock()
				return id, nil
			}
		}
		mc.mu.Unlock()
	}
	return "", ErrNotFound
}

func (s *InMemory) find(id string) (*memCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return mc, nil
}
