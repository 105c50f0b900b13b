package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/dreamina/pkg/models"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[models.JobHandle]*Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[models.JobHandle]*Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Record(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fillDefaults(&e, s.now())
	copied := e
	copied.URLs = append([]string(nil), e.URLs...)
	s.entries[e.Handle] = &copied
	return e, nil
}

func (s *MemoryStore) UpdateOutcome(_ context.Context, handle models.JobHandle, state, reason string, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[handle]
	if !ok {
		return ErrNotFound
	}
	e.State = state
	e.Reason = reason
	e.URLs = append([]string(nil), urls...)
	e.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, handle models.JobHandle) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[handle]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func fillDefaults(e *Entry, now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.State == "" {
		e.State = StateSubmitted
	}
	now = now.UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
}
