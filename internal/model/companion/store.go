package companion

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("companion not found")
	ErrNameRequired = errors.New("companion name is required")
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Subject string
	Author  string
	Limit   int
}

// Store exposes companion persistence for handlers and the permission gate.
type Store interface {
	List(ctx context.Context, filter Filter) ([]Companion, error)
	FindByID(ctx context.Context, id string) (Companion, error)
	Create(ctx context.Context, item Companion) (Companion, error)
	CountByAuthor(ctx context.Context, author string) (int, error)
}

// MemoryStore implements Store with an in-memory slice, suitable for local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Companion
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied companions.
func NewMemoryStore(items []Companion) *MemoryStore {
	return &MemoryStore{items: append([]Companion(nil), items...)}
}

// List returns companions matching filter, newest first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Companion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Companion, 0, len(s.items))
	for _, item := range s.items {
		if filter.Subject != "" && item.Subject != filter.Subject {
			continue
		}
		if filter.Author != "" && item.Author != filter.Author {
			continue
		}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// FindByID looks up a companion by identifier.
func (s *MemoryStore) FindByID(_ context.Context, id string) (Companion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return Companion{}, ErrNotFound
}

// Create stores a new companion, assigning an ID and creation time when absent.
func (s *MemoryStore) Create(_ context.Context, item Companion) (Companion, error) {
	if item.Name == "" {
		return Companion{}, ErrNameRequired
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()

	return item, nil
}

// CountByAuthor returns how many companions author has created.
func (s *MemoryStore) CountByAuthor(_ context.Context, author string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.items {
		if item.Author == author {
			count++
		}
	}
	return count, nil
}
