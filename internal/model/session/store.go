package session

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("session not found")

// Store persists sessions and their notes.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	// LatestForCompanion returns the session with the greatest CreatedAt for
	// companionID. ok is false when the companion has no sessions.
	LatestForCompanion(ctx context.Context, companionID string) (s Session, ok bool, err error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Session, error)
	AppendNote(ctx context.Context, note Note) error
	ListNotes(ctx context.Context, sessionID string) ([]Note, error)
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	notes    map[string][]Note
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		notes:    make(map[string][]Note),
	}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	m.sessions[s.ID] = s
	if _, ok := m.notes[s.ID]; !ok {
		m.notes[s.ID] = make([]Note, 0, 16)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) LatestForCompanion(_ context.Context, companionID string) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		latest Session
		found  bool
	)
	for _, s := range m.sessions {
		if s.CompanionID != companionID {
			continue
		}
		if !found || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
			found = true
		}
	}
	return latest, found, nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]Session, error) {
	m.mu.RLock()
	out := make([]Session, 0)
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendNote(_ context.Context, note Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[note.SessionID]; !ok {
		return ErrNotFound
	}
	m.notes[note.SessionID] = append(m.notes[note.SessionID], note)
	return nil
}

func (m *MemoryStore) ListNotes(_ context.Context, sessionID string) ([]Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	notes, ok := m.notes[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := make([]Note, len(notes))
	copy(copied, notes)
	return copied, nil
}
