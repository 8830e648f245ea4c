package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-companion/backend/internal/model/session"
)

var (
	ErrCompanionIDRequired = errors.New("companion id is required")
	ErrUserRequired        = errors.New("user id is required")
	ErrContentRequired     = errors.New("note content is required")
	ErrUnsupportedRole     = errors.New("unsupported note role")
	ErrSessionNotFound     = session.ErrNotFound
)

// validRoles lists the speakers a note may be attributed to.
var validRoles = map[string]bool{"user": true, "assistant": true, "system": true}

// Latest is the outcome of a latest-session lookup. Found is false when the
// companion has no sessions yet, which is not an error.
type Latest struct {
	SessionID string
	Found     bool
}

// Service encapsulates session history and notes on top of a session.Store.
type Service struct {
	store session.Store
	now   func() time.Time
}

// NewService wires a session service to its store.
func NewService(store session.Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Latest returns the identifier of the most recent session for companionID.
func (s *Service) Latest(ctx context.Context, companionID string) (Latest, error) {
	companionID = strings.TrimSpace(companionID)
	if companionID == "" {
		return Latest{}, ErrCompanionIDRequired
	}

	latest, ok, err := s.store.LatestForCompanion(ctx, companionID)
	if err != nil {
		return Latest{}, fmt.Errorf("querying latest session for %s: %w", companionID, err)
	}
	if !ok {
		return Latest{}, nil
	}
	return Latest{SessionID: latest.ID, Found: true}, nil
}

// Start records a new session between userID and companionID.
func (s *Service) Start(ctx context.Context, companionID, userID string) (session.Session, error) {
	companionID = strings.TrimSpace(companionID)
	if companionID == "" {
		return session.Session{}, ErrCompanionIDRequired
	}
	if userID == "" {
		return session.Session{}, ErrUserRequired
	}

	record := session.Session{
		ID:          uuid.NewString(),
		CompanionID: companionID,
		UserID:      userID,
		CreatedAt:   s.now(),
	}
	if err := s.store.Create(ctx, record); err != nil {
		return session.Session{}, fmt.Errorf("creating session: %w", err)
	}
	return record, nil
}

// Get retrieves a session by identifier.
func (s *Service) Get(ctx context.Context, sessionID string) (session.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// History lists userID's sessions, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]session.Session, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	items, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return items, nil
}

// AddNote appends a transcript line to a session.
func (s *Service) AddNote(ctx context.Context, sessionID, role, content string) (session.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return session.Note{}, ErrContentRequired
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = "user"
	}
	if !validRoles[role] {
		return session.Note{}, fmt.Errorf("%w %q", ErrUnsupportedRole, role)
	}

	note := session.Note{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendNote(ctx, note); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return session.Note{}, ErrSessionNotFound
		}
		return session.Note{}, fmt.Errorf("saving note: %w", err)
	}
	return note, nil
}

// Notes returns the stored notes for sessionID in insertion order.
func (s *Service) Notes(ctx context.Context, sessionID string) ([]session.Note, error) {
	notes, err := s.store.ListNotes(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("loading notes: %w", err)
	}
	return notes, nil
}
