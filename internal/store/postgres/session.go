package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/zhouzirui/z-companion/backend/internal/model/session"
)

var (
	sessionColumns = []string{"id", "companion_id", "user_id", "created_at"}
	noteColumns    = []string{"id", "session_id", "role", "content", "created_at"}
)

// SessionStore implements session.Store using PostgreSQL.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a session store backed by db.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts a session row. An empty UserID is stored as NULL.
func (s *SessionStore) Create(ctx context.Context, sess session.Session) error {
	userID := sql.NullString{String: sess.UserID, Valid: sess.UserID != ""}
	query, args, err := psq.Insert("session_history").
		Columns(sessionColumns...).
		Values(sess.ID, sess.CompanionID, userID, sess.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building session insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (session.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("session_history").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return session.Session{}, fmt.Errorf("building session query: %w", err)
	}

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	return sess, err
}

// LatestForCompanion selects the newest session for companionID. Rows sharing
// the same created_at come back in whatever order Postgres picks.
func (s *SessionStore) LatestForCompanion(ctx context.Context, companionID string) (session.Session, bool, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("session_history").
		Where(sq.Eq{"companion_id": companionID}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return session.Session{}, false, fmt.Errorf("building latest session query: %w", err)
	}

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, false, nil
	}
	if err != nil {
		return session.Session{}, false, err
	}
	return sess, true, nil
}

// ListByUser returns userID's sessions, newest first.
func (s *SessionStore) ListByUser(ctx context.Context, userID string, limit int) ([]session.Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query, args, err := psq.Select(sessionColumns...).
		From("session_history").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return items, nil
}

// AppendNote inserts a note; the foreign key rejects unknown sessions, so the
// session is checked first to report session.ErrNotFound.
func (s *SessionStore) AppendNote(ctx context.Context, note session.Note) error {
	if _, err := s.Get(ctx, note.SessionID); err != nil {
		return err
	}

	query, args, err := psq.Insert("session_notes").
		Columns(noteColumns...).
		Values(note.ID, note.SessionID, note.Role, note.Content, note.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building note insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting note: %w", err)
	}
	return nil
}

// ListNotes returns notes for sessionID in creation order.
func (s *SessionStore) ListNotes(ctx context.Context, sessionID string) ([]session.Note, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	query, args, err := psq.Select(noteColumns...).
		From("session_notes").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building notes query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	notes := make([]session.Note, 0)
	for rows.Next() {
		var n session.Note
		if err := rows.Scan(&n.ID, &n.SessionID, &n.Role, &n.Content, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating note rows: %w", err)
	}
	return notes, nil
}

func scanSession(row rowScanner) (session.Session, error) {
	var (
		sess   session.Session
		userID sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.CompanionID, &userID, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, err
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("scanning session: %w", err)
	}
	sess.UserID = userID.String
	return sess, nil
}

// Verify interface compliance.
var _ session.Store = (*SessionStore)(nil)
