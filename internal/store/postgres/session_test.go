package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-companion/backend/internal/model/session"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestLatestForCompanion(t *testing.T) {
	db, mock := newMock(t)
	store := NewSessionStore(db)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(sessionColumns).AddRow("s3", "c1", "user_1", created)
	mock.ExpectQuery(`SELECT .+ FROM session_history WHERE companion_id = \$1 ORDER BY created_at DESC LIMIT 1`).
		WithArgs("c1").
		WillReturnRows(rows)

	got, ok, err := store.LatestForCompanion(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s3", got.ID)
	assert.Equal(t, "user_1", got.UserID)
	assert.Equal(t, created, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestForCompanionNoRows(t *testing.T) {
	db, mock := newMock(t)
	store := NewSessionStore(db)

	mock.ExpectQuery(`SELECT .+ FROM session_history`).
		WithArgs("c2").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, ok, err := store.LatestForCompanion(context.Background(), "c2")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestForCompanionQueryError(t *testing.T) {
	db, mock := newMock(t)
	store := NewSessionStore(db)
	connErr := errors.New("driver: bad connection")

	mock.ExpectQuery(`SELECT .+ FROM session_history`).
		WithArgs("c3").
		WillReturnError(connErr)

	_, ok, err := store.LatestForCompanion(context.Background(), "c3")
	require.Error(t, err)
	assert.ErrorIs(t, err, connErr)
	assert.False(t, ok)
}

func TestSessionCreate(t *testing.T) {
	db, mock := newMock(t)
	store := NewSessionStore(db)
	sess := session.Session{ID: "s1", CompanionID: "c1", UserID: "u1", CreatedAt: time.Now().UTC()}

	mock.ExpectExec(`INSERT INTO session_history \(id,companion_id,user_id,created_at\)`).
		WithArgs(sess.ID, sess.CompanionID, sess.UserID, sess.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Create(context.Background(), sess))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionCreateAnonymousStoresNullUser(t *testing.T) {
	db, mock := newMock(t)
	store := NewSessionStore(db)
	sess := session.Session{ID: "s2", CompanionID: "c1", CreatedAt: time.Now().UTC()}

	mock.ExpectExec(`INSERT INTO session_history \(id,companion_id,user_id,created_at\)`).
		WithArgs(sess.ID, sess.CompanionID, nil, sess.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Create(context.Background(), sess))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	store := NewSessionStore(db)

	mock.ExpectQuery(`SELECT .+ FROM session_history WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestListByUser(t *testing.T) {
	db, mock := newMock(t)
	store := NewSessionStore(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(sessionColumns).
		AddRow("s2", "c1", "u1", now).
		AddRow("s1", "c2", "u1", now.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM session_history WHERE user_id = \$1 ORDER BY created_at DESC LIMIT 5`).
		WithArgs("u1").
		WillReturnRows(rows)

	items, err := store.ListByUser(context.Background(), "u1", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "s2", items[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendNoteUnknownSession(t *testing.T) {
	db, mock := newMock(t)
	store := NewSessionStore(db)

	mock.ExpectQuery(`SELECT .+ FROM session_history WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	err := store.AppendNote(context.Background(), session.Note{ID: "n1", SessionID: "missing", Role: "user", Content: "hi"})
	assert.ErrorIs(t, err, session.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAndListNotes(t *testing.T) {
	db, mock := newMock(t)
	store := NewSessionStore(db)
	now := time.Now().UTC()
	note := session.Note{ID: "n1", SessionID: "s1", Role: "user", Content: "hi", CreatedAt: now}

	mock.ExpectQuery(`SELECT .+ FROM session_history WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow("s1", "c1", "u1", now))
	mock.ExpectExec(`INSERT INTO session_notes`).
		WithArgs(note.ID, note.SessionID, note.Role, note.Content, note.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.AppendNote(context.Background(), note))

	mock.ExpectQuery(`SELECT .+ FROM session_history WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow("s1", "c1", "u1", now))
	mock.ExpectQuery(`SELECT .+ FROM session_notes WHERE session_id = \$1 ORDER BY created_at ASC, id ASC`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(noteColumns).AddRow("n1", "s1", "user", "hi", now))

	notes, err := store.ListNotes(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "hi", notes[0].Content)
	require.NoError(t, mock.ExpectationsWereMet())
}
