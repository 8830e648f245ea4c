package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/zhouzirui/z-companion/backend/internal/model/companion"
)

var companionColumns = []string{
	"id", "name", "subject", "topic", "voice", "style", "duration", "author", "created_at",
}

// CompanionStore implements companion.Store using PostgreSQL.
type CompanionStore struct {
	db *sql.DB
}

// NewCompanionStore creates a companion store backed by db.
func NewCompanionStore(db *sql.DB) *CompanionStore {
	return &CompanionStore{db: db}
}

// List returns companions matching filter, newest first.
func (s *CompanionStore) List(ctx context.Context, filter companion.Filter) ([]companion.Companion, error) {
	qb := psq.Select(companionColumns...).From("companions")
	if filter.Subject != "" {
		qb = qb.Where(sq.Eq{"subject": filter.Subject})
	}
	if filter.Author != "" {
		qb = qb.Where(sq.Eq{"author": filter.Author})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	qb = qb.OrderBy("created_at DESC").Limit(uint64(limit))

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building companion query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing companions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []companion.Companion
	for rows.Next() {
		item, err := scanCompanion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating companion rows: %w", err)
	}
	return items, nil
}

// FindByID looks up a companion by identifier.
func (s *CompanionStore) FindByID(ctx context.Context, id string) (companion.Companion, error) {
	query, args, err := psq.Select(companionColumns...).
		From("companions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return companion.Companion{}, fmt.Errorf("building companion query: %w", err)
	}

	item, err := scanCompanion(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return companion.Companion{}, companion.ErrNotFound
	}
	return item, err
}

// Create inserts a companion.
func (s *CompanionStore) Create(ctx context.Context, item companion.Companion) (companion.Companion, error) {
	if item.Name == "" {
		return companion.Companion{}, companion.ErrNameRequired
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	query, args, err := psq.Insert("companions").
		Columns(companionColumns...).
		Values(item.ID, item.Name, item.Subject, item.Topic, item.Voice,
			item.Style, item.Duration, item.Author, item.CreatedAt).
		ToSql()
	if err != nil {
		return companion.Companion{}, fmt.Errorf("building companion insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return companion.Companion{}, fmt.Errorf("inserting companion: %w", err)
	}
	return item, nil
}

// CountByAuthor returns how many companions author has created.
func (s *CompanionStore) CountByAuthor(ctx context.Context, author string) (int, error) {
	query, args, err := psq.Select("COUNT(*)").
		From("companions").
		Where(sq.Eq{"author": author}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting companions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompanion(row rowScanner) (companion.Companion, error) {
	var (
		item   companion.Companion
		voice  sql.NullString
		style  sql.NullString
		author sql.NullString
	)
	err := row.Scan(&item.ID, &item.Name, &item.Subject, &item.Topic, &voice,
		&style, &item.Duration, &author, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return companion.Companion{}, err
	}
	if err != nil {
		return companion.Companion{}, fmt.Errorf("scanning companion: %w", err)
	}
	item.Voice = voice.String
	item.Style = style.String
	item.Author = author.String
	return item, nil
}

// Verify interface compliance.
var _ companion.Store = (*CompanionStore)(nil)
