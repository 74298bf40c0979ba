package configentry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists config entries.
type Repository interface {
	// Create inserts an entry. Returns ErrEntryExists if the API key is
	// already stored.
	Create(ctx context.Context, e *Entry) error

	// Get returns ErrEntryNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Entry, error)

	// GetByAPIKey returns ErrEntryNotFound when no entry holds the key.
	GetByAPIKey(ctx context.Context, apiKey string) (*Entry, error)

	// List returns entries oldest first.
	List(ctx context.Context) ([]Entry, error)

	// Delete removes an entry and, through the foreign key, its entities.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `SELECT id, domain, title, api_key, account_email, created_at, updated_at FROM config_entries`

// Create inserts a new entry.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Domain == "" {
		e.Domain = Domain
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config_entries (id, domain, title, api_key, account_email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Domain, e.Title, e.APIKey, nullableString(e.AccountEmail),
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrEntryExists
		}
		return fmt.Errorf("inserting config entry: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Entry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying config entry: %w", err)
	}
	return e, nil
}

// GetByAPIKey retrieves the entry holding apiKey.
func (r *SQLiteRepository) GetByAPIKey(ctx context.Context, apiKey string) (*Entry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, selectColumns+` WHERE api_key = ?`, apiKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying config entry: %w", err)
	}
	return e, nil
}

// List retrieves all entries.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying config entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning config entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating config entries: %w", err)
	}
	return entries, nil
}

// Delete removes an entry by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM config_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting config entry: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*Entry, error) {
	var e Entry
	var email sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&e.ID, &e.Domain, &e.Title, &e.APIKey, &email, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.AccountEmail = email.String

	var err error
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &e, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
