package entity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists entity registrations. Connectivity state is never
// stored.
type Repository interface {
	// Upsert inserts or replaces a registration.
	Upsert(ctx context.Context, e *Entity) error

	// List returns every registration ordered by id.
	List(ctx context.Context) ([]Entity, error)

	// Delete removes a registration. Returns ErrEntityNotFound for unknown ids.
	Delete(ctx context.Context, id string) error

	// DeleteByEntry removes every registration of an entry.
	DeleteByEntry(ctx context.Context, entryID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts e, or updates the stored row with the same id.
func (r *SQLiteRepository) Upsert(ctx context.Context, e *Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entities (
			id, entry_id, kind, name, device_name, manufacturer, model,
			model_code, sw_version, hw_version, via_device_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entry_id = excluded.entry_id,
			kind = excluded.kind,
			name = excluded.name,
			device_name = excluded.device_name,
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			model_code = excluded.model_code,
			sw_version = excluded.sw_version,
			hw_version = excluded.hw_version,
			via_device_id = excluded.via_device_id,
			updated_at = excluded.updated_at`,
		e.ID, e.EntryID, string(e.Kind), e.Name,
		e.Device.Name, e.Device.Manufacturer, e.Device.Model,
		nullableString(e.Device.ModelCode),
		nullableString(e.Device.SWVersion),
		nullableString(e.Device.HWVersion),
		nullableString(e.Device.ViaDeviceID),
		e.CreatedAt.Format(time.RFC3339),
		e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting entity: %w", err)
	}
	return nil
}

// List retrieves every registration.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entry_id, kind, name, device_name, manufacturer, model,
			model_code, sw_version, hw_version, via_device_id, created_at, updated_at
		FROM entities
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return out, nil
}

// Delete removes a registration by id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// DeleteByEntry removes all registrations of entryID.
func (r *SQLiteRepository) DeleteByEntry(ctx context.Context, entryID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM entities WHERE entry_id = ?", entryID); err != nil {
		return fmt.Errorf("deleting entities of entry: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(s rowScanner) (*Entity, error) {
	var e Entity
	var kind, createdAt, updatedAt string
	var modelCode, swVersion, hwVersion, via sql.NullString

	err := s.Scan(&e.ID, &e.EntryID, &kind, &e.Name,
		&e.Device.Name, &e.Device.Manufacturer, &e.Device.Model,
		&modelCode, &swVersion, &hwVersion, &via, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Kind = Kind(kind)
	e.DeviceClass = DeviceClass
	e.Category = Category
	e.Icon = Icon
	e.Device.ModelCode = modelCode.String
	e.Device.SWVersion = swVersion.String
	e.Device.HWVersion = hwVersion.String
	e.Device.ViaDeviceID = via.String

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
