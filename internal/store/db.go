package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB represents the database connection
type DB struct {
	db *sql.DB
}

// Open opens the database at the given path
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return d, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.db.Close()
}

// migrate creates the database tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS period_cache (
		period TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		computed_at INTEGER NOT NULL,
		civil_day TEXT NOT NULL,
		daily_key TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER
	);
	`

	_, err := db.db.Exec(schema)
	return err
}

// EntryRow represents a period_cache row
type EntryRow struct {
	Period     string
	Payload    string
	ComputedAt int64 // Unix milliseconds
	CivilDay   string
	DailyKey   string
}

// UpsertEntry replaces the row of a period in one statement
func (db *DB) UpsertEntry(ctx context.Context, r *EntryRow) error {
	query := `INSERT OR REPLACE INTO period_cache (period, payload, computed_at, civil_day, daily_key)
		VALUES (?, ?, ?, ?, ?)`
	_, err := db.db.ExecContext(ctx, query, r.Period, r.Payload, r.ComputedAt, r.CivilDay, r.DailyKey)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// GetAllEntries returns every cached period
func (db *DB) GetAllEntries(ctx context.Context) ([]EntryRow, error) {
	query := `SELECT period, payload, computed_at, civil_day, daily_key FROM period_cache ORDER BY period`

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	var entries []EntryRow
	for rows.Next() {
		var r EntryRow
		if err := rows.Scan(&r.Period, &r.Payload, &r.ComputedAt, &r.CivilDay, &r.DailyKey); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entries = append(entries, r)
	}
	return entries, rows.Err()
}

// DeleteAllEntries removes every cached period and returns how many were removed
func (db *DB) DeleteAllEntries(ctx context.Context) (int64, error) {
	result, err := db.db.ExecContext(ctx, `DELETE FROM period_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	return result.RowsAffected()
}

// SetMetadata stores a key/value pair
func (db *DB) SetMetadata(ctx context.Context, key, value string, updatedAt int64) error {
	query := `INSERT OR REPLACE INTO metadata (key, value, updated_at) VALUES (?, ?, ?)`
	if _, err := db.db.ExecContext(ctx, query, key, value, updatedAt); err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata returns the value of key, or "" if it was never set
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}
