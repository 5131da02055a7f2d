package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ari/token-report/internal/refresh"
	"github.com/ari/token-report/internal/tracker"
	"github.com/ari/token-report/internal/usage"
	"github.com/bytedance/sonic"
)

const lastRefreshKey = "last_refresh_"

// Store persists refresh cache entries in SQLite
type Store struct {
	db *DB
}

// New opens the store at dbPath, creating its directory if needed
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the entry of its period
func (s *Store) Save(ctx context.Context, entry refresh.Entry) error {
	payload, err := sonic.MarshalString(entry.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	row := &EntryRow{
		Period:     string(entry.Period),
		Payload:    payload,
		ComputedAt: entry.ComputedAt.UnixMilli(),
		CivilDay:   entry.CivilDay,
		DailyKey:   entry.DailyKey,
	}
	if err := s.db.UpsertEntry(ctx, row); err != nil {
		return err
	}
	return s.db.SetMetadata(ctx, lastRefreshKey+row.Period, strconv.FormatInt(row.ComputedAt, 10), time.Now().Unix())
}

// Load returns every persisted entry. Rows whose payload no longer decodes
// are skipped so a format change only costs one recompute.
func (s *Store) Load(ctx context.Context) ([]refresh.Entry, error) {
	rows, err := s.db.GetAllEntries(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]refresh.Entry, 0, len(rows))
	for _, row := range rows {
		var report usage.Report
		if err := sonic.UnmarshalString(row.Payload, &report); err != nil {
			continue
		}
		entries = append(entries, refresh.Entry{
			Period:     tracker.Period(row.Period),
			Report:     &report,
			ComputedAt: time.UnixMilli(row.ComputedAt),
			CivilDay:   row.CivilDay,
			DailyKey:   row.DailyKey,
		})
	}
	return entries, nil
}

// Clear deletes every persisted entry
func (s *Store) Clear(ctx context.Context) (int64, error) {
	return s.db.DeleteAllEntries(ctx)
}

// LastRefresh returns when period was last saved, or the zero time
func (s *Store) LastRefresh(ctx context.Context, period tracker.Period) (time.Time, error) {
	value, err := s.db.GetMetadata(ctx, lastRefreshKey+string(period))
	if err != nil || value == "" {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last refresh time: %w", err)
	}
	return time.UnixMilli(ms), nil
}
