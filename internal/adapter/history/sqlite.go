// Package history stores delivered results in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"voicekey/internal/domain"
)

// timeLayout is fixed-width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements domain.HistoryStore.
type SQLiteStore struct {
	db         *sql.DB
	maxEntries int
}

var _ domain.HistoryStore = (*SQLiteStore)(nil)

// Open opens (or creates) the history database at dbPath. When maxEntries
// is positive, Append keeps only the newest maxEntries rows.
func Open(dbPath string, maxEntries int) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteStore{db: db, maxEntries: maxEntries}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			id           TEXT PRIMARY KEY,
			created_at   TEXT NOT NULL,
			mode         TEXT NOT NULL,
			app_name     TEXT NOT NULL DEFAULT '',
			bundle_id    TEXT NOT NULL DEFAULT '',
			window_title TEXT NOT NULL DEFAULT '',
			raw_text     TEXT NOT NULL DEFAULT '',
			final_text   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS history_created_at ON history(created_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts entry and prunes the oldest rows beyond the size limit.
func (s *SQLiteStore) Append(ctx context.Context, e domain.HistoryEntry) error {
	const op = "history.Append"
	if e.ID == "" {
		return domain.NewDomainError(op, domain.ErrInvalidInput, "empty id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, created_at, mode, app_name, bundle_id, window_title, raw_text, final_text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UTC().Format(timeLayout), string(e.Mode),
		e.App.Name, e.App.BundleID, e.App.WindowTitle, e.RawText, e.FinalText,
	)
	if err != nil {
		return domain.NewDomainError(op, domain.ErrHistoryWrite, err.Error())
	}

	if s.maxEntries > 0 {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM history WHERE id NOT IN (
				SELECT id FROM history ORDER BY created_at DESC, id DESC LIMIT ?
			)`, s.maxEntries)
		if err != nil {
			return domain.NewDomainError(op, domain.ErrHistoryWrite, "prune: "+err.Error())
		}
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, mode, app_name, bundle_id, window_title, raw_text, final_text
		 FROM history ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			e       domain.HistoryEntry
			created string
			mode    string
		)
		if err := rows.Scan(&e.ID, &created, &mode, &e.App.Name, &e.App.BundleID, &e.App.WindowTitle, &e.RawText, &e.FinalText); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		e.Mode = domain.RecordingMode(mode)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneBefore deletes entries created before cutoff and returns how many
// were removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM history WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, domain.NewDomainError("history.PruneBefore", domain.ErrHistoryWrite, err.Error())
	}
	return res.RowsAffected()
}
