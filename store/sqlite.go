package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crosswire-ai/crosswire/provider"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS provider_configs (
	id TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

const defaultSQLiteStoreDB = "crosswire.db"

// SQLiteStore persists provider configs in SQLite. This store is intended
// for daemon mode, where several commands share one database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultSQLitePath returns the default SQLite path for daemon storage.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultStoreDir, defaultSQLiteStoreDB), nil
}

// NewDefaultSQLiteStore opens the store at the default path under the
// user's home directory.
func NewDefaultSQLiteStore() (*SQLiteStore, error) {
	path, err := DefaultSQLitePath()
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(path)
}

// NewSQLiteStore opens (or creates) a SQLite-backed config store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("store: sqlite dsn is required")
	}
	if dir := filepath.Dir(dsn); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sqlite set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sqlite create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// List returns all configs in deterministic (id-sorted) order.
func (s *SQLiteStore) List(ctx context.Context) ([]provider.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("store: sqlite store is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT payload
FROM provider_configs
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite list configs: %w", err)
	}
	defer rows.Close()

	var configs []provider.Config
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: sqlite scan config: %w", err)
		}
		var cfg provider.Config
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, fmt.Errorf("store: sqlite decode config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: sqlite config rows: %w", err)
	}
	return configs, nil
}

// Get returns a config by provider id.
func (s *SQLiteStore) Get(ctx context.Context, providerID string) (provider.Config, bool, error) {
	if err := ctx.Err(); err != nil {
		return provider.Config{}, false, err
	}
	if s == nil || s.db == nil {
		return provider.Config{}, false, errors.New("store: sqlite store is nil")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT payload
FROM provider_configs
WHERE id = ?`, providerID)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return provider.Config{}, false, nil
		}
		return provider.Config{}, false, fmt.Errorf("store: sqlite get config: %w", err)
	}

	var cfg provider.Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return provider.Config{}, false, fmt.Errorf("store: sqlite decode config: %w", err)
	}
	return cfg, true, nil
}

// Upsert inserts or updates a config by provider id. The launch tuple is
// validated before anything touches the database.
func (s *SQLiteStore) Upsert(ctx context.Context, cfg provider.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("store: sqlite store is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: sqlite encode config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO provider_configs (id, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	payload = excluded.payload,
	updated_at = excluded.updated_at`,
		cfg.ID,
		payload,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: sqlite upsert config: %w", err)
	}
	return nil
}

// Delete removes a config by provider id. Deleting a missing id is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, providerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("store: sqlite store is nil")
	}

	if _, err := s.db.ExecContext(ctx, `
DELETE FROM provider_configs
WHERE id = ?`, providerID); err != nil {
		return fmt.Errorf("store: sqlite delete config: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
