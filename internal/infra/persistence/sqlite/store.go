// Package sqlite persists table snapshots to a single SQLite table as JSON blobs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"scoretrack/internal/infra/persistence/core"
	"scoretrack/pkg/tableapi"
)

// Store upserts one row per table name into table_snapshots.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var _ core.TableStore = (*Store)(nil)

// NewStore opens (or creates) the database at path and ensures the snapshot
// table exists.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "scoretrack.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS table_snapshots (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverSQLite }

func (s *Store) SaveTables(ctx context.Context, tables map[string]tableapi.Table) (retErr error) {
	names := make([]string, 0, len(tables))
	for name := range tables {
		if err := core.ValidateName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, name := range names {
		data, err := core.Encode(tables[name])
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO table_snapshots(bucket,payload,updated_at) VALUES(?,?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`, name, data, now); err != nil {
			return fmt.Errorf("upsert %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) LoadTable(ctx context.Context, name string) (tableapi.Table, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM table_snapshots WHERE bucket = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return tableapi.Table{}, core.NotFound(name)
	}
	if err != nil {
		return tableapi.Table{}, fmt.Errorf("select %s: %w", name, err)
	}
	t, err := core.Decode(payload)
	if err != nil {
		return tableapi.Table{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return t, nil
}

func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket FROM table_snapshots ORDER BY bucket`)
	if err != nil {
		return nil, fmt.Errorf("select buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
