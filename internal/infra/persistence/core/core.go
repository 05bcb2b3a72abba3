// Package core defines the snapshot store contract for named tables and the
// JSON payload codec the SQL drivers share.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"scoretrack/pkg/tableapi"
)

// Driver identifies a snapshot store backend.
type Driver string

const (
	DriverNone     Driver = "none"
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// TableStore keeps the latest snapshot of each named table. One bucket per
// table name; saving a name again replaces its payload.
type TableStore interface {
	// SaveTables writes all tables in a single transaction.
	SaveTables(ctx context.Context, tables map[string]tableapi.Table) error
	// LoadTable returns the stored table with cell types restored from its schema.
	LoadTable(ctx context.Context, name string) (tableapi.Table, error)
	// ListTables returns stored table names in ascending order.
	ListTables(ctx context.Context) ([]string, error)
	Close() error
	Driver() Driver
}

var (
	// ErrTableNotFound is returned by LoadTable for unknown names.
	ErrTableNotFound = errors.New("snapshot: table not found")
	// ErrInvalidName rejects bucket names outside [a-z0-9_-].
	ErrInvalidName = errors.New("snapshot: invalid table name")
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateName checks that name is usable as a bucket key.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Encode serialises a table for storage. NaN cells are stored as null.
func Encode(t tableapi.Table) ([]byte, error) {
	return json.Marshal(t.Sanitized())
}

// Decode parses a stored payload and restores typed cells.
func Decode(payload []byte) (tableapi.Table, error) {
	var t tableapi.Table
	if err := json.Unmarshal(payload, &t); err != nil {
		return tableapi.Table{}, err
	}
	return t.Restore()
}

// NotFound wraps ErrTableNotFound with the table name.
func NotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrTableNotFound, name)
}
