// Package persistence selects the snapshot store used to keep the latest
// cleaned, diffs, merged and summary tables between runs.
package persistence

import (
	"context"
	"fmt"

	"scoretrack/internal/infra/persistence/core"
	"scoretrack/internal/infra/persistence/memory"
	"scoretrack/internal/infra/persistence/postgres"
	"scoretrack/internal/infra/persistence/sqlite"
)

type (
	// TableStore keeps named table snapshots.
	TableStore = core.TableStore
	// Driver names a snapshot backend.
	Driver = core.Driver
)

const (
	DriverNone     = core.DriverNone
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
)

var (
	// ErrTableNotFound is returned when a named table has never been saved.
	ErrTableNotFound = core.ErrTableNotFound
	// ErrInvalidName is returned for names unusable as buckets.
	ErrInvalidName = core.ErrInvalidName
)

// Options selects and configures a snapshot store.
type Options struct {
	Driver      Driver
	SQLitePath  string
	PostgresDSN string
}

// Open returns the configured store. DriverNone (and the empty driver)
// returns a nil store: callers skip persistence.
func Open(ctx context.Context, opts Options) (TableStore, error) {
	switch opts.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(ctx, opts.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown snapshot store %q", opts.Driver)
	}
}
