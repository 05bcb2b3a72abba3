package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoretrack/internal/infra/persistence/core"
	"scoretrack/pkg/tableapi"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	restore := OverrideSQLOpen(func(driver, _ string) (*sql.DB, error) {
		assert.Equal(t, "pgx", driver)
		return db, nil
	})
	t.Cleanup(restore)

	mock.ExpectPing()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS table_snapshots")).WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewStore(context.Background(), "")
	require.NoError(t, err)
	return store, mock
}

func scoreTable() tableapi.Table {
	return tableapi.New([]tableapi.Column{{Name: "patient_id", Type: tableapi.TypeString}, {Name: "num_visit", Type: tableapi.TypeInt}},
		[]tableapi.Row{{"patient_id": "7", "num_visit": 3}})
}

func TestSaveTablesUpsertsInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	upsert := regexp.QuoteMeta("INSERT INTO table_snapshots(bucket,payload,updated_at) VALUES($1,$2,now())")
	mock.ExpectExec(upsert).WithArgs("diffs", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsert).WithArgs("merged", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SaveTables(context.Background(), map[string]tableapi.Table{"merged": scoreTable(), "diffs": scoreTable()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTablesRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO table_snapshots").WithArgs("cleaned", sqlmock.AnyArg()).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.SaveTables(context.Background(), map[string]tableapi.Table{"cleaned": scoreTable()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert cleaned")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadTable(t *testing.T) {
	store, mock := newMockStore(t)
	payload, err := core.Encode(scoreTable())
	require.NoError(t, err)

	query := regexp.QuoteMeta("SELECT payload FROM table_snapshots WHERE bucket = $1")
	mock.ExpectQuery(query).WithArgs("cleaned").WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))
	mock.ExpectQuery(query).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	got, err := store.LoadTable(context.Background(), "cleaned")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Rows[0]["num_visit"])

	_, err = store.LoadTable(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrTableNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTables(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT bucket FROM table_snapshots ORDER BY bucket").
		WillReturnRows(sqlmock.NewRows([]string{"bucket"}).AddRow("cleaned").AddRow("diffs"))
	names, err := store.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cleaned", "diffs"}, names)
	assert.Equal(t, core.DriverPostgres, store.Driver())
}

func TestNewStorePingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	_, err = NewStore(context.Background(), "postgres://example/scoretrack")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping postgres")
}
