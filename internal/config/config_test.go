package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoretrack/internal/blob"
	"scoretrack/internal/persistence"
	"scoretrack/internal/pipeline"
)

func lookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookup(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, blob.DriverFilesystem, cfg.Blob.Driver)
	assert.Equal(t, persistence.DriverNone, cfg.Store.Driver)
	assert.Equal(t, 10.0, cfg.Cutoff)
	assert.True(t, cfg.SimulateAge)
	assert.Nil(t, cfg.PipelineOptions().Rand)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{
		"SCORETRACK_BLOB_DRIVER":        "S3",
		"SCORETRACK_BLOB_S3_BUCKET":     "scores",
		"SCORETRACK_BLOB_S3_PATH_STYLE": "true",
		"SCORETRACK_STORE":              "sqlite",
		"SCORETRACK_SQLITE_PATH":        "/tmp/s.db",
		"SCORETRACK_CUTOFF":             "12.5",
		"SCORETRACK_SEED":               "42",
		"SCORETRACK_DATE_POLICY":        "reference",
		"SCORETRACK_SIMULATE_AGE":       "false",
		"SCORETRACK_DROP_NULL":          "0",
		"SCORETRACK_DELIMITER":          "tab",
		"SCORETRACK_LOG_FORMAT":         "Console",
	}))
	require.NoError(t, err)
	assert.Equal(t, blob.DriverS3, cfg.Blob.Driver)
	assert.Equal(t, "scores", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, persistence.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, 12.5, cfg.Cutoff)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, pipeline.DatePolicyReference, cfg.DatePolicy)
	assert.False(t, cfg.SimulateAge)
	assert.False(t, cfg.DropNull)
	assert.Equal(t, '\t', cfg.Delimiter)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.NotNil(t, cfg.PipelineOptions().Rand)
	assert.Equal(t, '\t', cfg.IngestOptions().Delimiter)
}

func TestInvalidValuesAreCollected(t *testing.T) {
	_, err := FromLookup(lookup(map[string]string{
		"SCORETRACK_BLOB_DRIVER": "s3",
		"SCORETRACK_CUTOFF":      "ten",
		"SCORETRACK_SEED":        "-1",
	}))
	require.Error(t, err)
	for _, name := range []string{"BLOB_S3_BUCKET", "CUTOFF", "SEED"} {
		assert.Contains(t, err.Error(), Prefix+name)
	}
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SCORETRACK_CUTOFF=14\nSCORETRACK_STORE=memory\n"), 0o600))
	t.Setenv("SCORETRACK_STORE", "sqlite")
	// t.Setenv restores the variable; register the one the file introduces too.
	t.Setenv("SCORETRACK_CUTOFF", "")
	require.NoError(t, os.Unsetenv("SCORETRACK_CUTOFF"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 14.0, cfg.Cutoff)
	assert.Equal(t, persistence.DriverSQLite, cfg.Store.Driver)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
