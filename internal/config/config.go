// Package config reads scoretrack settings from SCORETRACK_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"scoretrack/internal/blob"
	"scoretrack/internal/ingest"
	"scoretrack/internal/patient"
	"scoretrack/internal/persistence"
	"scoretrack/internal/pipeline"
)

// Environment variables:
//
//	SCORETRACK_BLOB_DRIVER=fs|s3|memory (default fs)
//	SCORETRACK_BLOB_FS_ROOT=<dir> (default ./artifacts)
//	SCORETRACK_BLOB_S3_BUCKET / _REGION / _ENDPOINT / _PREFIX / _PATH_STYLE
//	SCORETRACK_STORE=none|memory|sqlite|postgres (default none)
//	SCORETRACK_SQLITE_PATH=<file> (default scoretrack.db)
//	SCORETRACK_POSTGRES_DSN=<dsn>
//	SCORETRACK_LOG_LEVEL=debug|info|warn|error, SCORETRACK_LOG_FORMAT=json|console
//	SCORETRACK_METRICS_FILE=<path> (textfile output, disabled when empty)
//	SCORETRACK_CUTOFF=<float> (default 10)
//	SCORETRACK_SEED=<uint> (0 draws a time based seed)
//	SCORETRACK_DATE_POLICY=independent|reference
//	SCORETRACK_SIMULATE_AGE=true|false (default true)
//	SCORETRACK_DROP_NULL=true|false (default true)
//	SCORETRACK_DELIMITER=<char>|tab|semicolon|pipe (default comma)
const Prefix = "SCORETRACK_"

// Config is the resolved runtime configuration.
type Config struct {
	Blob        blob.Options
	Store       persistence.Options
	LogLevel    string
	LogFormat   string
	MetricsFile string
	Cutoff      float64
	Seed        uint64
	DatePolicy  pipeline.DatePolicy
	SimulateAge bool
	DropNull    bool
	Delimiter   rune
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Blob:        blob.Options{Driver: blob.DriverFilesystem, FSRoot: "./artifacts"},
		Store:       persistence.Options{Driver: persistence.DriverNone, SQLitePath: "scoretrack.db"},
		LogLevel:    "info",
		LogFormat:   "json",
		Cutoff:      patient.ClinicalCutoff,
		DatePolicy:  pipeline.DatePolicyIndependent,
		SimulateAge: true,
		DropNull:    true,
		Delimiter:   ',',
	}
}

// Load applies envFile (or ./.env when envFile is empty and the file exists)
// without overriding variables already set, then reads the environment.
func Load(envFile string) (Config, error) {
	switch {
	case envFile != "":
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	default:
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, which has the shape of os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(name string) (string, bool) {
		v, ok := lookup(Prefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	var errs []error
	fail := func(name string, err error) { errs = append(errs, fmt.Errorf("%s%s: %w", Prefix, name, err)) }

	if v, ok := get("BLOB_DRIVER"); ok {
		cfg.Blob.Driver = blob.Driver(strings.ToLower(v))
	}
	if v, ok := get("BLOB_FS_ROOT"); ok {
		cfg.Blob.FSRoot = v
	}
	cfg.Blob.S3.Bucket, _ = get("BLOB_S3_BUCKET")
	cfg.Blob.S3.Region, _ = get("BLOB_S3_REGION")
	cfg.Blob.S3.Endpoint, _ = get("BLOB_S3_ENDPOINT")
	cfg.Blob.S3.Prefix, _ = get("BLOB_S3_PREFIX")
	if v, ok := get("BLOB_S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail("BLOB_S3_PATH_STYLE", err)
		}
		cfg.Blob.S3.PathStyle = b
	}
	if cfg.Blob.Driver == blob.DriverS3 && cfg.Blob.S3.Bucket == "" {
		fail("BLOB_S3_BUCKET", errors.New("required for s3 driver"))
	}

	if v, ok := get("STORE"); ok {
		cfg.Store.Driver = persistence.Driver(strings.ToLower(v))
	}
	if v, ok := get("SQLITE_PATH"); ok {
		cfg.Store.SQLitePath = v
	}
	cfg.Store.PostgresDSN, _ = get("POSTGRES_DSN")

	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.LogFormat = strings.ToLower(v)
	}
	cfg.MetricsFile, _ = get("METRICS_FILE")

	if v, ok := get("CUTOFF"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fail("CUTOFF", err)
		}
		cfg.Cutoff = f
	}
	if v, ok := get("SEED"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			fail("SEED", err)
		}
		cfg.Seed = n
	}
	if v, ok := get("DATE_POLICY"); ok {
		p, err := pipeline.ParseDatePolicy(v)
		if err != nil {
			fail("DATE_POLICY", err)
		}
		cfg.DatePolicy = p
	}
	if v, ok := get("SIMULATE_AGE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail("SIMULATE_AGE", err)
		}
		cfg.SimulateAge = b
	}
	if v, ok := get("DROP_NULL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail("DROP_NULL", err)
		}
		cfg.DropNull = b
	}
	if v, ok := get("DELIMITER"); ok {
		r, err := ingest.ParseDelimiter(v)
		if err != nil {
			fail("DELIMITER", err)
		}
		cfg.Delimiter = r
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PipelineOptions converts the config into cleaner options.
func (c Config) PipelineOptions() pipeline.Options {
	opts := pipeline.Options{DatePolicy: c.DatePolicy, SimulateAge: c.SimulateAge}
	if c.Seed != 0 {
		opts.Rand = pipeline.NewRand(c.Seed)
	}
	return opts
}

// IngestOptions converts the config into reader options.
func (c Config) IngestOptions() ingest.Options {
	opts := ingest.DefaultOptions()
	opts.Delimiter = c.Delimiter
	return opts
}
