// Command scoretrack cleans clinical assessment exports, derives per-patient
// progress statistics and publishes tables and charts.
//
// Usage:
//
//	scoretrack [-env file] run -input assessments.csv [-formats csv,json,xlsx] [-no-charts]
//	scoretrack [-env file] patient -id 42 [-cleaned cleaned.csv] [-chart]
//	scoretrack synth -out raw.csv [-patients 25] [-seed 1] [-format csv]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"scoretrack/internal/app"
	"scoretrack/internal/blob"
	"scoretrack/internal/config"
	"scoretrack/internal/export"
	"scoretrack/internal/ingest"
	"scoretrack/internal/observability"
	"scoretrack/internal/persistence"
	"scoretrack/internal/synth"
	"scoretrack/pkg/tableapi"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scoretrack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", "", "dotenv file to load before reading SCORETRACK_* variables")
	fs.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "usage: scoretrack [-env file] <run|patient|synth> [flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	var err error
	switch cmd {
	case "synth":
		err = synthCommand(rest, stdout, stderr)
	case "run", "patient":
		cfg, cfgErr := config.Load(*envFile)
		if cfgErr != nil {
			_, _ = fmt.Fprintf(stderr, "config: %v\n", cfgErr)
			return 1
		}
		if cmd == "run" {
			err = runCommand(cfg, rest, stdout, stderr)
		} else {
			err = patientCommand(cfg, rest, stdout, stderr)
		}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp), errors.Is(err, errUsage):
		return 2
	default:
		_, _ = fmt.Fprintf(stderr, "%s failed: %v\n", cmd, err)
		return 1
	}
}

var errUsage = errors.New("usage")

// env bundles the resources shared by run and patient.
type env struct {
	logger    *zap.Logger
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	blobs     blob.Store
	snapshots persistence.TableStore
}

func openEnv(ctx context.Context, cfg config.Config) (*env, error) {
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, "scoretrack")
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	snapshots, err := persistence.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	reg := prometheus.NewRegistry()
	return &env{
		logger:    logger,
		registry:  reg,
		metrics:   observability.NewMetrics(reg),
		blobs:     blobs,
		snapshots: snapshots,
	}, nil
}

func (e *env) close(cfg config.Config) error {
	var errs []error
	if e.snapshots != nil {
		errs = append(errs, e.snapshots.Close())
	}
	if cfg.MetricsFile != "" {
		errs = append(errs, observability.WriteTextfile(cfg.MetricsFile, e.registry))
	}
	_ = e.logger.Sync()
	return errors.Join(errs...)
}

func (e *env) service(cfg config.Config, extra ...app.Option) *app.Service {
	opts := []app.Option{
		app.WithSnapshots(e.snapshots),
		app.WithMetrics(e.metrics),
		app.WithLogger(e.logger),
		app.WithCleanOptions(cfg.PipelineOptions()),
		app.WithDropNull(cfg.DropNull),
		app.WithCutoff(cfg.Cutoff),
	}
	return app.NewService(e.blobs, append(opts, extra...)...)
}

func runCommand(cfg config.Config, args []string, stdout, stderr io.Writer) (err error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	input := fs.String("input", "", "local assessments file")
	inputKey := fs.String("input-key", "", "assessments object key in the configured blob store")
	formats := fs.String("formats", "csv,json", "comma separated export formats (csv, json, html, xlsx)")
	noCharts := fs.Bool("no-charts", false, "skip per-patient progress charts")
	if err := fs.Parse(args); err != nil {
		return errors.Join(errUsage, err)
	}
	if (*input == "") == (*inputKey == "") {
		_, _ = fmt.Fprintln(stderr, "exactly one of -input or -input-key is required")
		return errUsage
	}
	selected, err := parseFormats(*formats)
	if err != nil {
		return err
	}

	ctx := context.Background()
	e, err := openEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(cfg); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var raw tableapi.Table
	if *input != "" {
		raw, err = ingest.ReadFile(filepath.Clean(*input), cfg.IngestOptions())
	} else {
		raw, err = ingest.ReadBlob(ctx, e.blobs, *inputKey, cfg.IngestOptions())
	}
	if err != nil {
		return err
	}
	svc := e.service(cfg, app.WithFormats(selected...), app.WithCharts(!*noCharts))
	report, err := svc.Run(ctx, raw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "run %s: %d patients, %d cleaned rows, %d artifacts, %d charts\n",
		report.RunID, len(report.Summaries), report.Cleaned.Len(), len(report.Artifacts), len(report.Charts))
	return err
}

func patientCommand(cfg config.Config, args []string, stdout, stderr io.Writer) (err error) {
	fs := flag.NewFlagSet("patient", flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.String("id", "", "patient id")
	cleanedPath := fs.String("cleaned", "", "cleaned table file; defaults to the latest snapshot")
	plot := fs.Bool("chart", false, "store the patient's progress chart")
	if err := fs.Parse(args); err != nil {
		return errors.Join(errUsage, err)
	}
	if strings.TrimSpace(*id) == "" {
		_, _ = fmt.Fprintln(stderr, "-id is required")
		return errUsage
	}

	ctx := context.Background()
	e, err := openEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(cfg); cerr != nil && err == nil {
			err = cerr
		}
	}()
	svc := e.service(cfg)

	var cleaned tableapi.Table
	if *cleanedPath != "" {
		opts := cfg.IngestOptions()
		opts.Required = nil
		cleaned, err = ingest.ReadFile(filepath.Clean(*cleanedPath), opts)
	} else {
		cleaned, err = svc.LoadCleaned(ctx)
	}
	if err != nil {
		return fmt.Errorf("load cleaned table: %w", err)
	}

	p, err := svc.Patient(cleaned, *id)
	if err != nil {
		return err
	}
	if !p.Valid() {
		return fmt.Errorf("patient %s not found", *id)
	}
	if err := p.PrintStats(stdout); err != nil {
		return err
	}
	if *plot {
		if err := p.PlotProgress(ctx, svc.Plotter()); err != nil {
			return err
		}
	}
	return nil
}

func synthCommand(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	fs.SetOutput(stderr)
	def := synth.DefaultConfig()
	out := fs.String("out", "-", "output file, - for stdout")
	format := fs.String("format", "csv", "output format (csv, json, html, xlsx)")
	patients := fs.Int("patients", def.Patients, "number of patients")
	seed := fs.Uint64("seed", def.Seed, "generator seed")
	repeat := fs.Float64("repeat-rate", def.RepeatRate, "probability of a same-day repeat reading")
	if err := fs.Parse(args); err != nil {
		return errors.Join(errUsage, err)
	}
	f, err := tableapi.ParseFormat(*format)
	if err != nil {
		return err
	}
	cfg := def
	cfg.Patients = *patients
	cfg.Seed = *seed
	cfg.RepeatRate = *repeat
	raw, err := synth.Generate(cfg)
	if err != nil {
		return err
	}
	payload, err := export.Materialize(f, "assessments", raw)
	if err != nil {
		return err
	}
	if *out == "-" {
		_, err = stdout.Write(payload)
		return err
	}
	return os.WriteFile(filepath.Clean(*out), payload, 0o600)
}

func parseFormats(s string) ([]tableapi.Format, error) {
	var out []tableapi.Format
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := tableapi.ParseFormat(part)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
