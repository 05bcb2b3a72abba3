// Package app wires ingestion, cleaning, aggregation, export, charting and
// snapshot persistence into the scoretrack batch job.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scoretrack/internal/blob"
	"scoretrack/internal/chart"
	"scoretrack/internal/export"
	"scoretrack/internal/observability"
	"scoretrack/internal/patient"
	"scoretrack/internal/persistence"
	"scoretrack/internal/pipeline"
	"scoretrack/pkg/tableapi"
)

// Names under which run tables are exported and snapshotted.
const (
	TableCleaned   = "cleaned"
	TableDiffs     = "diffs"
	TableMerged    = "merged"
	TableSummaries = "summaries"
)

// ErrNoSnapshots is returned by lookups when no snapshot store is configured.
var ErrNoSnapshots = errors.New("no snapshot store configured")

// Service runs the batch pipeline against a blob store and an optional
// snapshot store.
type Service struct {
	blobs     blob.Store
	snapshots persistence.TableStore
	metrics   *observability.Metrics
	logger    *zap.Logger
	roles     pipeline.Roles
	clean     pipeline.Options
	diffs     pipeline.DiffOptions
	cutoff    float64
	formats   []tableapi.Format
	charts    bool
}

// Option configures a Service.
type Option func(*Service)

// WithSnapshots persists run tables into store. A nil store disables snapshots.
func WithSnapshots(store persistence.TableStore) Option {
	return func(s *Service) { s.snapshots = store }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *observability.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithRoles overrides the column roles.
func WithRoles(r pipeline.Roles) Option { return func(s *Service) { s.roles = r } }

// WithCleanOptions overrides the cleaner options.
func WithCleanOptions(o pipeline.Options) Option { return func(s *Service) { s.clean = o } }

// WithDropNull controls whether undefined deltas are kept in the diffs table.
func WithDropNull(drop bool) Option { return func(s *Service) { s.diffs.DropNull = drop } }

// WithCutoff overrides the clinical cutoff.
func WithCutoff(cutoff float64) Option { return func(s *Service) { s.cutoff = cutoff } }

// WithFormats selects export formats; none disables table export.
func WithFormats(formats ...tableapi.Format) Option {
	return func(s *Service) { s.formats = formats }
}

// WithCharts toggles per-patient progress charts.
func WithCharts(enabled bool) Option { return func(s *Service) { s.charts = enabled } }

// NewService constructs a service writing artifacts into blobs.
func NewService(blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		blobs:   blobs,
		logger:  zap.NewNop(),
		roles:   pipeline.DefaultRoles(),
		clean:   pipeline.DefaultOptions(),
		diffs:   pipeline.DefaultDiffOptions(),
		cutoff:  patient.ClinicalCutoff,
		formats: export.DefaultFormats,
		charts:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report describes the outcome of one run.
type Report struct {
	RunID     string
	Cleaned   tableapi.Table
	Diffs     tableapi.Table
	Merged    tableapi.Table
	Summaries []patient.Summary
	Artifacts []export.Artifact
	Charts    []blob.Info
}

// Run cleans raw, derives diffs, merged visits and per-patient summaries,
// then exports, snapshots and charts the results.
func (s *Service) Run(ctx context.Context, raw tableapi.Table) (Report, error) {
	report := Report{RunID: export.NewRunID()}
	log := s.logger.With(zap.String("run_id", report.RunID))
	s.metrics.ObserveIngested(raw.Len())

	if err := s.stage("clean", func() (err error) {
		report.Cleaned, err = pipeline.Clean(raw, s.roles, s.clean)
		return err
	}); err != nil {
		return report, fmt.Errorf("clean: %w", err)
	}
	s.metrics.ObserveCollapsed(raw.Len() - report.Cleaned.Len())
	log.Info("cleaned assessments", zap.Int("raw_rows", raw.Len()), zap.Int("rows", report.Cleaned.Len()))

	if err := s.stage("diffs", func() (err error) {
		report.Diffs, err = pipeline.Diffs(report.Cleaned, s.diffs)
		if err != nil {
			return err
		}
		report.Merged, err = pipeline.MergeDiffs(report.Cleaned, report.Diffs, []string{s.diffs.Columns, s.diffs.Index})
		return err
	}); err != nil {
		return report, fmt.Errorf("diffs: %w", err)
	}

	if err := s.stage("summarize", func() (err error) {
		report.Summaries, err = patient.SummarizeAll(report.Cleaned, s.roles, s.cutoff)
		return err
	}); err != nil {
		return report, fmt.Errorf("summarize: %w", err)
	}
	s.metrics.ObserveSummarized(len(report.Summaries))

	now := time.Now()
	tables := map[string]tableapi.Table{
		TableCleaned:   report.Cleaned.Stamp(now),
		TableDiffs:     report.Diffs.Stamp(now),
		TableMerged:    report.Merged.Stamp(now),
		TableSummaries: patient.SummaryTable(report.Summaries).Stamp(now),
	}
	for _, name := range []string{TableCleaned, TableDiffs, TableMerged, TableSummaries} {
		s.metrics.ObserveEmitted(name, tables[name].Len())
	}

	if len(s.formats) > 0 {
		if err := s.stage("export", func() error {
			exporter := export.New(s.blobs, export.WithLogger(log), export.WithStoredHook(func(a export.Artifact) {
				s.metrics.ObserveArtifact(string(a.Format), a.SizeBytes)
			}))
			for _, name := range []string{TableCleaned, TableDiffs, TableMerged, TableSummaries} {
				artifacts, err := exporter.Export(ctx, report.RunID, name, tables[name], s.formats...)
				report.Artifacts = append(report.Artifacts, artifacts...)
				if err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return report, fmt.Errorf("export: %w", err)
		}
	}

	if s.snapshots != nil {
		if err := s.stage("persist", func() error {
			return s.snapshots.SaveTables(ctx, tables)
		}); err != nil {
			return report, fmt.Errorf("persist snapshots: %w", err)
		}
		log.Info("snapshots saved", zap.String("driver", string(s.snapshots.Driver())), zap.Int("tables", len(tables)))
	}

	if s.charts {
		if err := s.stage("chart", func() (err error) {
			report.Charts, err = s.plotAll(ctx, report.Cleaned, report.Summaries, log)
			return err
		}); err != nil {
			return report, fmt.Errorf("charts: %w", err)
		}
	}

	log.Info("run complete",
		zap.Int("patients", len(report.Summaries)),
		zap.Int("artifacts", len(report.Artifacts)),
		zap.Int("charts", len(report.Charts)))
	return report, nil
}

func (s *Service) plotAll(ctx context.Context, cleaned tableapi.Table, summaries []patient.Summary, log *zap.Logger) ([]blob.Info, error) {
	histories, err := patient.Histories(cleaned, s.roles)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]patient.History, len(histories))
	for _, h := range histories {
		byID[h.PatientID] = h
	}
	var stored []blob.Info
	plotter := chart.NewPlotter(s.blobs, chart.WithLogger(log), chart.WithStoredHook(func(info blob.Info) {
		stored = append(stored, info)
		s.metrics.ObserveArtifact("png", info.Size)
	}))
	for _, summary := range summaries {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		if err := plotter.Plot(ctx, byID[summary.PatientID], summary); err != nil {
			return stored, err
		}
	}
	return stored, nil
}

func (s *Service) stage(name string, fn func() error) (err error) {
	defer s.metrics.StartStage(name, &err)()
	return fn()
}

// LoadCleaned returns the cleaned table of the most recent run.
func (s *Service) LoadCleaned(ctx context.Context) (tableapi.Table, error) {
	if s.snapshots == nil {
		return tableapi.Table{}, ErrNoSnapshots
	}
	return s.snapshots.LoadTable(ctx, TableCleaned)
}

// Patient looks patientID up in cleaned. Invalid ids are counted and returned
// as an invalid Patient.
func (s *Service) Patient(cleaned tableapi.Table, patientID string, opts ...patient.Option) (*patient.Patient, error) {
	base := []patient.Option{
		patient.WithRoles(s.roles),
		patient.WithCutoff(s.cutoff),
		patient.WithLogger(s.logger),
	}
	p, err := patient.New(cleaned, patientID, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if !p.Valid() {
		s.metrics.ObserveInvalidPatient()
	}
	return p, nil
}

// Plotter returns a chart plotter writing into the service's blob store.
func (s *Service) Plotter() *chart.Plotter {
	return chart.NewPlotter(s.blobs, chart.WithLogger(s.logger), chart.WithStoredHook(func(info blob.Info) {
		s.metrics.ObserveArtifact("png", info.Size)
	}))
}
