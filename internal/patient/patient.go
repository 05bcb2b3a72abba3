package patient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"scoretrack/internal/pipeline"
	"scoretrack/pkg/tableapi"
)

// ErrInvalidPatient is returned by every operation of a Patient whose id is not
// present in the dataset.
var ErrInvalidPatient = errors.New("invalid patient id")

// Plotter renders and stores a progress chart for one patient.
type Plotter interface {
	Plot(ctx context.Context, h History, s Summary) error
}

// Patient is a read-only view of one patient's cleaned visits and statistics.
// Validity is decided at construction; an invalid Patient performs no further
// computation and every operation reports ErrInvalidPatient.
type Patient struct {
	id        string
	valid     bool
	history   History
	summary   Summary
	cutoff    float64
	roles     pipeline.Roles
	risk      RiskClassifier
	stability StabilityClassifier
	logger    *zap.Logger
}

// Option configures a Patient.
type Option func(*Patient)

// WithCutoff overrides the clinical cutoff.
func WithCutoff(cutoff float64) Option { return func(p *Patient) { p.cutoff = cutoff } }

// WithRoles overrides the column roles used to read the dataset.
func WithRoles(roles pipeline.Roles) Option { return func(p *Patient) { p.roles = roles } }

// WithRiskClassifier installs a risk classifier.
func WithRiskClassifier(c RiskClassifier) Option { return func(p *Patient) { p.risk = c } }

// WithStabilityClassifier installs a stability classifier.
func WithStabilityClassifier(c StabilityClassifier) Option {
	return func(p *Patient) { p.stability = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Patient) { p.logger = l } }

// New looks patientID up in a cleaned dataset. An unknown id yields an invalid
// Patient and a nil error; errors are reserved for malformed data.
func New(data tableapi.Table, patientID string, opts ...Option) (*Patient, error) {
	p := &Patient{
		id:     patientID,
		cutoff: ClinicalCutoff,
		roles:  pipeline.DefaultRoles(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	history, ok, err := HistoryFor(data, p.roles, patientID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !ok {
		p.logger.Warn("invalid patient id", zap.String("patient_id", patientID))
		return p, nil
	}
	summary, err := SummarizeAt(history, p.cutoff)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	p.valid = true
	p.history = history
	p.summary = summary
	return p, nil
}

// ID returns the requested patient id.
func (p *Patient) ID() string { return p.id }

// Valid reports whether the patient exists in the dataset.
func (p *Patient) Valid() bool { return p.valid }

// History returns the date-sorted visits.
func (p *Patient) History() (History, error) {
	if !p.valid {
		return History{}, ErrInvalidPatient
	}
	return p.history, nil
}

// Stats returns the summary statistics.
func (p *Patient) Stats() (Summary, error) {
	if !p.valid {
		return Summary{}, ErrInvalidPatient
	}
	return p.summary, nil
}

// PrintStats writes each headline statistic rounded to one decimal.
func (p *Patient) PrintStats(w io.Writer) error {
	if !p.valid {
		return ErrInvalidPatient
	}
	for _, f := range p.summary.Fields() {
		if _, err := fmt.Fprintf(w, "%s: %s\n", f.Name, FormatStat(f.Value)); err != nil {
			return err
		}
	}
	return nil
}

// PlotProgress hands the history and summary to plotter.
func (p *Patient) PlotProgress(ctx context.Context, plotter Plotter) error {
	if !p.valid {
		p.logger.Info("skipping chart for invalid patient", zap.String("patient_id", p.id))
		return ErrInvalidPatient
	}
	return plotter.Plot(ctx, p.history, p.summary)
}

// DetermineRisk runs the configured risk classifier.
func (p *Patient) DetermineRisk(ctx context.Context) (RiskAssessment, error) {
	if !p.valid {
		return RiskAssessment{}, ErrInvalidPatient
	}
	if p.risk == nil {
		return RiskAssessment{}, ErrNoClassifier
	}
	return p.risk.ClassifyRisk(ctx, p.summary)
}

// DetermineStability runs the configured stability classifier.
func (p *Patient) DetermineStability(ctx context.Context) (StabilityAssessment, error) {
	if !p.valid {
		return StabilityAssessment{}, ErrInvalidPatient
	}
	if p.stability == nil {
		return StabilityAssessment{}, ErrNoClassifier
	}
	return p.stability.ClassifyStability(ctx, p.history, p.summary)
}

// FormatStat renders a statistic rounded to one decimal; undefined values render as NaN.
func FormatStat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	r := math.Round(v*10) / 10
	if r == 0 {
		r = 0 // drop negative zero
	}
	return fmt.Sprintf("%.1f", r)
}
