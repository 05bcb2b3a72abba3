package chart

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"scoretrack/internal/blob"
	"scoretrack/internal/patient"
)

// ImagePrefix is the key prefix for per-patient charts.
const ImagePrefix = "images"

// Key returns the artifact key for a patient's chart.
func Key(patientID string) string {
	return path.Join(ImagePrefix, patientID+".png")
}

// Plotter renders charts and stores them as images/<patient_id>.png,
// replacing any chart from an earlier run.
type Plotter struct {
	store    blob.Store
	renderer Renderer
	logger   *zap.Logger
	onStored func(blob.Info)
}

// PlotterOption customises a Plotter.
type PlotterOption func(*Plotter)

// WithRenderer overrides the default canvas and thresholds.
func WithRenderer(r Renderer) PlotterOption { return func(p *Plotter) { p.renderer = r } }

// WithLogger sets the logger used for stored-chart messages.
func WithLogger(l *zap.Logger) PlotterOption { return func(p *Plotter) { p.logger = l } }

// WithStoredHook is invoked after each chart is written.
func WithStoredHook(fn func(blob.Info)) PlotterOption { return func(p *Plotter) { p.onStored = fn } }

// NewPlotter returns a Plotter writing into store.
func NewPlotter(store blob.Store, opts ...PlotterOption) *Plotter {
	p := &Plotter{store: store, renderer: DefaultRenderer(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ patient.Plotter = (*Plotter)(nil)

// Plot implements patient.Plotter.
func (p *Plotter) Plot(ctx context.Context, h patient.History, s patient.Summary) error {
	payload, err := p.renderer.Render(h, s)
	if err != nil {
		return fmt.Errorf("render chart for %s: %w", h.PatientID, err)
	}
	info, err := blob.PutBytes(ctx, p.store, Key(h.PatientID), payload, blob.PutOptions{
		ContentType: "image/png",
		Metadata:    map[string]string{"patient_id": h.PatientID, "visits": fmt.Sprintf("%d", h.Len())},
		Overwrite:   true,
	})
	if err != nil {
		return fmt.Errorf("store chart for %s: %w", h.PatientID, err)
	}
	p.logger.Debug("chart stored", zap.String("key", info.Key), zap.Int64("size_bytes", info.Size))
	if p.onStored != nil {
		p.onStored(info)
	}
	return nil
}
