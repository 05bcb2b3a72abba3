package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what a batch run ingests, collapses and emits.
// All methods are safe on a nil receiver.
type Metrics struct {
	rowsIngested       prometheus.Counter
	rowsCollapsed      prometheus.Counter
	rowsEmitted        *prometheus.CounterVec
	patientsSummarized prometheus.Counter
	invalidPatients    prometheus.Counter
	artifactsWritten   *prometheus.CounterVec
	artifactBytes      *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
}

// NewMetrics registers the batch metrics with reg (the default registerer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rowsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scoretrack",
			Subsystem: "pipeline",
			Name:      "rows_ingested_total",
			Help:      "Raw assessment rows read",
		}),
		rowsCollapsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scoretrack",
			Subsystem: "pipeline",
			Name:      "rows_collapsed_total",
			Help:      "Same-day readings merged into their daily mean",
		}),
		rowsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoretrack",
			Subsystem: "pipeline",
			Name:      "rows_emitted_total",
			Help:      "Rows written per output table",
		}, []string{"table"}),
		patientsSummarized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scoretrack",
			Subsystem: "patient",
			Name:      "summarized_total",
			Help:      "Patients with computed summary statistics",
		}),
		invalidPatients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scoretrack",
			Subsystem: "patient",
			Name:      "invalid_total",
			Help:      "Lookups of patient ids absent from the cleaned table",
		}),
		artifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoretrack",
			Subsystem: "export",
			Name:      "artifacts_total",
			Help:      "Artifacts stored by format",
		}, []string{"format"}),
		artifactBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoretrack",
			Subsystem: "export",
			Name:      "artifact_bytes_total",
			Help:      "Bytes stored by format",
		}, []string{"format"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scoretrack",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of batch stages",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.rowsIngested, m.rowsCollapsed, m.rowsEmitted, m.patientsSummarized,
		m.invalidPatients, m.artifactsWritten, m.artifactBytes, m.stageDuration)
	return m
}

func (m *Metrics) ObserveIngested(rows int) {
	if m == nil {
		return
	}
	m.rowsIngested.Add(float64(rows))
}

func (m *Metrics) ObserveCollapsed(rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.rowsCollapsed.Add(float64(rows))
}

func (m *Metrics) ObserveEmitted(table string, rows int) {
	if m == nil {
		return
	}
	m.rowsEmitted.WithLabelValues(table).Add(float64(rows))
}

func (m *Metrics) ObserveSummarized(patients int) {
	if m == nil {
		return
	}
	m.patientsSummarized.Add(float64(patients))
}

func (m *Metrics) ObserveInvalidPatient() {
	if m == nil {
		return
	}
	m.invalidPatients.Inc()
}

func (m *Metrics) ObserveArtifact(format string, size int64) {
	if m == nil {
		return
	}
	m.artifactsWritten.WithLabelValues(format).Inc()
	m.artifactBytes.WithLabelValues(format).Add(float64(size))
}

// StartStage returns a func that records the stage duration with the outcome
// of *errp when called, typically via defer.
func (m *Metrics) StartStage(stage string, errp *error) func() {
	start := time.Now()
	return func() {
		if m == nil {
			return
		}
		status := "ok"
		if errp != nil && *errp != nil {
			status = "error"
		}
		m.stageDuration.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
	}
}

// WriteTextfile dumps gatherer in the text exposition format for node
// exporter style collection.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
