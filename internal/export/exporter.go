// Package export renders tables into artifact formats and publishes them to a
// blob store under <run>/<table>.<ext>.
package export

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scoretrack/internal/blob"
	"scoretrack/pkg/tableapi"
)

// Artifact describes one stored rendering of a table.
type Artifact struct {
	ID          string          `json:"id"`
	RunID       string          `json:"run_id"`
	Table       string          `json:"table"`
	Format      tableapi.Format `json:"format"`
	Key         string          `json:"key"`
	ContentType string          `json:"content_type"`
	SizeBytes   int64           `json:"size_bytes"`
	ETag        string          `json:"etag,omitempty"`
	Rows        int             `json:"rows"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DefaultFormats are used when Export is called without formats.
var DefaultFormats = []tableapi.Format{tableapi.FormatCSV, tableapi.FormatJSON}

// Exporter writes table artifacts into a blob store.
type Exporter struct {
	store    blob.Store
	logger   *zap.Logger
	onStored func(Artifact)
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithLogger sets the exporter logger.
func WithLogger(l *zap.Logger) Option { return func(e *Exporter) { e.logger = l } }

// WithStoredHook is invoked after each artifact is written.
func WithStoredHook(fn func(Artifact)) Option { return func(e *Exporter) { e.onStored = fn } }

// New returns an Exporter over store.
func New(store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewRunID returns a fresh identifier for an export run.
func NewRunID() string { return uuid.NewString() }

// Key returns the artifact key for a table rendering.
func Key(runID, table string, format tableapi.Format) string {
	return path.Join(runID, table+format.Extension())
}

// Export renders t once per distinct format and stores each rendering.
// Artifacts of a run are create-only; exporting the same table twice under
// one run id fails with blob.ErrExists.
func (e *Exporter) Export(ctx context.Context, runID, name string, t tableapi.Table, formats ...tableapi.Format) ([]Artifact, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id required")
	}
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	seen := make(map[tableapi.Format]struct{}, len(formats))
	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		seen[format] = struct{}{}

		payload, err := Materialize(format, name, t)
		if err != nil {
			return artifacts, fmt.Errorf("render %s as %s: %w", name, format, err)
		}
		key := Key(runID, name, format)
		info, err := blob.PutBytes(ctx, e.store, key, payload, blob.PutOptions{
			ContentType: format.ContentType(),
			Metadata:    map[string]string{"run_id": runID, "table": name, "rows": fmt.Sprintf("%d", t.Len())},
		})
		if err != nil {
			return artifacts, fmt.Errorf("store %s: %w", key, err)
		}
		artifact := Artifact{
			ID:          uuid.NewString(),
			RunID:       runID,
			Table:       name,
			Format:      format,
			Key:         info.Key,
			ContentType: format.ContentType(),
			SizeBytes:   info.Size,
			ETag:        info.ETag,
			Rows:        t.Len(),
			CreatedAt:   time.Now().UTC(),
		}
		e.logger.Info("artifact stored",
			zap.String("run_id", runID),
			zap.String("table", name),
			zap.String("format", string(format)),
			zap.String("key", key),
			zap.Int64("size_bytes", info.Size))
		if e.onStored != nil {
			e.onStored(artifact)
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}
