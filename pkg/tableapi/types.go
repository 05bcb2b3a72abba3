// Package tableapi defines the tabular carrier shared by the cleaning pipeline,
// the exporters and the snapshot stores.
package tableapi

import (
	"fmt"
	"strings"
	"time"
)

// Format names an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatXLSX Format = "xlsx"
	FormatPNG  Format = "png"
)

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatJSON, FormatCSV, FormatHTML, FormatXLSX, FormatPNG:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Extension returns the file extension used when an artifact of this format is stored.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatHTML:
		return "text/html"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// Column types understood by Restore and the exporters.
const (
	TypeString = "string"
	TypeFloat  = "float"
	TypeInt    = "int"
	TypeDate   = "date"
)

type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
	Format      string `json:"format,omitempty"`
}

// Row maps column names to cell values. A nil value is a missing cell.
type Row map[string]any

// Table is an ordered schema plus rows. Transforms return new tables and never
// mutate their input.
type Table struct {
	Schema      []Column       `json:"schema"`
	Rows        []Row          `json:"rows"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}
