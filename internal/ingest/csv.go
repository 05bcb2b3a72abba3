// Package ingest loads raw assessment records from delimited files into a
// table of string cells. Typing is left to the cleaning pipeline.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"scoretrack/internal/blob"
	"scoretrack/internal/pipeline"
	"scoretrack/pkg/tableapi"
)

// RequiredColumns are validated before any row is read.
var RequiredColumns = []string{
	pipeline.ColPatientID,
	pipeline.ColDate,
	pipeline.ColScore,
	pipeline.ColPatientCreated,
}

// Options controls parsing.
type Options struct {
	Delimiter rune
	// Required lists columns that must appear in the header.
	Required []string
}

// DefaultOptions reads comma separated files with the standard columns.
func DefaultOptions() Options {
	return Options{Delimiter: ',', Required: RequiredColumns}
}

// ParseDelimiter accepts a single character or the names "tab", "comma",
// "semicolon" and "pipe".
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "comma":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

// Read parses a header row plus records from r. Cells are trimmed; blank
// cells become nil. A leading unnamed column (a row index written by another
// tool) is dropped.
func Read(r io.Reader, opts Options) (tableapi.Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return tableapi.Table{}, &pipeline.SchemaError{Column: strings.Join(opts.Required, ","), Row: -1, Err: errors.New("empty input")}
	}
	if err != nil {
		return tableapi.Table{}, fmt.Errorf("read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	schema := make([]tableapi.Column, 0, len(header))
	index := make([]int, 0, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" && i == 0 {
			continue
		}
		if name == "" {
			return tableapi.Table{}, &pipeline.SchemaError{Column: fmt.Sprintf("#%d", i+1), Row: -1, Err: errors.New("blank column name")}
		}
		if _, dup := seen[name]; dup {
			return tableapi.Table{}, &pipeline.SchemaError{Column: name, Row: -1, Err: errors.New("duplicate column")}
		}
		seen[name] = struct{}{}
		schema = append(schema, tableapi.Column{Name: name, Type: tableapi.TypeString})
		index = append(index, i)
	}
	t := tableapi.Empty(schema)
	if err := t.Require(opts.Required...); err != nil {
		return tableapi.Table{}, &pipeline.SchemaError{Column: strings.Join(opts.Required, ","), Row: -1, Err: err}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return tableapi.Table{}, fmt.Errorf("read records: %w", err)
		}
		row := make(tableapi.Row, len(schema))
		for j, col := range schema {
			cell := strings.TrimSpace(record[index[j]])
			if cell == "" {
				row[col.Name] = nil
				continue
			}
			row[col.Name] = cell
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadFile opens path and calls Read.
func ReadFile(path string, opts Options) (tableapi.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return tableapi.Table{}, err
	}
	defer func() { _ = f.Close() }()
	t, err := Read(f, opts)
	if err != nil {
		return tableapi.Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadBlob reads the delimited file stored at key.
func ReadBlob(ctx context.Context, store blob.Store, key string, opts Options) (tableapi.Table, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return tableapi.Table{}, err
	}
	defer func() { _ = rc.Close() }()
	t, err := Read(rc, opts)
	if err != nil {
		return tableapi.Table{}, fmt.Errorf("%s: %w", key, err)
	}
	return t, nil
}
