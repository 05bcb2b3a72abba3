package tableapi

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingColumn is returned when a required column is not part of a table schema.
var ErrMissingColumn = errors.New("tableapi: missing column")

// New builds a table from a schema and rows, cloning both.
func New(schema []Column, rows []Row) Table {
	return Table{Schema: cloneSchema(schema), Rows: cloneRows(rows)}
}

// Empty returns a table with the schema and no rows.
func Empty(schema []Column) Table {
	return Table{Schema: cloneSchema(schema), Rows: []Row{}}
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Clone returns a deep copy of the schema, rows and metadata. Cell values are copied by value.
func (t Table) Clone() Table {
	out := Table{
		Schema:      cloneSchema(t.Schema),
		Rows:        cloneRows(t.Rows),
		GeneratedAt: t.GeneratedAt,
	}
	if len(t.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Column looks up a schema column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Schema {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether name is part of the schema.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Names returns the schema column names in order.
func (t Table) Names() []string {
	names := make([]string, len(t.Schema))
	for i, c := range t.Schema {
		names[i] = c.Name
	}
	return names
}

// Require fails with ErrMissingColumn naming every absent column.
func (t Table) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// WithColumn returns a copy of the table with col appended to the schema (or
// replaced in place when it already exists) and each row's cell set by fn.
func (t Table) WithColumn(col Column, fn func(Row) (any, error)) (Table, error) {
	out := t.Clone()
	replaced := false
	for i, c := range out.Schema {
		if c.Name == col.Name {
			out.Schema[i] = col
			replaced = true
			break
		}
	}
	if !replaced {
		out.Schema = append(out.Schema, col)
	}
	for i, row := range out.Rows {
		v, err := fn(row)
		if err != nil {
			return Table{}, fmt.Errorf("row %d: %w", i, err)
		}
		row[col.Name] = v
	}
	return out, nil
}

// Filter returns the rows for which keep reports true.
func (t Table) Filter(keep func(Row) bool) Table {
	out := Table{Schema: cloneSchema(t.Schema), Rows: make([]Row, 0, len(t.Rows))}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row.Clone())
		}
	}
	return out
}

// Stamp returns a copy carrying the generation time.
func (t Table) Stamp(now time.Time) Table {
	out := t.Clone()
	out.GeneratedAt = now.UTC()
	return out
}

// Clone copies the row map.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func cloneSchema(schema []Column) []Column {
	if schema == nil {
		return nil
	}
	out := make([]Column, len(schema))
	copy(out, schema)
	return out
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out
}
