package pipeline

import (
	"fmt"
	"slices"

	"scoretrack/pkg/tableapi"
)

// Pivot is a visits-by-patients matrix of scores. Index and Columns hold the
// distinct key values in natural order; cells may be absent.
type Pivot struct {
	IndexName  string
	ColumnName string
	Index      []any
	Columns    []any
	cells      map[string]map[string]float64
}

// NewPivot reshapes a long table into a matrix. A repeated (index, column) pair
// is an error since the cell would be ambiguous.
func NewPivot(t tableapi.Table, index, columns, values string) (Pivot, error) {
	if err := requireColumns(t, index, columns, values); err != nil {
		return Pivot{}, err
	}
	p := Pivot{IndexName: index, ColumnName: columns, cells: make(map[string]map[string]float64)}
	seenIndex := make(map[string]bool)
	seenColumn := make(map[string]bool)
	for i, row := range t.Rows {
		v, err := tableapi.AsFloat(row[values])
		if err != nil {
			return Pivot{}, schemaErr(values, i, err)
		}
		ik, ck := tableapi.Key(row[index]), tableapi.Key(row[columns])
		if !seenIndex[ik] {
			seenIndex[ik] = true
			p.Index = append(p.Index, row[index])
		}
		if !seenColumn[ck] {
			seenColumn[ck] = true
			p.Columns = append(p.Columns, row[columns])
			p.cells[ck] = make(map[string]float64)
		}
		if _, dup := p.cells[ck][ik]; dup {
			return Pivot{}, fmt.Errorf("pivot: duplicate entry for %s=%v %s=%v", index, row[index], columns, row[columns])
		}
		p.cells[ck][ik] = v
	}
	slices.SortStableFunc(p.Index, tableapi.Compare)
	slices.SortStableFunc(p.Columns, tableapi.Compare)
	return p, nil
}

// Value returns the cell at (index, column).
func (p Pivot) Value(index, column any) (float64, bool) {
	col, ok := p.cells[tableapi.Key(column)]
	if !ok {
		return 0, false
	}
	v, ok := col[tableapi.Key(index)]
	return v, ok
}

// Diff returns the first difference down each column. The first index row and
// any row whose predecessor is absent have no value.
func (p Pivot) Diff() Pivot {
	out := Pivot{
		IndexName:  p.IndexName,
		ColumnName: p.ColumnName,
		Index:      slices.Clone(p.Index),
		Columns:    slices.Clone(p.Columns),
		cells:      make(map[string]map[string]float64, len(p.cells)),
	}
	for _, column := range p.Columns {
		ck := tableapi.Key(column)
		diffs := make(map[string]float64)
		for i := 1; i < len(p.Index); i++ {
			cur, okCur := p.Value(p.Index[i], column)
			prev, okPrev := p.Value(p.Index[i-1], column)
			if okCur && okPrev {
				diffs[tableapi.Key(p.Index[i])] = cur - prev
			}
		}
		out.cells[ck] = diffs
	}
	return out
}

// Unpivot returns the matrix in long form ordered by column, then index. Absent
// cells become nil unless dropMissing is set.
func (p Pivot) Unpivot(indexCol, columnCol tableapi.Column, valueCol tableapi.Column, dropMissing bool) tableapi.Table {
	out := tableapi.Empty([]tableapi.Column{indexCol, columnCol, valueCol})
	for _, column := range p.Columns {
		for _, index := range p.Index {
			v, ok := p.Value(index, column)
			if !ok && dropMissing {
				continue
			}
			row := tableapi.Row{indexCol.Name: index, columnCol.Name: column, valueCol.Name: nil}
			if ok {
				row[valueCol.Name] = v
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// DiffOptions names the pivot axes used by Diffs.
type DiffOptions struct {
	Index   string
	Columns string
	Values  string
	// DropNull removes rows without a defined delta, i.e. each patient's first visit
	// and the visits past a patient's last one.
	DropNull bool
}

// DefaultDiffOptions pivots scores by visit number and patient and drops undefined deltas.
func DefaultDiffOptions() DiffOptions {
	return DiffOptions{Index: ColNumVisit, Columns: ColPatientID, Values: ColScore, DropNull: true}
}

// Diffs computes per-patient visit-to-visit score deltas as a long table of
// (index, patient, delta_score).
func Diffs(t tableapi.Table, opts DiffOptions) (tableapi.Table, error) {
	p, err := NewPivot(t, opts.Index, opts.Columns, opts.Values)
	if err != nil {
		return tableapi.Table{}, err
	}
	indexCol, _ := t.Column(opts.Index)
	columnCol, _ := t.Column(opts.Columns)
	return p.Diff().Unpivot(indexCol, columnCol, deltaScoreColumn, opts.DropNull), nil
}

// MergeDiffs left-joins right onto left using the key columns. Left rows without a
// match keep nil in every right-only column. Right columns that collide with a
// left column are suffixed with _y.
func MergeDiffs(left, right tableapi.Table, on []string) (tableapi.Table, error) {
	if err := requireColumns(left, on...); err != nil {
		return tableapi.Table{}, err
	}
	if err := requireColumns(right, on...); err != nil {
		return tableapi.Table{}, err
	}
	type renamed struct{ from, to string }
	var extra []renamed
	schema := slices.Clone(left.Schema)
	for _, col := range right.Schema {
		if contains(on, col.Name) {
			continue
		}
		name := col.Name
		if left.HasColumn(name) {
			name += "_y"
		}
		extra = append(extra, renamed{from: col.Name, to: name})
		col.Name = name
		schema = append(schema, col)
	}

	index := make(map[string][]tableapi.Row, len(right.Rows))
	for _, row := range right.Rows {
		k := groupKey(row, on)
		index[k] = append(index[k], row)
	}

	out := tableapi.Empty(schema)
	for _, row := range left.Rows {
		matches := index[groupKey(row, on)]
		if len(matches) == 0 {
			merged := row.Clone()
			for _, e := range extra {
				merged[e.to] = nil
			}
			out.Rows = append(out.Rows, merged)
			continue
		}
		for _, match := range matches {
			merged := row.Clone()
			for _, e := range extra {
				merged[e.to] = match[e.from]
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out, nil
}
