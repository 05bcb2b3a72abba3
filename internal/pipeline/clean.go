package pipeline

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"scoretrack/pkg/tableapi"
)

// Clean runs date normalization, same-day de-duplication, visit ordering and
// indexing, time bucketing and, when enabled, the simulated age covariate.
func Clean(raw tableapi.Table, roles Roles, opts Options) (tableapi.Table, error) {
	if err := roles.validate(); err != nil {
		return tableapi.Table{}, err
	}
	normalized, err := NormalizeDates(raw, roles, opts.DatePolicy)
	if err != nil {
		return tableapi.Table{}, fmt.Errorf("normalize dates: %w", err)
	}
	keys, carry := roles.visitKeys()
	collapsed, err := CollapseSameDay(normalized, keys, carry, roles.Value)
	if err != nil {
		return tableapi.Table{}, fmt.Errorf("collapse same-day readings: %w", err)
	}
	sorted, err := SortVisits(collapsed, roles)
	if err != nil {
		return tableapi.Table{}, fmt.Errorf("sort visits: %w", err)
	}
	indexed, err := AssignVisits(sorted, roles)
	if err != nil {
		return tableapi.Table{}, fmt.Errorf("assign visits: %w", err)
	}
	cleaned, err := AddTimeBuckets(indexed, roles.Date)
	if err != nil {
		return tableapi.Table{}, fmt.Errorf("time buckets: %w", err)
	}
	if opts.SimulateAge {
		rng := opts.Rand
		if rng == nil {
			rng = NewRand(uint64(time.Now().UnixNano()))
		}
		cleaned, err = SimulateAge(cleaned, roles.ID, rng)
		if err != nil {
			return tableapi.Table{}, fmt.Errorf("simulate age: %w", err)
		}
	}
	return cleaned, nil
}

type group struct {
	values []any
	carry  []any
	sum    float64
	n      int
}

// CollapseSameDay groups rows by the key columns and replaces each group with a
// single row holding the mean of the value column. Carry columns keep the first
// non-blank value seen in the group; all other columns are dropped. Groups are
// emitted in ascending key order.
func CollapseSameDay(t tableapi.Table, keys, carry []string, value string) (tableapi.Table, error) {
	if err := requireColumns(t, slices.Concat(keys, carry, []string{value})...); err != nil {
		return tableapi.Table{}, err
	}
	groups := make(map[string]*group)
	order := make([]*group, 0)
	for i, row := range t.Rows {
		v, err := tableapi.AsFloat(row[value])
		if err != nil {
			return tableapi.Table{}, schemaErr(value, i, err)
		}
		key := groupKey(row, keys)
		g, ok := groups[key]
		if !ok {
			g = &group{values: make([]any, len(keys)), carry: make([]any, len(carry))}
			for j, name := range keys {
				g.values[j] = row[name]
			}
			groups[key] = g
			order = append(order, g)
		}
		for j, name := range carry {
			if isBlank(g.carry[j]) && !isBlank(row[name]) {
				g.carry[j] = row[name]
			}
		}
		g.sum += v
		g.n++
	}
	slices.SortStableFunc(order, func(a, b *group) int {
		for j := range keys {
			if c := tableapi.Compare(a.values[j], b.values[j]); c != 0 {
				return c
			}
		}
		return 0
	})

	schema := make([]tableapi.Column, 0, len(keys)+len(carry)+1)
	for _, name := range slices.Concat(keys, carry) {
		col, _ := t.Column(name)
		schema = append(schema, col)
	}
	schema = append(schema, tableapi.Column{Name: value, Type: tableapi.TypeFloat, Description: "mean of same-day readings"})

	out := tableapi.Empty(schema)
	for _, g := range order {
		row := make(tableapi.Row, len(keys)+len(carry)+1)
		for j, name := range keys {
			row[name] = g.values[j]
		}
		for j, name := range carry {
			row[name] = g.carry[j]
			if isBlank(row[name]) {
				row[name] = nil
			}
		}
		row[value] = g.sum / float64(g.n)
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func groupKey(row tableapi.Row, columns []string) string {
	parts := make([]string, len(columns))
	for i, name := range columns {
		parts[i] = tableapi.Key(row[name])
	}
	return strings.Join(parts, "\x1f")
}

// SortVisits orders rows by patient, then by primary date. The sort is stable.
func SortVisits(t tableapi.Table, roles Roles) (tableapi.Table, error) {
	if err := requireColumns(t, roles.ID, roles.Date); err != nil {
		return tableapi.Table{}, err
	}
	dates := make(map[int]time.Time, len(t.Rows))
	for i, row := range t.Rows {
		d, err := ParseDate(row[roles.Date])
		if err != nil {
			return tableapi.Table{}, schemaErr(roles.Date, i, err)
		}
		dates[i] = d
	}
	idx := make([]int, len(t.Rows))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		if c := tableapi.Compare(t.Rows[a][roles.ID], t.Rows[b][roles.ID]); c != 0 {
			return c
		}
		return dates[a].Compare(dates[b])
	})
	out := tableapi.Empty(t.Schema)
	for _, i := range idx {
		out.Rows = append(out.Rows, t.Rows[i].Clone())
	}
	return out, nil
}

// AssignVisits numbers each patient's rows 1..K in row order. Rows must already be
// date-ascending within every patient (ErrUnsorted otherwise) and carry at most
// one row per patient and date (ErrDuplicateVisit otherwise).
func AssignVisits(t tableapi.Table, roles Roles) (tableapi.Table, error) {
	if err := requireColumns(t, roles.ID, roles.Date); err != nil {
		return tableapi.Table{}, err
	}
	last := make(map[string]time.Time)
	counts := make(map[string]int)
	for i, row := range t.Rows {
		d, err := ParseDate(row[roles.Date])
		if err != nil {
			return tableapi.Table{}, schemaErr(roles.Date, i, err)
		}
		id := tableapi.Key(row[roles.ID])
		if prev, seen := last[id]; seen {
			switch {
			case d.Before(prev):
				return tableapi.Table{}, fmt.Errorf("%w: patient %s row %d", ErrUnsorted, id, i)
			case d.Equal(prev):
				return tableapi.Table{}, fmt.Errorf("%w: patient %s on %s (row %d)", ErrDuplicateVisit, id, d.Format(tableapi.DateLayout), i)
			}
		}
		last[id] = d
	}
	return t.WithColumn(numVisitColumn, func(row tableapi.Row) (any, error) {
		id := tableapi.Key(row[roles.ID])
		counts[id]++
		return counts[id], nil
	})
}

// AddTimeBuckets derives month, year and a YYYY-MM period token from the date column.
func AddTimeBuckets(t tableapi.Table, dateColumn string) (tableapi.Table, error) {
	if err := requireColumns(t, dateColumn); err != nil {
		return tableapi.Table{}, err
	}
	out := t
	var err error
	buckets := []struct {
		col    tableapi.Column
		derive func(time.Time) any
	}{
		{monthColumn, func(d time.Time) any { return int(d.Month()) }},
		{yearColumn, func(d time.Time) any { return d.Year() }},
		{monthYearColumn, func(d time.Time) any { return d.Format("2006-01") }},
	}
	for _, b := range buckets {
		out, err = out.WithColumn(b.col, func(row tableapi.Row) (any, error) {
			d, err := ParseDate(row[dateColumn])
			if err != nil {
				return nil, schemaErr(dateColumn, -1, err)
			}
			return b.derive(d), nil
		})
		if err != nil {
			return tableapi.Table{}, err
		}
	}
	return out, nil
}

// Age distribution of the simulated covariate.
const (
	SimulatedAgeMean  = 30.0
	SimulatedAgeSigma = 5.0
)

// SimulateAge draws one age per distinct patient from Normal(30, 5), truncates it
// toward zero and broadcasts it to every row of that patient. Patients draw in
// order of first appearance.
func SimulateAge(t tableapi.Table, idColumn string, rng *rand.Rand) (tableapi.Table, error) {
	if err := requireColumns(t, idColumn); err != nil {
		return tableapi.Table{}, err
	}
	ages := make(map[string]int)
	for _, row := range t.Rows {
		id := tableapi.Key(row[idColumn])
		if _, ok := ages[id]; !ok {
			ages[id] = int(SimulatedAgeMean + SimulatedAgeSigma*rng.NormFloat64())
		}
	}
	return t.WithColumn(simulatedAgeColumn, func(row tableapi.Row) (any, error) {
		return ages[tableapi.Key(row[idColumn])], nil
	})
}
