package pipeline

import (
	"fmt"
	"math"
	"slices"

	"scoretrack/pkg/tableapi"
)

// AggMethod names a reduction applied by Aggregate.
type AggMethod string

const (
	AggMax    AggMethod = "max"
	AggMin    AggMethod = "min"
	AggMean   AggMethod = "mean"
	AggSum    AggMethod = "sum"
	AggCount  AggMethod = "count"
	AggFirst  AggMethod = "first"
	AggLast   AggMethod = "last"
	AggMedian AggMethod = "median"
)

// Aggregate groups t by groupBy and reduces column with method. Missing cells are
// skipped; a group with no values reduces to NaN, or 0 for count. The result is
// ordered by group key.
func Aggregate(t tableapi.Table, groupBy string, method AggMethod, column string) (tableapi.Table, error) {
	reduce, typ, err := reducer(method)
	if err != nil {
		return tableapi.Table{}, err
	}
	if err := requireColumns(t, groupBy, column); err != nil {
		return tableapi.Table{}, err
	}
	type bucket struct {
		key    any
		values []float64
	}
	buckets := make(map[string]*bucket)
	var order []*bucket
	for i, row := range t.Rows {
		k := tableapi.Key(row[groupBy])
		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: row[groupBy]}
			buckets[k] = b
			order = append(order, b)
		}
		if row[column] == nil {
			continue
		}
		v, err := tableapi.AsFloat(row[column])
		if err != nil {
			return tableapi.Table{}, schemaErr(column, i, err)
		}
		b.values = append(b.values, v)
	}
	slices.SortStableFunc(order, func(a, b *bucket) int { return tableapi.Compare(a.key, b.key) })

	keyCol, _ := t.Column(groupBy)
	out := tableapi.Empty([]tableapi.Column{keyCol, {Name: column, Type: typ, Description: string(method)}})
	for _, b := range order {
		if len(b.values) == 0 && method != AggCount {
			out.Rows = append(out.Rows, tableapi.Row{groupBy: b.key, column: math.NaN()})
			continue
		}
		out.Rows = append(out.Rows, tableapi.Row{groupBy: b.key, column: reduce(b.values)})
	}
	return out, nil
}

func reducer(method AggMethod) (func([]float64) any, string, error) {
	switch method {
	case AggMax:
		return func(v []float64) any { return slices.Max(v) }, tableapi.TypeFloat, nil
	case AggMin:
		return func(v []float64) any { return slices.Min(v) }, tableapi.TypeFloat, nil
	case AggMean:
		return func(v []float64) any { return sum(v) / float64(len(v)) }, tableapi.TypeFloat, nil
	case AggSum:
		return func(v []float64) any { return sum(v) }, tableapi.TypeFloat, nil
	case AggCount:
		return func(v []float64) any { return len(v) }, tableapi.TypeInt, nil
	case AggFirst:
		return func(v []float64) any { return v[0] }, tableapi.TypeFloat, nil
	case AggLast:
		return func(v []float64) any { return v[len(v)-1] }, tableapi.TypeFloat, nil
	case AggMedian:
		return func(v []float64) any { return median(v) }, tableapi.TypeFloat, nil
	default:
		return nil, "", fmt.Errorf("unknown aggregation method %q", method)
	}
}

func sum(v []float64) float64 {
	var total float64
	for _, x := range v {
		total += x
	}
	return total
}

func median(v []float64) float64 {
	s := slices.Clone(v)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
