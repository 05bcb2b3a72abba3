package tableapi

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date rendering used for date cells.
const DateLayout = "2006-01-02"

// AsFloat converts a numeric or numeric-looking cell to float64.
func AsFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", n)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
}

// AsInt converts an integral cell to int. Non-integral floats are rejected.
func AsInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("not integral: %q", n)
		}
		return i, nil
	}
	f, err := AsFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not integral: %v", f)
	}
	return int(f), nil
}

// AsTime converts a date cell. Strings are accepted in RFC3339 or DateLayout.
func AsTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, nil
		}
		ts, err := time.Parse(DateLayout, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("not a date: %q", t)
		}
		return ts, nil
	case nil:
		return time.Time{}, fmt.Errorf("missing value")
	default:
		return time.Time{}, fmt.Errorf("not a date: %T", v)
	}
}

// FormatValue renders a cell for delimited and HTML output.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format(DateLayout)
		}
		return val.Format(time.RFC3339)
	case float64:
		if math.IsNaN(val) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// Compare is a total order over cells: dates first (chronological), then
// numbers including numeric strings (by value, then by text so "007" sorts
// before "7"), then all other text, then nil. Compare returns 0 only when
// Key renders both cells the same.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNil:
		return 0
	case rankTime:
		if c := a.(time.Time).Compare(b.(time.Time)); c != 0 {
			return c
		}
	case rankNumber:
		fa, _ := AsFloat(a)
		fb, _ := AsFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	}
	return strings.Compare(Key(a), Key(b))
}

const (
	rankTime = iota
	rankNumber
	rankText
	rankNil
)

func rank(v any) int {
	switch val := v.(type) {
	case nil:
		return rankNil
	case time.Time:
		return rankTime
	case string:
		if strings.TrimSpace(val) == "" {
			return rankText
		}
	}
	if f, err := AsFloat(v); err == nil && !math.IsNaN(f) {
		return rankNumber
	}
	return rankText
}

// Key renders a cell as a grouping key. Keys follow the cell's text, so the
// identifiers "007" and "7" stay distinct while 12 and 12.0 share the key "12".
func Key(v any) string {
	return FormatValue(v)
}

// Restore coerces decoded cells back to their schema types. JSON round trips
// turn dates into strings and integers into float64; Restore undoes that.
func (t Table) Restore() (Table, error) {
	out := t.Clone()
	for i, row := range out.Rows {
		for _, col := range out.Schema {
			v, ok := row[col.Name]
			if !ok || v == nil {
				continue
			}
			var err error
			switch col.Type {
			case TypeFloat:
				row[col.Name], err = AsFloat(v)
			case TypeInt:
				row[col.Name], err = AsInt(v)
			case TypeDate:
				row[col.Name], err = AsTime(v)
			case TypeString:
				if _, isString := v.(string); !isString {
					row[col.Name] = FormatValue(v)
				}
			}
			if err != nil {
				return Table{}, fmt.Errorf("row %d column %s: %w", i, col.Name, err)
			}
		}
	}
	return out, nil
}

// Sanitized returns a copy in which NaN and infinite floats are nil, so the
// table can be encoded as JSON.
func (t Table) Sanitized() Table {
	out := t.Clone()
	for _, row := range out.Rows {
		for k, v := range row {
			switch f := v.(type) {
			case float64:
				if math.IsNaN(f) || math.IsInf(f, 0) {
					row[k] = nil
				}
			case float32:
				if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
					row[k] = nil
				}
			}
		}
	}
	return out
}
