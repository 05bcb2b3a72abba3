package pipeline

import (
	"fmt"
	"strings"
	"time"

	"scoretrack/pkg/tableapi"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	tableapi.DateLayout,
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"2006/01/02",
}

// ParseDate parses a cell into a calendar date at UTC midnight. The time of day
// is discarded in the cell's own offset, so 2024-01-01T23:30:00-05:00 is January 1st.
func ParseDate(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return calendarDate(val), nil
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return calendarDate(ts), nil
			}
		}
		return time.Time{}, fmt.Errorf("unparsable date %q", val)
	default:
		return time.Time{}, fmt.Errorf("unparsable date %T", v)
	}
}

func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// NormalizeDates converts the configured date columns to calendar dates.
// The primary date column must be present on every row; other date columns may
// be blank and are carried as nil.
func NormalizeDates(t tableapi.Table, roles Roles, policy DatePolicy) (tableapi.Table, error) {
	if err := requireColumns(t, append([]string{roles.Date}, roles.DateColumns...)...); err != nil {
		return tableapi.Table{}, err
	}
	columns := roles.DateColumns
	if !contains(columns, roles.Date) {
		columns = append([]string{roles.Date}, columns...)
	}
	out := t.Clone()
	for _, name := range columns {
		setColumnType(&out, name, tableapi.TypeDate)
	}
	for i, row := range out.Rows {
		primary, err := ParseDate(row[roles.Date])
		if err != nil {
			return tableapi.Table{}, schemaErr(roles.Date, i, err)
		}
		for _, name := range columns {
			if policy == DatePolicyReference || name == roles.Date {
				row[name] = primary
				continue
			}
			if isBlank(row[name]) {
				row[name] = nil
				continue
			}
			d, err := ParseDate(row[name])
			if err != nil {
				return tableapi.Table{}, schemaErr(name, i, err)
			}
			row[name] = d
		}
	}
	return out, nil
}

func setColumnType(t *tableapi.Table, name, typ string) {
	for i := range t.Schema {
		if t.Schema[i].Name == name {
			t.Schema[i].Type = typ
			return
		}
	}
}

func requireColumns(t tableapi.Table, names ...string) error {
	if err := t.Require(names...); err != nil {
		return schemaErr(strings.Join(names, ","), -1, err)
	}
	return nil
}
