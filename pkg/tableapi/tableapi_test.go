package tableapi

import (
	"cmp"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func sample() Table {
	return New([]Column{
		{Name: "id", Type: TypeString},
		{Name: "score", Type: TypeFloat},
		{Name: "visit", Type: TypeInt},
		{Name: "day", Type: TypeDate},
	}, []Row{
		{"id": "7", "score": 12.5, "visit": 2, "day": time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
		{"id": "5", "score": math.NaN(), "visit": 1, "day": nil},
	})
}

func TestCloneIsDeep(t *testing.T) {
	orig := sample()
	clone := orig.Clone()
	clone.Rows[0]["score"] = 1.0
	clone.Schema[0].Name = "renamed"
	if orig.Rows[0]["score"] != 12.5 || orig.Schema[0].Name != "id" {
		t.Fatalf("clone aliases original")
	}
}

func TestRequireNamesMissingColumns(t *testing.T) {
	err := sample().Require("id", "age", "sex")
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	if err.Error() != "tableapi: missing column: age, sex" {
		t.Fatalf("unexpected message %q", err)
	}
	if err := sample().Require("id", "day"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestWithColumnAndFilter(t *testing.T) {
	tbl, err := sample().WithColumn(Column{Name: "flag", Type: TypeString}, func(r Row) (any, error) {
		if r["id"] == "7" {
			return "yes", nil
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("with column: %v", err)
	}
	if got := tbl.Names(); len(got) != 5 || got[4] != "flag" {
		t.Fatalf("schema %v", got)
	}
	kept := tbl.Filter(func(r Row) bool { return r["flag"] != nil })
	if kept.Len() != 1 || kept.Rows[0]["id"] != "7" {
		t.Fatalf("filter kept %v", kept.Rows)
	}
	if _, err := sample().WithColumn(Column{Name: "x"}, func(Row) (any, error) { return nil, errors.New("boom") }); err == nil {
		t.Fatalf("expected row error")
	}
}

func TestSanitizedAndRestoreRoundTrip(t *testing.T) {
	clean := sample().Sanitized()
	if clean.Rows[1]["score"] != nil {
		t.Fatalf("NaN not cleared: %v", clean.Rows[1]["score"])
	}
	if !math.IsNaN(sample().Rows[1]["score"].(float64)) {
		t.Fatalf("Sanitized mutated the source table")
	}
	payload, err := json.Marshal(clean)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Table
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, err := decoded.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	row := restored.Rows[0]
	if row["visit"] != 2 || row["score"] != 12.5 {
		t.Fatalf("numeric cells not restored: %#v", row)
	}
	if day, ok := row["day"].(time.Time); !ok || !day.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date cell not restored: %#v", row["day"])
	}
	if restored.Rows[1]["day"] != nil {
		t.Fatalf("nil date should stay nil")
	}
}

func TestRestoreRejectsBadCells(t *testing.T) {
	tbl := New([]Column{{Name: "visit", Type: TypeInt}}, []Row{{"visit": 1.5}})
	if _, err := tbl.Restore(); err == nil {
		t.Fatalf("expected non-integral error")
	}
}

func TestCompare(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		a, b any
		want int
	}{
		{"9", "10", -1},
		{10, 9.5, 1},
		{"12", 12.0, 0},
		{d1, d1.AddDate(0, 0, 1), -1},
		{"b", "a", 1},
		{nil, "a", 1},
		{"a", nil, -1},
		{nil, nil, 0},
		{"10", "1a", -1},
		{"1a", "10", 1},
		{"007", "7", -1},
		{"7", 7, 0},
		{"x", d1, 1},
		{12, nil, -1},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Errorf("Compare(%v, %v) = %d want %d", c.a, c.b, got, c.want)
		}
	}
	if Key("12") != Key(12.0) || Key("x") != "x" {
		t.Fatalf("numeric keys should be canonical")
	}
	if Key("007") == Key("7") {
		t.Fatalf("zero-padded identifiers must keep distinct keys")
	}
}

func TestCompareIsTotalOrder(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cells := []any{
		"9", "1a", "10", "2b", "100", "x", "11", "1b", "20", "3",
		"007", "7", 7, 7.5, "", nil, d1, "2024-01-01", math.NaN(), "NaN", -1,
	}
	sign := func(v int) int { return cmp.Compare(v, 0) }
	for _, a := range cells {
		if Compare(a, a) != 0 {
			t.Fatalf("Compare(%v, %v) != 0", a, a)
		}
		for _, b := range cells {
			ab, ba := sign(Compare(a, b)), sign(Compare(b, a))
			if ab != -ba {
				t.Fatalf("Compare not antisymmetric for %v, %v: %d vs %d", a, b, ab, ba)
			}
			if ab == 0 && Key(a) != Key(b) {
				t.Fatalf("Compare(%v, %v) = 0 but keys differ", a, b)
			}
			for _, c := range cells {
				if ab <= 0 && sign(Compare(b, c)) <= 0 && Compare(a, c) > 0 {
					t.Fatalf("Compare not transitive: %v <= %v <= %v but %v > %v", a, b, c, a, c)
				}
			}
		}
	}
}

func TestFormatValue(t *testing.T) {
	cases := map[string]any{
		"":                     nil,
		"2024-01-08":           time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		"2024-01-08T09:30:00Z": time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC),
		"12.5":                 12.5,
		"3":                    3,
		"true":                 true,
	}
	for want, v := range cases {
		if got := FormatValue(v); got != want {
			t.Errorf("FormatValue(%v) = %q want %q", v, got, want)
		}
	}
	if FormatValue(math.NaN()) != "" {
		t.Fatalf("NaN should render empty")
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	if err != nil || f != FormatXLSX {
		t.Fatalf("ParseFormat = %v, %v", f, err)
	}
	if f.Extension() != ".xlsx" || FormatCSV.ContentType() != "text/csv" {
		t.Fatalf("unexpected extension or content type")
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
