package pipeline

import (
	"strings"
	"testing"

	"scoretrack/pkg/tableapi"
)

func cleanedFixture(t *testing.T) tableapi.Table {
	t.Helper()
	raw := rawTable(
		[4]string{"7", "2024-01-01", "15", "2023-12-01"},
		[4]string{"7", "2024-01-08", "12", "2023-12-01"},
		[4]string{"7", "2024-01-15", "8", "2023-12-01"},
		[4]string{"12", "2024-01-03", "20", "2023-11-01"},
		[4]string{"12", "2024-01-09", "21", "2023-11-01"},
		[4]string{"30", "2024-02-01", "4", "2024-01-20"},
	)
	cleaned, err := Clean(raw, DefaultRoles(), noAge())
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	return cleaned
}

func TestDiffsDropNull(t *testing.T) {
	cleaned := cleanedFixture(t)
	diffs, err := Diffs(cleaned, DefaultDiffOptions())
	if err != nil {
		t.Fatalf("diffs: %v", err)
	}
	want := []struct {
		visit int
		id    string
		delta float64
	}{
		{2, "7", -3},
		{3, "7", -4},
		{2, "12", 1},
	}
	if diffs.Len() != len(want) {
		t.Fatalf("expected %d diff rows, got %d: %v", len(want), diffs.Len(), diffs.Rows)
	}
	for i, w := range want {
		row := diffs.Rows[i]
		if row[ColNumVisit] != w.visit || row[ColPatientID] != w.id || row[ColDeltaScore] != w.delta {
			t.Fatalf("row %d = %v want %+v", i, row, w)
		}
	}
	if names := strings.Join(diffs.Names(), ","); names != "num_visit,patient_id,delta_score" {
		t.Fatalf("unexpected schema %s", names)
	}
}

func TestDiffsRoundTripAgainstScores(t *testing.T) {
	cleaned := cleanedFixture(t)
	diffs, err := Diffs(cleaned, DefaultDiffOptions())
	if err != nil {
		t.Fatalf("diffs: %v", err)
	}
	scores := map[string]map[int]float64{}
	for _, row := range cleaned.Rows {
		id := row[ColPatientID].(string)
		if scores[id] == nil {
			scores[id] = map[int]float64{}
		}
		scores[id][row[ColNumVisit].(int)] = row[ColScore].(float64)
	}
	for _, row := range diffs.Rows {
		id := row[ColPatientID].(string)
		n := row[ColNumVisit].(int)
		if n == 1 {
			t.Fatalf("visit 1 must not produce a diff row")
		}
		if got, want := row[ColDeltaScore].(float64), scores[id][n]-scores[id][n-1]; got != want {
			t.Fatalf("patient %s visit %d: delta %v want %v", id, n, got, want)
		}
	}
}

func TestDiffsKeepNull(t *testing.T) {
	cleaned := cleanedFixture(t)
	opts := DefaultDiffOptions()
	opts.DropNull = false
	diffs, err := Diffs(cleaned, opts)
	if err != nil {
		t.Fatalf("diffs: %v", err)
	}
	// three visit numbers by three patients
	if diffs.Len() != 9 {
		t.Fatalf("expected full matrix of 9 rows, got %d", diffs.Len())
	}
	first := diffs.Rows[0]
	if first[ColPatientID] != "7" || first[ColNumVisit] != 1 || first[ColDeltaScore] != nil {
		t.Fatalf("expected first row to be patient 7 visit 1 with nil delta, got %v", first)
	}
}

func TestPivotRejectsDuplicates(t *testing.T) {
	tbl := tableapi.Empty([]tableapi.Column{{Name: ColNumVisit}, {Name: ColPatientID}, {Name: ColScore}})
	tbl.Rows = []tableapi.Row{
		{ColNumVisit: 1, ColPatientID: "1", ColScore: 3.0},
		{ColNumVisit: 1, ColPatientID: "1", ColScore: 4.0},
	}
	if _, err := NewPivot(tbl, ColNumVisit, ColPatientID, ColScore); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestPivotNaturalOrder(t *testing.T) {
	tbl := tableapi.Empty([]tableapi.Column{{Name: ColNumVisit}, {Name: ColPatientID}, {Name: ColScore}})
	tbl.Rows = []tableapi.Row{
		{ColNumVisit: 2, ColPatientID: "100", ColScore: 3.0},
		{ColNumVisit: 1, ColPatientID: "9", ColScore: 4.0},
		{ColNumVisit: 1, ColPatientID: "100", ColScore: 5.0},
	}
	p, err := NewPivot(tbl, ColNumVisit, ColPatientID, ColScore)
	if err != nil {
		t.Fatalf("pivot: %v", err)
	}
	if p.Columns[0] != "9" || p.Columns[1] != "100" {
		t.Fatalf("expected numeric-aware column order, got %v", p.Columns)
	}
	if p.Index[0] != 1 || p.Index[1] != 2 {
		t.Fatalf("unexpected index order %v", p.Index)
	}
	if _, ok := p.Value(2, "9"); ok {
		t.Fatalf("expected absent cell")
	}
	if v, ok := p.Value(2, "100"); !ok || v != 3 {
		t.Fatalf("cell = %v, %v", v, ok)
	}
}

func TestMergeDiffsLeftJoin(t *testing.T) {
	cleaned := cleanedFixture(t)
	diffs, err := Diffs(cleaned, DefaultDiffOptions())
	if err != nil {
		t.Fatalf("diffs: %v", err)
	}
	merged, err := MergeDiffs(cleaned, diffs, []string{ColPatientID, ColNumVisit})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Len() != cleaned.Len() {
		t.Fatalf("left join changed row count: %d vs %d", merged.Len(), cleaned.Len())
	}
	if !merged.HasColumn(ColDeltaScore) {
		t.Fatalf("merged table missing delta_score")
	}
	for _, row := range merged.Rows {
		if row[ColNumVisit] == 1 && row[ColDeltaScore] != nil {
			t.Fatalf("first visit should have nil delta: %v", row)
		}
		if row[ColNumVisit] != 1 && row[ColDeltaScore] == nil {
			t.Fatalf("later visit missing delta: %v", row)
		}
	}
}

func TestMergeDiffsSuffixesCollisions(t *testing.T) {
	left := tableapi.Empty([]tableapi.Column{{Name: "k"}, {Name: "v"}})
	left.Rows = []tableapi.Row{{"k": "a", "v": 1}, {"k": "b", "v": 2}}
	right := tableapi.Empty([]tableapi.Column{{Name: "k"}, {Name: "v"}})
	right.Rows = []tableapi.Row{{"k": "a", "v": 10}}
	merged, err := MergeDiffs(left, right, []string{"k"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !merged.HasColumn("v_y") {
		t.Fatalf("expected suffixed column, got %v", merged.Names())
	}
	if merged.Rows[0]["v_y"] != 10 || merged.Rows[1]["v_y"] != nil {
		t.Fatalf("unexpected merge rows %v", merged.Rows)
	}
	if _, err := MergeDiffs(left, right, []string{"missing"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
