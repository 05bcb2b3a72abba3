package pipeline

import (
	"math"
	"testing"

	"scoretrack/pkg/tableapi"
)

func TestAggregateMethods(t *testing.T) {
	tbl := tableapi.Empty([]tableapi.Column{{Name: ColPatientID, Type: tableapi.TypeString}, {Name: ColScore, Type: tableapi.TypeFloat}})
	tbl.Rows = []tableapi.Row{
		{ColPatientID: "2", ColScore: 4.0},
		{ColPatientID: "1", ColScore: 9.0},
		{ColPatientID: "2", ColScore: 10.0},
		{ColPatientID: "1", ColScore: 3.0},
		{ColPatientID: "2", ColScore: 7.0},
		{ColPatientID: "3", ColScore: nil},
	}
	cases := []struct {
		method AggMethod
		want   map[string]any
	}{
		{AggMax, map[string]any{"1": 9.0, "2": 10.0}},
		{AggMin, map[string]any{"1": 3.0, "2": 4.0}},
		{AggMean, map[string]any{"1": 6.0, "2": 7.0}},
		{AggSum, map[string]any{"1": 12.0, "2": 21.0}},
		{AggCount, map[string]any{"1": 2, "2": 3, "3": 0}},
		{AggFirst, map[string]any{"1": 9.0, "2": 4.0}},
		{AggLast, map[string]any{"1": 3.0, "2": 7.0}},
		{AggMedian, map[string]any{"1": 6.0, "2": 7.0}},
	}
	for _, tc := range cases {
		t.Run(string(tc.method), func(t *testing.T) {
			out, err := Aggregate(tbl, ColPatientID, tc.method, ColScore)
			if err != nil {
				t.Fatalf("aggregate: %v", err)
			}
			if out.Len() != 3 {
				t.Fatalf("expected 3 groups, got %d", out.Len())
			}
			if out.Rows[0][ColPatientID] != "1" || out.Rows[2][ColPatientID] != "3" {
				t.Fatalf("groups not ordered: %v", out.Rows)
			}
			for _, row := range out.Rows {
				id := row[ColPatientID].(string)
				want, ok := tc.want[id]
				if !ok {
					if f, isFloat := row[ColScore].(float64); !isFloat || !math.IsNaN(f) {
						t.Fatalf("group %s: expected NaN, got %v", id, row[ColScore])
					}
					continue
				}
				if row[ColScore] != want {
					t.Fatalf("group %s: got %v want %v", id, row[ColScore], want)
				}
			}
		})
	}
}

func TestAggregateErrors(t *testing.T) {
	tbl := tableapi.Empty([]tableapi.Column{{Name: "k"}, {Name: "v"}})
	tbl.Rows = []tableapi.Row{{"k": "a", "v": "x"}}
	if _, err := Aggregate(tbl, "k", "mode", "v"); err == nil {
		t.Fatalf("expected unknown method error")
	}
	if _, err := Aggregate(tbl, "k", AggMax, "v"); err == nil {
		t.Fatalf("expected non-numeric error")
	}
	if _, err := Aggregate(tbl, "missing", AggMax, "v"); err == nil {
		t.Fatalf("expected missing column error")
	}
}
