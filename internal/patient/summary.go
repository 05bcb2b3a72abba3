// Package patient derives per-patient summary statistics from a cleaned
// assessment table and exposes them to presentation code.
package patient

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"scoretrack/internal/pipeline"
	"scoretrack/pkg/tableapi"
)

// ClinicalCutoff is the score at or above which a visit calls for further evaluation.
const ClinicalCutoff = 10.0

var (
	// ErrEmptyHistory is returned when summarizing a patient without visits.
	ErrEmptyHistory = errors.New("patient history is empty")
	// ErrInitialVisit is returned unless exactly one visit carries num_visit 1.
	ErrInitialVisit = errors.New("patient history must contain exactly one first visit")
)

// Visit is one cleaned, de-duplicated assessment.
type Visit struct {
	Date     time.Time `json:"date"`
	NumVisit int       `json:"num_visit"`
	Score    float64   `json:"score"`
}

// History is a patient's visits in ascending date order.
type History struct {
	PatientID string  `json:"patient_id"`
	Visits    []Visit `json:"visits"`
}

// Len returns the number of visits.
func (h History) Len() int { return len(h.Visits) }

// Scores returns the visit scores in history order.
func (h History) Scores() []float64 {
	out := make([]float64, len(h.Visits))
	for i, v := range h.Visits {
		out[i] = v.Score
	}
	return out
}

// Summary holds the derived statistics of one patient. AvgDelta is NaN when the
// history has a single visit.
type Summary struct {
	PatientID      string    `json:"patient_id"`
	InitialScore   float64   `json:"initial_score"`
	FinalScore     float64   `json:"final_score"`
	AvgDelta       float64   `json:"avg_delta"`
	TotalChange    float64   `json:"total_change"`
	PctFurtherEval float64   `json:"pct_further_eval"`
	Visits         int       `json:"visits"`
	FirstVisit     time.Time `json:"first_visit"`
	LastVisit      time.Time `json:"last_visit"`
}

// HasAvgDelta reports whether the average delta is defined.
func (s Summary) HasAvgDelta() bool { return !math.IsNaN(s.AvgDelta) }

// Fields returns the five headline statistics in display order.
func (s Summary) Fields() []Field {
	return []Field{
		{Name: "initial_score", Value: s.InitialScore},
		{Name: "final_score", Value: s.FinalScore},
		{Name: "avg_delta", Value: s.AvgDelta},
		{Name: "total_change", Value: s.TotalChange},
		{Name: "pct_further_eval", Value: s.PctFurtherEval},
	}
}

// Field is a named summary statistic.
type Field struct {
	Name  string
	Value float64
}

// Summarize derives the statistics of h using the standard clinical cutoff.
func Summarize(h History) (Summary, error) {
	return SummarizeAt(h, ClinicalCutoff)
}

// SummarizeAt derives the statistics of h, counting visits scored below cutoff as
// not requiring further evaluation.
func SummarizeAt(h History, cutoff float64) (Summary, error) {
	n := len(h.Visits)
	if n == 0 {
		return Summary{}, fmt.Errorf("%w: patient %s", ErrEmptyHistory, h.PatientID)
	}
	visits := slices.Clone(h.Visits)
	slices.SortStableFunc(visits, func(a, b Visit) int { return a.Date.Compare(b.Date) })

	var initial []float64
	below := 0
	for _, v := range visits {
		if v.NumVisit == 1 {
			initial = append(initial, v.Score)
		}
		if v.Score < cutoff {
			below++
		}
	}
	if len(initial) != 1 {
		return Summary{}, fmt.Errorf("%w: patient %s has %d", ErrInitialVisit, h.PatientID, len(initial))
	}

	// most recent by date; on equal dates the earliest row in history order wins
	latest := visits[0]
	for _, v := range visits[1:] {
		if v.Date.After(latest.Date) {
			latest = v
		}
	}

	s := Summary{
		PatientID:    h.PatientID,
		InitialScore: initial[0],
		FinalScore:   latest.Score,
		AvgDelta:     meanDelta(visits),
		Visits:       n,
		FirstVisit:   visits[0].Date,
		LastVisit:    latest.Date,
	}
	s.TotalChange = s.FinalScore - s.InitialScore
	s.PctFurtherEval = 100 - float64(below)/float64(n)*100
	return s, nil
}

func meanDelta(visits []Visit) float64 {
	if len(visits) < 2 {
		return math.NaN()
	}
	var total float64
	for i := 1; i < len(visits); i++ {
		total += visits[i].Score - visits[i-1].Score
	}
	return total / float64(len(visits)-1)
}

// Histories groups a cleaned table into per-patient histories ordered by patient id.
func Histories(t tableapi.Table, roles pipeline.Roles) ([]History, error) {
	if err := t.Require(roles.ID, roles.Date, roles.Value, pipeline.ColNumVisit); err != nil {
		return nil, &pipeline.SchemaError{Column: roles.ID, Row: -1, Err: err}
	}
	byID := make(map[string]*History)
	var ids []any
	for i, row := range t.Rows {
		visit, err := visitFromRow(row, roles, i)
		if err != nil {
			return nil, err
		}
		key := tableapi.Key(row[roles.ID])
		h, ok := byID[key]
		if !ok {
			h = &History{PatientID: tableapi.FormatValue(row[roles.ID])}
			byID[key] = h
			ids = append(ids, row[roles.ID])
		}
		h.Visits = append(h.Visits, visit)
	}
	slices.SortStableFunc(ids, tableapi.Compare)
	out := make([]History, 0, len(ids))
	for _, id := range ids {
		h := byID[tableapi.Key(id)]
		slices.SortStableFunc(h.Visits, func(a, b Visit) int { return a.Date.Compare(b.Date) })
		out = append(out, *h)
	}
	return out, nil
}

// HistoryFor extracts one patient's date-sorted history. The boolean is false
// when the patient does not occur in t.
func HistoryFor(t tableapi.Table, roles pipeline.Roles, patientID string) (History, bool, error) {
	if err := t.Require(roles.ID, roles.Date, roles.Value, pipeline.ColNumVisit); err != nil {
		return History{}, false, &pipeline.SchemaError{Column: roles.ID, Row: -1, Err: err}
	}
	want := tableapi.Key(patientID)
	h := History{PatientID: patientID}
	for i, row := range t.Rows {
		if tableapi.Key(row[roles.ID]) != want {
			continue
		}
		visit, err := visitFromRow(row, roles, i)
		if err != nil {
			return History{}, false, err
		}
		h.Visits = append(h.Visits, visit)
	}
	if len(h.Visits) == 0 {
		return History{}, false, nil
	}
	slices.SortStableFunc(h.Visits, func(a, b Visit) int { return a.Date.Compare(b.Date) })
	return h, true, nil
}

func visitFromRow(row tableapi.Row, roles pipeline.Roles, i int) (Visit, error) {
	date, err := pipeline.ParseDate(row[roles.Date])
	if err != nil {
		return Visit{}, &pipeline.SchemaError{Column: roles.Date, Row: i, Err: err}
	}
	score, err := tableapi.AsFloat(row[roles.Value])
	if err != nil {
		return Visit{}, &pipeline.SchemaError{Column: roles.Value, Row: i, Err: err}
	}
	num, err := tableapi.AsInt(row[pipeline.ColNumVisit])
	if err != nil {
		return Visit{}, &pipeline.SchemaError{Column: pipeline.ColNumVisit, Row: i, Err: err}
	}
	return Visit{Date: date, NumVisit: num, Score: score}, nil
}
