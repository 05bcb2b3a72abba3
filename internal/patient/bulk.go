package patient

import (
	"fmt"

	"github.com/exascience/pargo/parallel"

	"scoretrack/internal/pipeline"
	"scoretrack/pkg/tableapi"
)

// SummarizeAll computes the summary of every patient in a cleaned table. Patients
// are summarized in parallel; the result is ordered by patient id.
func SummarizeAll(t tableapi.Table, roles pipeline.Roles, cutoff float64) ([]Summary, error) {
	histories, err := Histories(t, roles)
	if err != nil {
		return nil, err
	}
	if len(histories) == 0 {
		return []Summary{}, nil
	}
	summaries := make([]Summary, len(histories))
	errs := make([]error, len(histories))
	parallel.Range(0, len(histories), 0, func(low, high int) {
		for i := low; i < high; i++ {
			summaries[i], errs[i] = SummarizeAt(histories[i], cutoff)
		}
	})
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("patient %s: %w", histories[i].PatientID, err)
		}
	}
	return summaries, nil
}

// SummarySchema is the column layout of SummaryTable.
var SummarySchema = []tableapi.Column{
	{Name: "patient_id", Type: tableapi.TypeString},
	{Name: "initial_score", Type: tableapi.TypeFloat},
	{Name: "final_score", Type: tableapi.TypeFloat},
	{Name: "avg_delta", Type: tableapi.TypeFloat, Description: "empty when the patient has a single visit"},
	{Name: "total_change", Type: tableapi.TypeFloat},
	{Name: "pct_further_eval", Type: tableapi.TypeFloat, Unit: "percent"},
	{Name: "visits", Type: tableapi.TypeInt},
	{Name: "first_visit", Type: tableapi.TypeDate},
	{Name: "last_visit", Type: tableapi.TypeDate},
}

// SummaryTable lays summaries out as a table for export.
func SummaryTable(summaries []Summary) tableapi.Table {
	t := tableapi.Empty(SummarySchema)
	for _, s := range summaries {
		t.Rows = append(t.Rows, tableapi.Row{
			"patient_id":       s.PatientID,
			"initial_score":    s.InitialScore,
			"final_score":      s.FinalScore,
			"avg_delta":        s.AvgDelta,
			"total_change":     s.TotalChange,
			"pct_further_eval": s.PctFurtherEval,
			"visits":           s.Visits,
			"first_visit":      s.FirstVisit,
			"last_visit":       s.LastVisit,
		})
	}
	return t
}
