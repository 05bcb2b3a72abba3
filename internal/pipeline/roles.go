// Package pipeline cleans raw assessment tables into a de-duplicated
// longitudinal dataset and derives visit-to-visit score deltas from it.
package pipeline

import (
	"errors"
	"math/rand/v2"
	"slices"
	"strings"

	"scoretrack/pkg/tableapi"
)

// Column names produced or consumed by the pipeline.
const (
	ColPatientID      = "patient_id"
	ColDate           = "date"
	ColScore          = "score"
	ColPatientCreated = "patient_date_created"
	ColNumVisit       = "num_visit"
	ColMonth          = "month"
	ColYear           = "year"
	ColMonthYear      = "month_year"
	ColSimulatedAge   = "simulated_age"
	ColDeltaScore     = "delta_score"
)

// Roles maps pipeline concerns onto table columns.
type Roles struct {
	// DateColumns are normalized to calendar dates.
	DateColumns []string
	// GroupBy lists the columns kept on every cleaned reading. Readings are
	// merged per (ID, Date) and their values averaged; the remaining GroupBy
	// columns describe the patient and keep the first non-blank value of the day.
	GroupBy []string
	// Value is the numeric column averaged during de-duplication.
	Value string
	// ID identifies the patient.
	ID string
	// Date is the primary visit date column.
	Date string
}

// DefaultRoles returns the column roles of a standard assessment export.
func DefaultRoles() Roles {
	return Roles{
		DateColumns: []string{ColDate, ColPatientCreated},
		GroupBy:     []string{ColDate, ColPatientID, ColPatientCreated},
		Value:       ColScore,
		ID:          ColPatientID,
		Date:        ColDate,
	}
}

func (r Roles) validate() error {
	var problems []string
	if strings.TrimSpace(r.ID) == "" {
		problems = append(problems, "id column required")
	}
	if strings.TrimSpace(r.Date) == "" {
		problems = append(problems, "date column required")
	}
	if strings.TrimSpace(r.Value) == "" {
		problems = append(problems, "value column required")
	}
	if !contains(r.GroupBy, r.ID) {
		problems = append(problems, "group-by must include the id column")
	}
	if !contains(r.GroupBy, r.Date) {
		problems = append(problems, "group-by must include the date column")
	}
	if contains(r.GroupBy, r.Value) {
		problems = append(problems, "value column cannot be part of group-by")
	}
	if len(problems) > 0 {
		return errors.New("invalid roles: " + strings.Join(problems, "; "))
	}
	return nil
}

// DatePolicy selects how NormalizeDates derives the calendar date of each date column.
type DatePolicy int

const (
	// DatePolicyIndependent parses every date column from its own values.
	DatePolicyIndependent DatePolicy = iota
	// DatePolicyReference overwrites every date column with the calendar date of
	// the primary date column. Kept for parity with legacy exports.
	DatePolicyReference
)

func (p DatePolicy) String() string {
	switch p {
	case DatePolicyReference:
		return "reference"
	default:
		return "independent"
	}
}

// ParseDatePolicy accepts "independent" or "reference".
func ParseDatePolicy(s string) (DatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "independent":
		return DatePolicyIndependent, nil
	case "reference":
		return DatePolicyReference, nil
	default:
		return DatePolicyIndependent, errors.New("unknown date policy " + s)
	}
}

// Options tunes Clean.
type Options struct {
	DatePolicy DatePolicy
	// SimulateAge attaches a per-patient simulated_age column.
	SimulateAge bool
	// Rand drives the simulated age draws; a time-seeded source is used when nil.
	Rand *rand.Rand
}

// DefaultOptions enables the simulated covariate and independent date parsing.
func DefaultOptions() Options {
	return Options{DatePolicy: DatePolicyIndependent, SimulateAge: true}
}

// NewRand returns a deterministic source for Options.Rand.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// visitKeys splits GroupBy into the merge key (the ID and Date columns, in
// GroupBy order) and the carried patient attributes.
func (r Roles) visitKeys() (keys, carry []string) {
	for _, name := range r.GroupBy {
		if name == r.ID || name == r.Date {
			keys = append(keys, name)
			continue
		}
		carry = append(carry, name)
	}
	return keys, carry
}

// CleanedSchema is the schema Clean produces for the given roles.
func CleanedSchema(roles Roles, simulateAge bool) []tableapi.Column {
	schema := make([]tableapi.Column, 0, len(roles.GroupBy)+6)
	keys, carry := roles.visitKeys()
	for _, name := range slices.Concat(keys, carry) {
		typ := tableapi.TypeString
		if contains(roles.DateColumns, name) {
			typ = tableapi.TypeDate
		}
		schema = append(schema, tableapi.Column{Name: name, Type: typ})
	}
	schema = append(schema,
		tableapi.Column{Name: roles.Value, Type: tableapi.TypeFloat, Description: "mean of same-day readings"},
		numVisitColumn,
		monthColumn,
		yearColumn,
		monthYearColumn,
	)
	if simulateAge {
		schema = append(schema, simulatedAgeColumn)
	}
	return schema
}

var (
	numVisitColumn     = tableapi.Column{Name: ColNumVisit, Type: tableapi.TypeInt, Description: "1-based visit index per patient"}
	monthColumn        = tableapi.Column{Name: ColMonth, Type: tableapi.TypeInt}
	yearColumn         = tableapi.Column{Name: ColYear, Type: tableapi.TypeInt}
	monthYearColumn    = tableapi.Column{Name: ColMonthYear, Type: tableapi.TypeString, Format: "YYYY-MM"}
	simulatedAgeColumn = tableapi.Column{Name: ColSimulatedAge, Type: tableapi.TypeInt, Unit: "years"}
	deltaScoreColumn   = tableapi.Column{Name: ColDeltaScore, Type: tableapi.TypeFloat, Description: "score change from the previous visit"}
)

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
