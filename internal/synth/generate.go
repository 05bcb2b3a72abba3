// Package synth generates raw assessment datasets for demos and load tests.
// Output mirrors real exports: unsorted rows, timestamps with a time of day,
// and occasional repeated readings on the same day.
package synth

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"scoretrack/internal/pipeline"
	"scoretrack/pkg/tableapi"
)

// MaxScore bounds generated scores.
const MaxScore = 27

// Config controls the generated dataset.
type Config struct {
	Patients  int
	MinVisits int
	MaxVisits int
	// Start is the earliest possible first visit; visits follow within SpanDays.
	Start    time.Time
	SpanDays int
	// RepeatRate is the probability that a visit carries a second reading the same day.
	RepeatRate float64
	Seed       uint64
}

// DefaultConfig returns a small dataset spanning one year.
func DefaultConfig() Config {
	return Config{
		Patients:   25,
		MinVisits:  1,
		MaxVisits:  8,
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SpanDays:   365,
		RepeatRate: 0.1,
		Seed:       1,
	}
}

func (c Config) validate() error {
	switch {
	case c.Patients < 0:
		return fmt.Errorf("patients must be >= 0")
	case c.MinVisits < 1 || c.MaxVisits < c.MinVisits:
		return fmt.Errorf("visit range [%d,%d] invalid", c.MinVisits, c.MaxVisits)
	case c.SpanDays < c.MaxVisits:
		return fmt.Errorf("span of %d days cannot hold %d visits", c.SpanDays, c.MaxVisits)
	case c.RepeatRate < 0 || c.RepeatRate > 1:
		return fmt.Errorf("repeat rate %v outside [0,1]", c.RepeatRate)
	}
	return nil
}

// RawSchema is the column layout of generated tables.
func RawSchema() []tableapi.Column {
	return []tableapi.Column{
		{Name: pipeline.ColPatientID, Type: tableapi.TypeString},
		{Name: pipeline.ColDate, Type: tableapi.TypeString},
		{Name: pipeline.ColScore, Type: tableapi.TypeString},
		{Name: pipeline.ColPatientCreated, Type: tableapi.TypeString},
	}
}

// Generate returns a raw table with string cells, as ingest would produce.
func Generate(cfg Config) (tableapi.Table, error) {
	if err := cfg.validate(); err != nil {
		return tableapi.Table{}, err
	}
	faker := gofakeit.New(cfg.Seed)
	t := tableapi.Empty(RawSchema())
	ids := make(map[int]struct{}, cfg.Patients)
	for len(ids) < cfg.Patients {
		id := faker.Number(1000, 1000+cfg.Patients*20)
		if _, dup := ids[id]; dup {
			continue
		}
		ids[id] = struct{}{}
		t.Rows = append(t.Rows, patientRows(faker, cfg, strconv.Itoa(id))...)
	}
	// Fisher-Yates so the pipeline has to sort.
	for i := len(t.Rows) - 1; i > 0; i-- {
		j := faker.Number(0, i)
		t.Rows[i], t.Rows[j] = t.Rows[j], t.Rows[i]
	}
	return t, nil
}

func patientRows(faker *gofakeit.Faker, cfg Config, id string) []tableapi.Row {
	visits := faker.Number(cfg.MinVisits, cfg.MaxVisits)
	spacing := cfg.SpanDays / visits
	first := cfg.Start.AddDate(0, 0, faker.Number(0, spacing-1))
	created := first.AddDate(0, 0, -faker.Number(0, 60)).Format(tableapi.DateLayout)

	score := faker.Float64Range(6, 22)
	trend := faker.Float64Range(-2.5, 1)
	rows := make([]tableapi.Row, 0, visits+1)
	day := first
	for v := 0; v < visits; v++ {
		at := day.Add(time.Duration(faker.Number(8*60, 18*60)) * time.Minute)
		rows = append(rows, reading(id, at, score, created))
		if faker.Float64Range(0, 1) < cfg.RepeatRate {
			again := at.Add(time.Duration(faker.Number(5, 90)) * time.Minute)
			rows = append(rows, reading(id, again, score+faker.Float64Range(-2, 2), created))
		}
		score += trend + faker.Float64Range(-2, 2)
		day = day.AddDate(0, 0, faker.Number(1, spacing))
	}
	return rows
}

func reading(id string, at time.Time, score float64, created string) tableapi.Row {
	s := int(math.Round(math.Max(0, math.Min(MaxScore, score))))
	return tableapi.Row{
		pipeline.ColPatientID:      id,
		pipeline.ColDate:           at.Format("2006-01-02 15:04:05"),
		pipeline.ColScore:          strconv.Itoa(s),
		pipeline.ColPatientCreated: created,
	}
}
