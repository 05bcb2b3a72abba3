package synth

import (
	"reflect"
	"testing"

	"scoretrack/internal/pipeline"
	"scoretrack/pkg/tableapi"
)

func TestGenerateDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	a, err := Generate(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := Generate(cfg)
	if !reflect.DeepEqual(a.Rows, b.Rows) {
		t.Fatalf("same seed should give the same rows")
	}
	cfg.Seed = 2
	c, _ := Generate(cfg)
	if reflect.DeepEqual(a.Rows, c.Rows) {
		t.Fatalf("different seeds should differ")
	}
}

func TestGeneratedDataCleans(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RepeatRate = 0.5
	raw, err := Generate(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	ids := map[any]struct{}{}
	for _, row := range raw.Rows {
		ids[row[pipeline.ColPatientID]] = struct{}{}
		score, err := tableapi.AsFloat(row[pipeline.ColScore])
		if err != nil || score < 0 || score > MaxScore {
			t.Fatalf("bad score %v", row[pipeline.ColScore])
		}
	}
	if len(ids) != cfg.Patients {
		t.Fatalf("expected %d patients, got %d", cfg.Patients, len(ids))
	}
	cleaned, err := pipeline.Clean(raw, pipeline.DefaultRoles(), pipeline.Options{})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if cleaned.Len() > raw.Len() || cleaned.Len() < cfg.Patients*cfg.MinVisits {
		t.Fatalf("unexpected cleaned size %d from %d raw rows", cleaned.Len(), raw.Len())
	}
	next := map[any]int{}
	for _, row := range cleaned.Rows {
		id := row[pipeline.ColPatientID]
		next[id]++
		if row[pipeline.ColNumVisit] != next[id] {
			t.Fatalf("num_visit not contiguous for %v", id)
		}
	}
}

func TestGenerateValidatesConfig(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Patients = -1 },
		func(c *Config) { c.MinVisits = 0 },
		func(c *Config) { c.MaxVisits = 0 },
		func(c *Config) { c.SpanDays = 2 },
		func(c *Config) { c.RepeatRate = 1.5 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := Generate(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	cfg := DefaultConfig()
	cfg.Patients = 0
	empty, err := Generate(cfg)
	if err != nil || empty.Len() != 0 {
		t.Fatalf("zero patients = %d rows, %v", empty.Len(), err)
	}
}
