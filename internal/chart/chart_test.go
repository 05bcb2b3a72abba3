package chart

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"math"
	"testing"
	"time"

	"scoretrack/internal/blob"
	"scoretrack/internal/patient"
)

func history() (patient.History, patient.Summary) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	h := patient.History{PatientID: "7", Visits: []patient.Visit{
		{Date: day(1), NumVisit: 1, Score: 15},
		{Date: day(8), NumVisit: 2, Score: 12},
		{Date: day(15), NumVisit: 3, Score: 8},
	}}
	s, err := patient.Summarize(h)
	if err != nil {
		panic(err)
	}
	return h, s
}

func TestRenderDrawsShadedBand(t *testing.T) {
	h, s := history()
	r := DefaultRenderer()
	payload, err := r.Render(h, s)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 400 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
	area := r.area(h)
	x := area.rect.Min.X + 6
	red, green, _, _ := img.At(x, area.py(20)).RGBA()
	if red == green {
		t.Fatalf("expected shaded pixel inside the band")
	}
	red, green, blue, _ := img.At(x, area.py(5)).RGBA()
	if red != 0xffff || green != 0xffff || blue != 0xffff {
		t.Fatalf("expected white below the threshold")
	}
}

func TestRenderPlotsAgainstDate(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	h := patient.History{PatientID: "9", Visits: []patient.Visit{
		{Date: day(1), NumVisit: 1, Score: 15},
		{Date: day(2), NumVisit: 2, Score: 12},
		{Date: day(15), NumVisit: 3, Score: 8},
	}}
	s, err := patient.Summarize(h)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	r := DefaultRenderer()
	payload, err := r.Render(h, s)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	area := r.area(h)
	if area.px(dayNumber(day(1))) != area.rect.Min.X || area.px(dayNumber(day(15))) != area.rect.Max.X {
		t.Fatalf("x range must span the first to the last visit date")
	}
	isLine := func(x, y int) bool {
		cr, cg, cb, _ := img.At(x, y).RGBA()
		return cr>>8 == 0 && cg>>8 == 102 && cb>>8 == 204
	}
	// the second visit sits one day after the first, not halfway along the axis
	x2 := area.px(dayNumber(day(2)))
	if x2-area.rect.Min.X > area.rect.Dx()/10 {
		t.Fatalf("second visit drawn at x=%d, too far right for a one-day gap", x2)
	}
	if !isLine(x2, area.py(12)) {
		t.Fatalf("expected a marker at the second visit's date")
	}
	if isLine((area.rect.Min.X+area.rect.Max.X)/2, area.py(12)) {
		t.Fatalf("marker drawn at the visit-number position")
	}
}

func TestDateTicks(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		first, last time.Time
		n           int
		want        []time.Time
	}{
		{day(1), day(15), 3, []time.Time{day(1), day(8), day(15)}},
		{day(1), day(3), 10, []time.Time{day(1), day(2), day(3)}},
		{day(4), day(4), 5, []time.Time{day(4)}},
		{day(1), day(30), 1, []time.Time{day(1)}},
	}
	for _, c := range cases {
		got := DateTicks(c.first, c.last, c.n)
		if len(got) != len(c.want) {
			t.Fatalf("DateTicks(%v, %v, %d) = %v", c.first, c.last, c.n, got)
		}
		for i := range got {
			if !got[i].Equal(c.want[i]) {
				t.Fatalf("tick %d = %v want %v", i, got[i], c.want[i])
			}
		}
	}
}

func TestAnnotations(t *testing.T) {
	_, s := history()
	got := Annotations(s)
	want := []string{"Total Delta: -7.0", "Avg Delta between Visits: -3.5", "Further Eval Req (% of visits): 66.7"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("annotation %d = %q want %q", i, got[i], want[i])
		}
	}
	single := patient.Summary{AvgDelta: math.NaN(), PctFurtherEval: 0}
	if Annotations(single)[1] != "Avg Delta between Visits: NaN" {
		t.Fatalf("undefined average should render as NaN")
	}
}

func TestRenderErrors(t *testing.T) {
	if _, err := DefaultRenderer().Render(patient.History{PatientID: "x"}, patient.Summary{}); !errors.Is(err, ErrNoVisits) {
		t.Fatalf("expected ErrNoVisits, got %v", err)
	}
	h, s := history()
	if _, err := (Renderer{Width: 10, Height: 10}).Render(h, s); err == nil {
		t.Fatalf("expected canvas error")
	}
}

func TestPlotterStoresAndReplaces(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	var stored []string
	p := NewPlotter(store, WithStoredHook(func(info blob.Info) { stored = append(stored, info.Key) }))
	h, s := history()
	if err := p.Plot(ctx, h, s); err != nil {
		t.Fatalf("plot: %v", err)
	}
	if err := p.Plot(ctx, h, s); err != nil {
		t.Fatalf("second plot must replace the chart: %v", err)
	}
	info, err := store.Head(ctx, "images/7.png")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.ContentType != "image/png" || info.Metadata["visits"] != "3" {
		t.Fatalf("unexpected info %+v", info)
	}
	if len(stored) != 2 || stored[0] != Key("7") {
		t.Fatalf("hook calls %v", stored)
	}
}
