// Package chart draws per-patient progress charts and publishes them to the
// artifact store.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"scoretrack/internal/patient"
)

// ErrNoVisits is returned when a history has nothing to draw.
var ErrNoVisits = errors.New("chart: history has no visits")

// Renderer rasterises a score history as a line chart over visit date.
type Renderer struct {
	Width, Height int
	// Threshold is drawn as a dashed line; the band from Threshold up to
	// ShadeTop is shaded as the further-evaluation region.
	Threshold float64
	ShadeTop  float64
}

// DefaultRenderer matches the clinical cutoff of 10 with a shaded band to 22.
func DefaultRenderer() Renderer {
	return Renderer{Width: 640, Height: 400, Threshold: patient.ClinicalCutoff, ShadeTop: 22}
}

var (
	colBackground = color.White
	colAxis       = color.Black
	colLine       = color.RGBA{0, 102, 204, 255}
	colThreshold  = color.RGBA{200, 30, 30, 255}
	colShade      = color.NRGBA{255, 99, 71, 60}
)

const (
	marginLeft   = 44
	marginRight  = 20
	marginTop    = 30
	marginBottom = 110
	// tickWidth is the horizontal room reserved for one date label.
	tickWidth = 84
)

// plotArea maps data coordinates onto the pixel rectangle of the plot.
type plotArea struct {
	rect       image.Rectangle
	xMin, xMax float64
	yMin, yMax float64
}

func (a plotArea) px(x float64) int {
	if a.xMax == a.xMin {
		return (a.rect.Min.X + a.rect.Max.X) / 2
	}
	return a.rect.Min.X + int(math.Round((x-a.xMin)/(a.xMax-a.xMin)*float64(a.rect.Dx())))
}

func (a plotArea) py(y float64) int {
	return a.rect.Max.Y - int(math.Round((y-a.yMin)/(a.yMax-a.yMin)*float64(a.rect.Dy())))
}

// Annotations returns the text lines printed under the chart.
func Annotations(s patient.Summary) []string {
	return []string{
		"Total Delta: " + patient.FormatStat(s.TotalChange),
		"Avg Delta between Visits: " + patient.FormatStat(s.AvgDelta),
		"Further Eval Req (% of visits): " + patient.FormatStat(s.PctFurtherEval),
	}
}

// Render draws h and the annotations derived from s as a PNG.
func (r Renderer) Render(h patient.History, s patient.Summary) ([]byte, error) {
	if h.Len() == 0 {
		return nil, ErrNoVisits
	}
	if r.Width < marginLeft+marginRight+10 || r.Height < marginTop+marginBottom+10 {
		return nil, fmt.Errorf("chart: canvas %dx%d too small", r.Width, r.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{colBackground}, image.Point{}, draw.Src)

	area := r.area(h)
	// shaded further-evaluation band
	band := image.Rect(area.rect.Min.X, area.py(r.ShadeTop), area.rect.Max.X, area.py(r.Threshold))
	draw.Draw(img, band.Intersect(area.rect), &image.Uniform{colShade}, image.Point{}, draw.Over)

	drawLine(img, area.rect.Min.X, area.rect.Max.Y, area.rect.Max.X, area.rect.Max.Y, colAxis, 1)
	drawLine(img, area.rect.Min.X, area.rect.Min.Y, area.rect.Min.X, area.rect.Max.Y, colAxis, 1)
	drawDashed(img, area.rect.Min.X, area.rect.Max.X, area.py(r.Threshold), colThreshold)

	for i, v := range h.Visits {
		x, y := area.px(dayNumber(v.Date)), area.py(v.Score)
		if i > 0 {
			prev := h.Visits[i-1]
			drawLine(img, area.px(dayNumber(prev.Date)), area.py(prev.Score), x, y, colLine, 2)
		}
		fillRect(img, image.Rect(x-3, y-3, x+4, y+4), colLine)
	}
	first, last := h.Visits[0].Date, h.Visits[h.Len()-1].Date
	for _, tick := range DateTicks(first, last, area.rect.Dx()/tickWidth+1) {
		x := area.px(dayNumber(tick))
		drawLine(img, x, area.rect.Max.Y, x, area.rect.Max.Y+4, colAxis, 1)
		label := tick.Format(dateLabelLayout)
		lx := min(max(x-len(label)*7/2, 0), r.Width-len(label)*7)
		drawText(img, lx, area.rect.Max.Y+16, label)
	}
	drawText(img, (area.rect.Min.X+area.rect.Max.X)/2-14, area.rect.Max.Y+32, "Date")
	for _, tick := range []float64{0, r.Threshold, r.ShadeTop} {
		drawText(img, 4, area.py(tick)+4, fmt.Sprintf("%.0f", tick))
	}

	drawText(img, marginLeft, 18, "Patient ID: "+h.PatientID)
	drawText(img, r.Width-marginRight-len(yLabel)*7, 18, yLabel)
	for i, line := range Annotations(s) {
		drawText(img, marginLeft, area.rect.Max.Y+56+i*16, line)
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const (
	dateLabelLayout = "2006-01-02"
	yLabel          = "Assessment Score"
)

// area spans the first to the last visit date and at least -0.5 to ShadeTop
// on the score axis.
func (r Renderer) area(h patient.History) plotArea {
	a := plotArea{
		rect: image.Rect(marginLeft, marginTop, r.Width-marginRight, r.Height-marginBottom),
		xMin: math.Inf(1), xMax: math.Inf(-1),
		yMin: -0.5, yMax: math.Max(r.ShadeTop, r.Threshold),
	}
	for _, v := range h.Visits {
		d := dayNumber(v.Date)
		a.xMin = math.Min(a.xMin, d)
		a.xMax = math.Max(a.xMax, d)
		a.yMin = math.Min(a.yMin, math.Floor(v.Score))
		a.yMax = math.Max(a.yMax, math.Ceil(v.Score))
	}
	return a
}

// dayNumber positions a date on the x axis in days since the Unix epoch.
func dayNumber(t time.Time) float64 {
	return float64(t.Unix()) / 86400
}

// DateTicks returns at most n calendar dates spread evenly from first to last,
// both included. A single-day range yields one tick.
func DateTicks(first, last time.Time, n int) []time.Time {
	days := int(math.Round(last.Sub(first).Hours() / 24))
	if days <= 0 || n < 2 {
		return []time.Time{first}
	}
	n = min(n, days+1)
	ticks := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		offset := int(math.Round(float64(days) * float64(i) / float64(n-1)))
		ticks = append(ticks, first.AddDate(0, 0, offset))
	}
	return ticks
}

func fillRect(img draw.Image, rect image.Rectangle, c color.Color) {
	draw.Draw(img, rect.Intersect(img.Bounds()), &image.Uniform{c}, image.Point{}, draw.Src)
}

// drawLine is a DDA line with a square pen of the given width.
func drawLine(img draw.Image, x0, y0, x1, y1 int, c color.Color, width int) {
	dx, dy := float64(x1-x0), float64(y1-y0)
	steps := int(math.Max(math.Abs(dx), math.Abs(dy)))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		x := x0 + int(math.Round(dx*float64(i)/float64(steps)))
		y := y0 + int(math.Round(dy*float64(i)/float64(steps)))
		fillRect(img, image.Rect(x, y, x+width, y+width), c)
	}
}

func drawDashed(img draw.Image, x0, x1, y int, c color.Color) {
	const on, off = 8, 5
	for x := x0; x < x1; x += on + off {
		end := x + on
		if end > x1 {
			end = x1
		}
		fillRect(img, image.Rect(x, y, end, y+2), c)
	}
}

func drawText(img draw.Image, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colAxis),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
