package viz

import (
	"fmt"
	"time"

	"malariawatch/internal/metrics"
	"malariawatch/pkg/contracts/domain"
)

// TrendSpec describes the monthly trend line chart for selected units.
type TrendSpec struct {
	Title  string `json:"title"`
	YTitle string `json:"y_title"`
	XTitle string `json:"x_title"`
	Layout Layout `json:"layout"`

	Series []TrendSeries `json:"series"`
}

// TrendSeries is one unit's line.
type TrendSeries struct {
	UnitKey     string       `json:"unit_key"`
	DisplayName string       `json:"display_name"`
	Color       string       `json:"color"`
	Points      []TrendPoint `json:"points"`
}

// TrendPoint is one month on a trend line.
type TrendPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ScatterSpec describes the quadrant scatter for one period.
type ScatterSpec struct {
	Title  string `json:"title"`
	XTitle string `json:"x_title"`
	YTitle string `json:"y_title"`
	Layout Layout `json:"layout"`

	XThreshold float64 `json:"x_threshold"`
	YThreshold float64 `json:"y_threshold"`
	XLower     float64 `json:"x_lower"`
	XUpper     float64 `json:"x_upper"`
	YUpper     float64 `json:"y_upper"`

	QuadrantLabels []QuadrantLabel `json:"quadrant_labels"`
	Points         []ScatterPoint  `json:"points"`
	Highlights     []Highlight     `json:"highlights"`
	Counts         map[string]int  `json:"counts"`
}

// ScatterPoint is one unit positioned on the scatter.
type ScatterPoint struct {
	UnitKey     string  `json:"unit_key"`
	DisplayName string  `json:"display_name"`
	District    string  `json:"district,omitempty"`
	Province    string  `json:"province,omitempty"`
	Color       string  `json:"color"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Quadrant    string  `json:"quadrant"`
}

// Highlight marks the maximum unit on an axis with a distinct symbol.
type Highlight struct {
	UnitKey     string  `json:"unit_key"`
	DisplayName string  `json:"display_name"`
	Symbol      string  `json:"symbol"` // "star" or "triangle-up"
	Label       string  `json:"label"`
	Color       string  `json:"color"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// QuadrantLabel annotates one quadrant region.
type QuadrantLabel struct {
	Quadrant string `json:"quadrant"`
	Text     string `json:"text"`
}

// TopChartSpec describes the horizontal ranking bar chart.
type TopChartSpec struct {
	Title      string      `json:"title"`
	ValueTitle string      `json:"value_title"`
	Layout     Layout      `json:"layout"`
	ColorScale []ColorStop `json:"color_scale"`

	// RangeMin and RangeMax span the selected year, not just the month,
	// keeping bar colors steady as the user steps through months.
	RangeMin float64 `json:"range_min"`
	RangeMax float64 `json:"range_max"`

	// Bars are ordered highest value first.
	Bars []Bar `json:"bars"`
}

// Bar is one ranked unit.
type Bar struct {
	UnitKey     string  `json:"unit_key"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Population  float64 `json:"population"`
	Value       float64 `json:"value"`
}

// ChartRenderer builds chart specs from a level's calculator.
type ChartRenderer struct {
	calc *metrics.Calculator
}

// NewChartRenderer creates a chart renderer.
func NewChartRenderer(calc *metrics.Calculator) *ChartRenderer {
	return &ChartRenderer{calc: calc}
}

// Trend renders the monthly trend chart for the given unit keys. Colors
// follow the selection order so a unit keeps its color while the user
// adjusts other controls.
func (r *ChartRenderer) Trend(metric domain.Metric, unitKeys []string) (*TrendSpec, error) {
	if len(unitKeys) == 0 {
		return nil, fmt.Errorf("no units selected")
	}

	points, err := r.calc.Series(metric, unitKeys)
	if err != nil {
		return nil, err
	}

	series := make([]TrendSeries, 0, len(unitKeys))
	index := make(map[string]int, len(unitKeys))
	for i, key := range unitKeys {
		u, _ := r.calc.Dataset().Unit(key)
		index[key] = i
		series = append(series, TrendSeries{
			UnitKey:     key,
			DisplayName: u.DisplayName,
			Color:       TrendColor(i),
		})
	}

	for _, p := range points {
		i := index[p.UnitKey]
		series[i].Points = append(series[i].Points, TrendPoint{Date: p.Date, Value: p.Value})
	}

	return &TrendSpec{
		Title:  fmt.Sprintf("%s Trends Over Time", metric.Label),
		YTitle: metric.Label,
		XTitle: "Time Period",
		Layout: DarkLayout(450, 16),
		Series: series,
	}, nil
}

// Scatter renders the quadrant scatter for one period.
func (r *ChartRenderer) Scatter(year int, month time.Month, policy metrics.QuadrantPolicy) (*ScatterSpec, error) {
	result, err := r.calc.Quadrants(year, month, policy)
	if err != nil {
		return nil, err
	}

	level := r.calc.Dataset().Level

	var maxX, maxY float64
	points := make([]ScatterPoint, 0, len(result.Points))
	for _, p := range result.Points {
		province := canonicalProvince(p.Province)
		points = append(points, ScatterPoint{
			UnitKey:     p.UnitKey,
			DisplayName: p.DisplayName,
			District:    p.District,
			Province:    province,
			Color:       ProvinceColor(province),
			X:           p.X,
			Y:           p.Y,
			Quadrant:    p.Quadrant,
		})
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	xLower := 0.0
	if level == domain.LevelSector {
		xLower = -100
	}

	spec := &ScatterSpec{
		Title:          scatterTitle(level, year, month),
		XTitle:         scatterAxisTitle(level, true),
		YTitle:         scatterAxisTitle(level, false),
		Layout:         DarkLayout(450, 16),
		XThreshold:     result.CutoffX,
		YThreshold:     result.CutoffY,
		XLower:         xLower,
		XUpper:         axisUpper(maxX, result.CutoffX),
		YUpper:         axisUpper(maxY, result.CutoffY),
		QuadrantLabels: quadrantLabels(level),
		Points:         points,
		Counts:         result.Counts,
	}
	spec.Highlights = highlights(level, points)
	return spec, nil
}

// TopUnits renders the ranking bar chart for one period.
func (r *ChartRenderer) TopUnits(year int, month time.Month, metric domain.Metric, n int) (*TopChartSpec, error) {
	if n <= 0 {
		n = 10
	}
	ranked := r.calc.TopUnits(year, month, metric, n)
	if len(ranked) == 0 {
		return nil, fmt.Errorf("no observations for %s %d", month, year)
	}

	yearRange, _ := r.calc.YearColorRange(year, metric)

	bars := make([]Bar, 0, len(ranked))
	for _, v := range ranked {
		bars = append(bars, Bar{
			UnitKey:     v.UnitKey,
			Name:        v.Name,
			DisplayName: v.DisplayName,
			Population:  v.Population,
			Value:       *v.Value,
		})
	}

	level := r.calc.Dataset().Level
	title := fmt.Sprintf("Top %d %s: %s (%s %d)",
		n, entityLabel(level, true), metric.Label, monthShort(month), year)

	return &TopChartSpec{
		Title:      title,
		ValueTitle: metric.Label,
		Layout:     DarkLayout(520, 14),
		ColorScale: PinkPurpleScale,
		RangeMin:   yearRange.Min,
		RangeMax:   yearRange.Max,
		Bars:       bars,
	}, nil
}

// axisUpper pads an axis so the threshold lines and extreme points both
// stay inside the frame.
func axisUpper(maxValue, threshold float64) float64 {
	upper := maxValue * 1.2
	if t := threshold * 1.5; t > upper {
		upper = t
	}
	return upper
}

func scatterTitle(level domain.Level, year int, month time.Month) string {
	period := fmt.Sprintf("%s %d", monthShort(month), year)
	if level == domain.LevelSector {
		return fmt.Sprintf("Sector Performance: Population vs Incidence (%s)", period)
	}
	return fmt.Sprintf("District Performance: Total vs Severe Cases (%s)", period)
}

func scatterAxisTitle(level domain.Level, xAxis bool) string {
	if level == domain.LevelSector {
		if xAxis {
			return "Population"
		}
		return "Incidence (per 1,000 people)"
	}
	if xAxis {
		return "Total Malaria Cases"
	}
	return "Severe Cases & Deaths"
}

func quadrantLabels(level domain.Level) []QuadrantLabel {
	if level == domain.LevelSector {
		return []QuadrantLabel{
			{Quadrant: metrics.QuadrantLowLow, Text: "Low Pop / Low Incidence"},
			{Quadrant: metrics.QuadrantHighLow, Text: "High Pop / Low Incidence"},
			{Quadrant: metrics.QuadrantLowHigh, Text: "Low Pop / High Incidence"},
			{Quadrant: metrics.QuadrantHighHigh, Text: "High Pop / High Incidence"},
		}
	}
	return []QuadrantLabel{
		{Quadrant: metrics.QuadrantLowLow, Text: "Low Cases / Low Severity"},
		{Quadrant: metrics.QuadrantHighLow, Text: "High Cases / Low Severity"},
		{Quadrant: metrics.QuadrantLowHigh, Text: "Low Cases / High Severity"},
		{Quadrant: metrics.QuadrantHighHigh, Text: "High Cases / High Severity"},
	}
}

// highlights marks the maximum unit on each axis: a star for the x-axis
// maximum and, when a different unit, a triangle for the y-axis maximum.
func highlights(level domain.Level, points []ScatterPoint) []Highlight {
	if len(points) == 0 {
		return nil
	}

	maxX, maxY := points[0], points[0]
	for _, p := range points[1:] {
		if p.X > maxX.X {
			maxX = p
		}
		if p.Y > maxY.Y {
			maxY = p
		}
	}

	starLabel, triangleLabel := "Highest Total", "Highest Severe"
	if level == domain.LevelSector {
		starLabel, triangleLabel = "Highest Population", "Highest Incidence"
	}

	hs := []Highlight{{
		UnitKey:     maxX.UnitKey,
		DisplayName: maxX.DisplayName,
		Symbol:      "star",
		Label:       starLabel,
		Color:       maxX.Color,
		X:           maxX.X,
		Y:           maxX.Y,
	}}
	if maxY.UnitKey != maxX.UnitKey {
		hs = append(hs, Highlight{
			UnitKey:     maxY.UnitKey,
			DisplayName: maxY.DisplayName,
			Symbol:      "triangle-up",
			Label:       triangleLabel,
			Color:       maxY.Color,
			X:           maxY.X,
			Y:           maxY.Y,
		})
	}
	return hs
}
