package viz

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"

	"malariawatch/internal/metrics"
	"malariawatch/pkg/contracts/domain"
)

// MapSpec is the full choropleth description a client needs to draw the
// map: framing, color scale, and one feature per unit with a boundary.
type MapSpec struct {
	Title         string      `json:"title"`
	ColorbarTitle string      `json:"colorbar_title"`
	Style         string      `json:"style"`
	CenterLat     float64     `json:"center_lat"`
	CenterLon     float64     `json:"center_lon"`
	Zoom          float64     `json:"zoom"`
	ColorScale    []ColorStop `json:"color_scale"`

	// RangeMin and RangeMax span the metric's global extremes so colors
	// compare across periods.
	RangeMin float64 `json:"range_min"`
	RangeMax float64 `json:"range_max"`

	NoDataColor string `json:"no_data_color"`
	Layout      Layout `json:"layout"`

	Features []MapFeature `json:"features"`
}

// MapFeature is one administrative unit on the map.
type MapFeature struct {
	UnitKey     string          `json:"unit_key"`
	DisplayName string          `json:"display_name"`
	District    string          `json:"district,omitempty"`
	Province    string          `json:"province,omitempty"`
	Population  float64         `json:"population"`
	Value       *float64        `json:"value"`
	Geometry    json.RawMessage `json:"geometry"`
}

// MapRenderer builds choropleth specs from a level's calculator.
type MapRenderer struct {
	calc *metrics.Calculator
}

// NewMapRenderer creates a map renderer.
func NewMapRenderer(calc *metrics.Calculator) *MapRenderer {
	return &MapRenderer{calc: calc}
}

// Choropleth renders the map spec for one period. Every unit with a
// boundary appears; units without data that month keep a nil value and are
// painted with the no-data color.
func (r *MapRenderer) Choropleth(year int, month time.Month, metric domain.Metric) (*MapSpec, error) {
	ds := r.calc.Dataset()

	colorRange, ok := r.calc.ColorRange(metric)
	if !ok {
		return nil, fmt.Errorf("no observations carry metric %s", metric.ID)
	}

	values := r.calc.UnitValues(year, month, metric)
	byKey := make(map[string]metrics.UnitValue, len(values))
	for _, v := range values {
		byKey[v.UnitKey] = v
	}

	features := make([]MapFeature, 0, len(ds.Units))
	for _, u := range ds.Units {
		if !u.HasGeometry() {
			continue
		}
		geometry, err := geojson.Marshal(u.Geometry)
		if err != nil {
			return nil, fmt.Errorf("encode geometry for %s: %w", u.Key, err)
		}
		f := MapFeature{
			UnitKey:     u.Key,
			DisplayName: u.DisplayName,
			District:    u.District,
			Province:    u.Province,
			Geometry:    geometry,
		}
		if v, ok := byKey[u.Key]; ok {
			f.Population = v.Population
			f.Value = v.Value
		}
		features = append(features, f)
	}

	title, colorbarTitle := mapTitles(ds.Level, year, month, metric)

	return &MapSpec{
		Title:         title,
		ColorbarTitle: colorbarTitle,
		Style:         MapStyle,
		CenterLat:     MapCenterLat,
		CenterLon:     MapCenterLon,
		Zoom:          MapZoom,
		ColorScale:    PinkPurpleScale,
		RangeMin:      colorRange.Min,
		RangeMax:      colorRange.Max,
		NoDataColor:   NoDataColor,
		Layout:        DarkLayout(520, 16),
		Features:      features,
	}, nil
}

func mapTitles(level domain.Level, year int, month time.Month, metric domain.Metric) (title, colorbar string) {
	period := fmt.Sprintf("%s %d", monthShort(month), year)

	if level == domain.LevelSector {
		switch metric.ID {
		case domain.MetricSimpleCases:
			return fmt.Sprintf("Simple Malaria Cases Distribution (%s)", period), metric.Label
		case domain.MetricIncidence:
			return fmt.Sprintf("Simple Malaria Incidence (%s)", period), metric.Label
		}
		return fmt.Sprintf("Sector Analysis (%s)", period), metric.Label
	}

	switch metric.ID {
	case domain.MetricAllCases:
		return fmt.Sprintf("All Malaria Cases by District (%s)", period), metric.Label
	case domain.MetricSevereCases:
		return fmt.Sprintf("Severe Cases & Deaths by District (%s)", period), metric.Label
	case domain.MetricAllCasesIncidence:
		return fmt.Sprintf("All Cases Incidence by District (%s)", period), metric.Label
	}
	return fmt.Sprintf("District Analysis (%s)", period), metric.Label
}
