package viz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"malariawatch/internal/metrics"
	"malariawatch/pkg/contracts/domain"
)

func square(lon, lat float64) *geom.Polygon {
	p := geom.NewPolygon(geom.XY)
	p.MustSetCoords([][]geom.Coord{{
		{lon, lat}, {lon + 0.1, lat}, {lon + 0.1, lat + 0.1}, {lon, lat + 0.1}, {lon, lat},
	}})
	return p
}

func vizDataset() *domain.Dataset {
	ds := &domain.Dataset{
		Level: domain.LevelDistrict,
		Units: []domain.AdministrativeUnit{
			{Key: "Gasabo", Name: "Gasabo", DisplayName: "Gasabo", Province: "Kigali City", Geometry: square(30.0, -1.9)},
			{Key: "Nyagatare", Name: "Nyagatare", DisplayName: "Nyagatare", Province: "Eastern", Geometry: square(30.3, -1.4)},
			{Key: "Rubavu", Name: "Rubavu", DisplayName: "Rubavu", Province: "Western"},
		},
		Observations: []domain.Observation{
			{UnitKey: "Gasabo", Year: 2023, Month: time.January, Population: 500000, Values: map[string]float64{
				domain.MetricAllCases: 1000, domain.MetricSevereCases: 12, domain.MetricAllCasesIncidence: 2.0,
			}},
			{UnitKey: "Nyagatare", Year: 2023, Month: time.January, Population: 450000, Values: map[string]float64{
				domain.MetricAllCases: 1500, domain.MetricSevereCases: 25, domain.MetricAllCasesIncidence: 3.33,
			}},
			{UnitKey: "Rubavu", Year: 2023, Month: time.January, Population: 400000, Values: map[string]float64{
				domain.MetricAllCases: 700, domain.MetricSevereCases: 8, domain.MetricAllCasesIncidence: 1.75,
			}},
			{UnitKey: "Gasabo", Year: 2023, Month: time.February, Population: 500000, Values: map[string]float64{
				domain.MetricAllCases: 900, domain.MetricSevereCases: 9, domain.MetricAllCasesIncidence: 1.8,
			}},
		},
	}
	ds.BuildIndex()
	return ds
}

func vizMetric(t *testing.T, id string) domain.Metric {
	t.Helper()
	m, ok := domain.LookupMetric(domain.LevelDistrict, id)
	require.True(t, ok)
	return m
}

func TestChoroplethSpec(t *testing.T) {
	calc := metrics.NewCalculator(vizDataset())
	r := NewMapRenderer(calc)

	spec, err := r.Choropleth(2023, time.January, vizMetric(t, domain.MetricAllCases))
	require.NoError(t, err)

	assert.Equal(t, -1.9, spec.CenterLat)
	assert.Equal(t, 29.9, spec.CenterLon)
	assert.Equal(t, 6.8, spec.Zoom)
	assert.Equal(t, "carto-darkmatter", spec.Style)
	assert.Equal(t, PinkPurpleScale, spec.ColorScale)

	// Global range across every period, not just January.
	assert.Equal(t, 700.0, spec.RangeMin)
	assert.Equal(t, 1500.0, spec.RangeMax)

	// Rubavu has no geometry and is excluded from the map.
	require.Len(t, spec.Features, 2)
	for _, f := range spec.Features {
		assert.NotEqual(t, "Rubavu", f.UnitKey)
		assert.NotEmpty(t, f.Geometry)
		require.NotNil(t, f.Value)
	}
}

func TestChoroplethKeepsUnitsWithoutData(t *testing.T) {
	calc := metrics.NewCalculator(vizDataset())
	r := NewMapRenderer(calc)

	// Only Gasabo reports in February; Nyagatare stays on the map with a
	// nil value.
	spec, err := r.Choropleth(2023, time.February, vizMetric(t, domain.MetricAllCases))
	require.NoError(t, err)
	require.Len(t, spec.Features, 2)

	byKey := make(map[string]MapFeature)
	for _, f := range spec.Features {
		byKey[f.UnitKey] = f
	}
	require.NotNil(t, byKey["Gasabo"].Value)
	assert.Equal(t, 900.0, *byKey["Gasabo"].Value)
	assert.Nil(t, byKey["Nyagatare"].Value)
}

func TestTrendSpec(t *testing.T) {
	calc := metrics.NewCalculator(vizDataset())
	r := NewChartRenderer(calc)

	spec, err := r.Trend(vizMetric(t, domain.MetricAllCases), []string{"Gasabo", "Nyagatare"})
	require.NoError(t, err)

	assert.Equal(t, "All Cases Trends Over Time", spec.Title)
	require.Len(t, spec.Series, 2)

	// Colors follow selection order.
	assert.Equal(t, HarmonizedColors[0], spec.Series[0].Color)
	assert.Equal(t, HarmonizedColors[1], spec.Series[1].Color)

	// Gasabo has two months, sorted ascending.
	gasabo := spec.Series[0]
	require.Len(t, gasabo.Points, 2)
	assert.True(t, gasabo.Points[0].Date.Before(gasabo.Points[1].Date))
}

func TestTrendRequiresUnits(t *testing.T) {
	calc := metrics.NewCalculator(vizDataset())
	r := NewChartRenderer(calc)

	_, err := r.Trend(vizMetric(t, domain.MetricAllCases), nil)
	require.Error(t, err)
}

func TestScatterSpec(t *testing.T) {
	calc := metrics.NewCalculator(vizDataset())
	r := NewChartRenderer(calc)

	spec, err := r.Scatter(2023, time.January, metrics.QuadrantPolicy{Kind: metrics.PolicyPercentile, Percentile: 75})
	require.NoError(t, err)

	require.Len(t, spec.Points, 3)
	assert.Equal(t, 0.0, spec.XLower)

	// Axis padding keeps both the extreme point and the threshold visible.
	// X: the 75th percentile of [700, 1000, 1500] is 1250 and 1250*1.5
	// exceeds 1500*1.2. Y: 25*1.2 wins over 18.5*1.5.
	assert.InDelta(t, 1875.0, spec.XUpper, 1e-9)
	assert.InDelta(t, 30.0, spec.YUpper, 1e-9)

	// Nyagatare tops both axes, so there is a single star highlight.
	require.Len(t, spec.Highlights, 1)
	assert.Equal(t, "star", spec.Highlights[0].Symbol)
	assert.Equal(t, "Nyagatare", spec.Highlights[0].UnitKey)

	for _, p := range spec.Points {
		assert.NotEmpty(t, p.Quadrant)
		assert.Equal(t, ProvinceColor(p.Province), p.Color)
	}
}

func TestScatterTwoHighlights(t *testing.T) {
	ds := vizDataset()
	// Make Gasabo the severity maximum while Nyagatare keeps the case
	// maximum.
	ds.Observations[0].Values[domain.MetricSevereCases] = 40

	r := NewChartRenderer(metrics.NewCalculator(ds))
	spec, err := r.Scatter(2023, time.January, metrics.QuadrantPolicy{Kind: metrics.PolicyMedian})
	require.NoError(t, err)

	require.Len(t, spec.Highlights, 2)
	assert.Equal(t, "star", spec.Highlights[0].Symbol)
	assert.Equal(t, "Nyagatare", spec.Highlights[0].UnitKey)
	assert.Equal(t, "triangle-up", spec.Highlights[1].Symbol)
	assert.Equal(t, "Gasabo", spec.Highlights[1].UnitKey)
}

func TestTopUnitsSpec(t *testing.T) {
	calc := metrics.NewCalculator(vizDataset())
	r := NewChartRenderer(calc)

	spec, err := r.TopUnits(2023, time.January, vizMetric(t, domain.MetricAllCases), 2)
	require.NoError(t, err)

	require.Len(t, spec.Bars, 2)
	assert.Equal(t, "Nyagatare", spec.Bars[0].UnitKey)
	assert.Equal(t, "Gasabo", spec.Bars[1].UnitKey)

	// Color range spans the whole year so bar colors stay steady across
	// month changes.
	assert.Equal(t, 700.0, spec.RangeMin)
	assert.Equal(t, 1500.0, spec.RangeMax)
	assert.Contains(t, spec.Title, "Top 2 Districts")
}

func TestProvinceColorAliases(t *testing.T) {
	assert.Equal(t, ProvinceColors["Western"], ProvinceColor("Western Province"))
	assert.Equal(t, DefaultProvinceColor, ProvinceColor("Unknown"))
	assert.Equal(t, "Western Province", canonicalProvince("Iburengerazuba"))
}
