package metrics

import (
	"fmt"
	"sort"
	"time"

	"malariawatch/pkg/contracts/domain"
)

// Calculator derives dashboard figures from one level's dataset. It holds
// the dataset read-only and is safe for concurrent use.
type Calculator struct {
	ds *domain.Dataset
}

// NewCalculator creates a calculator over a loaded dataset.
func NewCalculator(ds *domain.Dataset) *Calculator {
	return &Calculator{ds: ds}
}

// Dataset exposes the underlying dataset.
func (c *Calculator) Dataset() *domain.Dataset {
	return c.ds
}

// metricValue reads a metric from an observation. A rate is null when the
// population is zero or missing, no matter what the source column says.
func metricValue(o domain.Observation, metric domain.Metric) (float64, bool) {
	if metric.Kind == domain.MetricRate && o.Population <= 0 {
		return 0, false
	}
	return o.Value(metric.ID)
}

// UnitValues returns one entry per administrative unit for a single period.
// Units without an observation that month carry a nil value.
func (c *Calculator) UnitValues(year int, month time.Month, metric domain.Metric) []UnitValue {
	byUnit := make(map[string]domain.Observation)
	for _, o := range c.ds.Observations {
		if o.Year == year && o.Month == month {
			byUnit[o.UnitKey] = o
		}
	}

	values := make([]UnitValue, 0, len(c.ds.Units))
	for _, u := range c.ds.Units {
		uv := UnitValue{
			UnitKey:     u.Key,
			Name:        u.Name,
			DisplayName: u.DisplayName,
			District:    u.District,
			Province:    u.Province,
		}
		if o, ok := byUnit[u.Key]; ok {
			uv.Population = o.Population
			if v, ok := metricValue(o, metric); ok {
				uv.Value = &v
			}
		}
		values = append(values, uv)
	}

	sort.Slice(values, func(i, j int) bool { return values[i].DisplayName < values[j].DisplayName })
	return values
}

// Series returns the monthly time series of a metric for the given unit
// keys, ordered by date then unit. Unknown unit keys yield an error.
func (c *Calculator) Series(metric domain.Metric, unitKeys []string) ([]SeriesPoint, error) {
	selected := make(map[string]string, len(unitKeys))
	for _, key := range unitKeys {
		u, ok := c.ds.Unit(key)
		if !ok {
			return nil, fmt.Errorf("administrative unit %q not found", key)
		}
		selected[key] = u.DisplayName
	}

	var points []SeriesPoint
	for _, o := range c.ds.Observations {
		displayName, ok := selected[o.UnitKey]
		if !ok {
			continue
		}
		v, ok := metricValue(o, metric)
		if !ok {
			continue
		}
		points = append(points, SeriesPoint{
			UnitKey:     o.UnitKey,
			DisplayName: displayName,
			Date:        o.Date(),
			Value:       v,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		if !points[i].Date.Equal(points[j].Date) {
			return points[i].Date.Before(points[j].Date)
		}
		return points[i].UnitKey < points[j].UnitKey
	})
	return points, nil
}

// Summary computes the year's headline figures for a metric. Count metrics
// total by sum and normalize against summed population; rate metrics report
// the mean of per-unit rates and total the companion case count.
func (c *Calculator) Summary(year int, metric domain.Metric, previousYear int) (Summary, error) {
	total, overall, ok := c.yearFigures(year, metric)
	if !ok {
		return Summary{}, fmt.Errorf("no observations for year %d", year)
	}

	s := Summary{
		Year:             year,
		MetricID:         metric.ID,
		TotalCases:       total,
		OverallIncidence: overall,
	}

	if previousYear != 0 {
		if _, prevOverall, ok := c.yearFigures(previousYear, metric); ok && prevOverall > 0 {
			change := (overall - prevOverall) / prevOverall * 100
			s.ChangePercent = &change
		}
	}

	return s, nil
}

// yearFigures computes (total cases, overall incidence) for one year.
func (c *Calculator) yearFigures(year int, metric domain.Metric) (total, overall float64, ok bool) {
	var (
		sumMetric    float64
		sumCompanion float64
		sumPop       float64
		count        int
		valueCount   int
	)
	companion := companionCountMetric(metric)

	for _, o := range c.ds.Observations {
		if o.Year != year {
			continue
		}
		count++
		sumPop += o.Population
		if v, has := metricValue(o, metric); has {
			sumMetric += v
			valueCount++
		}
		if companion != "" {
			if v, has := o.Value(companion); has {
				sumCompanion += v
			}
		}
	}
	if count == 0 {
		return 0, 0, false
	}

	if metric.Kind == domain.MetricCount {
		overall = 0
		if r := domain.Incidence(sumMetric, sumPop); r != nil {
			overall = *r
		}
		return sumMetric, overall, true
	}

	// Rate metrics average the per-row rates; rows without a usable rate
	// stay out of the mean.
	if valueCount == 0 {
		return sumCompanion, 0, true
	}
	return sumCompanion, sumMetric / float64(valueCount), true
}

// companionCountMetric names the raw count behind a rate metric, used to
// report total cases alongside a mean incidence.
func companionCountMetric(metric domain.Metric) string {
	if metric.Kind != domain.MetricRate {
		return ""
	}
	switch metric.ID {
	case domain.MetricAllCasesIncidence:
		return domain.MetricAllCases
	case domain.MetricIncidence:
		return domain.MetricSimpleCases
	}
	return ""
}

// YearAggregates returns each unit's aggregate for one year: counts sum,
// rates average. Units with no observations that year are omitted.
func (c *Calculator) YearAggregates(year int, metric domain.Metric) []UnitValue {
	type acc struct {
		sum   float64
		count int
		pop   float64
	}
	byUnit := make(map[string]*acc)
	for _, o := range c.ds.Observations {
		if o.Year != year {
			continue
		}
		v, has := metricValue(o, metric)
		if !has {
			continue
		}
		a := byUnit[o.UnitKey]
		if a == nil {
			a = &acc{}
			byUnit[o.UnitKey] = a
		}
		a.sum += v
		a.count++
		a.pop += o.Population
	}

	values := make([]UnitValue, 0, len(byUnit))
	for key, a := range byUnit {
		u, ok := c.ds.Unit(key)
		if !ok {
			continue
		}
		v := a.sum
		if metric.Kind == domain.MetricRate {
			v = a.sum / float64(a.count)
		}
		val := v
		values = append(values, UnitValue{
			UnitKey:     u.Key,
			Name:        u.Name,
			DisplayName: u.DisplayName,
			District:    u.District,
			Province:    u.Province,
			Population:  a.pop / float64(a.count),
			Value:       &val,
		})
	}

	sort.Slice(values, func(i, j int) bool { return values[i].DisplayName < values[j].DisplayName })
	return values
}

// TopUnits ranks units for one period by metric value, highest first,
// truncated to n. Units without data are excluded from the ranking.
func (c *Calculator) TopUnits(year int, month time.Month, metric domain.Metric, n int) []UnitValue {
	values := c.UnitValues(year, month, metric)

	ranked := values[:0:0]
	for _, v := range values {
		if v.Value != nil {
			ranked = append(ranked, v)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return *ranked[i].Value > *ranked[j].Value })

	if n <= 0 {
		n = 10
	}
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// ColorRange returns the metric's global minimum and maximum across every
// period, keeping choropleth colors comparable over time.
func (c *Calculator) ColorRange(metric domain.Metric) (ColorRange, bool) {
	return c.rangeWhere(metric, func(domain.Observation) bool { return true })
}

// YearColorRange returns the metric's span within one year, used by the
// ranking chart's color bar.
func (c *Calculator) YearColorRange(year int, metric domain.Metric) (ColorRange, bool) {
	return c.rangeWhere(metric, func(o domain.Observation) bool { return o.Year == year })
}

func (c *Calculator) rangeWhere(metric domain.Metric, keep func(domain.Observation) bool) (ColorRange, bool) {
	var (
		r     ColorRange
		found bool
	)
	for _, o := range c.ds.Observations {
		if !keep(o) {
			continue
		}
		v, ok := metricValue(o, metric)
		if !ok {
			continue
		}
		if !found {
			r = ColorRange{Min: v, Max: v}
			found = true
			continue
		}
		if v < r.Min {
			r.Min = v
		}
		if v > r.Max {
			r.Max = v
		}
	}
	return r, found
}
