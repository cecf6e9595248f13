package metrics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"malariawatch/pkg/contracts/domain"
)

// Quadrant policy kinds.
const (
	PolicyMedian     = "median"
	PolicyPercentile = "percentile"
	PolicyFixed      = "fixed"
)

// Quadrant labels, x-axis class first.
const (
	QuadrantLowLow   = "low-low"
	QuadrantHighLow  = "high-low"
	QuadrantLowHigh  = "low-high"
	QuadrantHighHigh = "high-high"
)

// QuadrantPolicy selects how the axis cutoffs are derived.
type QuadrantPolicy struct {
	Kind       string  `json:"kind"`
	Percentile float64 `json:"percentile,omitempty"`
	FixedX     float64 `json:"fixed_x,omitempty"`
	FixedY     float64 `json:"fixed_y,omitempty"`
}

// QuadrantPoint is one unit positioned on the two analysis axes.
type QuadrantPoint struct {
	UnitKey     string  `json:"unit_key"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	District    string  `json:"district,omitempty"`
	Province    string  `json:"province,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Quadrant    string  `json:"quadrant"`
}

// QuadrantResult is the classified scatter for one period.
type QuadrantResult struct {
	Year    int        `json:"year"`
	Month   time.Month `json:"month"`
	XMetric string     `json:"x_metric"`
	YMetric string     `json:"y_metric"`
	CutoffX float64    `json:"cutoff_x"`
	CutoffY float64    `json:"cutoff_y"`

	Points []QuadrantPoint `json:"points"`
	Counts map[string]int  `json:"counts"`
}

// quadrantAxes names the x and y measures per administrative level.
// Districts compare volume against severity; sectors compare population
// against incidence.
func quadrantAxes(level domain.Level) (x, y string) {
	if level == domain.LevelSector {
		return "population", domain.MetricIncidence
	}
	return domain.MetricAllCases, domain.MetricSevereCases
}

// Quadrants classifies every unit with data in the period into four groups
// around the policy's cutoffs. Values exactly at a cutoff classify low.
func (c *Calculator) Quadrants(year int, month time.Month, policy QuadrantPolicy) (*QuadrantResult, error) {
	xMetric, yMetric := quadrantAxes(c.ds.Level)

	var points []QuadrantPoint
	for _, o := range c.ds.Observations {
		if o.Year != year || o.Month != month {
			continue
		}
		u, ok := c.ds.Unit(o.UnitKey)
		if !ok {
			continue
		}

		var x, y float64
		if xMetric == "population" {
			x = o.Population
		} else if v, has := c.axisValue(o, xMetric); has {
			x = v
		} else {
			continue
		}
		if v, has := c.axisValue(o, yMetric); has {
			y = v
		} else {
			continue
		}
		if x < 0 || y < 0 {
			continue
		}

		points = append(points, QuadrantPoint{
			UnitKey:     u.Key,
			Name:        u.Name,
			DisplayName: u.DisplayName,
			District:    u.District,
			Province:    u.Province,
			X:           x,
			Y:           y,
		})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no observations for %s %d", month, year)
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}

	cutoffX, cutoffY, err := cutoffs(xs, ys, policy)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{
		QuadrantLowLow:   0,
		QuadrantHighLow:  0,
		QuadrantLowHigh:  0,
		QuadrantHighHigh: 0,
	}
	for i := range points {
		points[i].Quadrant = classify(points[i].X, points[i].Y, cutoffX, cutoffY)
		counts[points[i].Quadrant]++
	}

	sort.Slice(points, func(i, j int) bool { return points[i].DisplayName < points[j].DisplayName })

	return &QuadrantResult{
		Year:    year,
		Month:   month,
		XMetric: xMetric,
		YMetric: yMetric,
		CutoffX: cutoffX,
		CutoffY: cutoffY,
		Points:  points,
		Counts:  counts,
	}, nil
}

// axisValue reads an axis metric, keeping the null-rate rule for units
// without population.
func (c *Calculator) axisValue(o domain.Observation, metricID string) (float64, bool) {
	if m, ok := domain.LookupMetric(c.ds.Level, metricID); ok {
		return metricValue(o, m)
	}
	return o.Value(metricID)
}

func cutoffs(xs, ys []float64, policy QuadrantPolicy) (float64, float64, error) {
	switch policy.Kind {
	case PolicyMedian:
		return percentile(xs, 50), percentile(ys, 50), nil
	case PolicyPercentile, "":
		p := policy.Percentile
		if p <= 0 || p >= 100 {
			p = 75
		}
		return percentile(xs, p), percentile(ys, p), nil
	case PolicyFixed:
		return policy.FixedX, policy.FixedY, nil
	default:
		return 0, 0, fmt.Errorf("unknown quadrant policy %q", policy.Kind)
	}
}

// classify assigns a quadrant label; boundary values go to the low side.
func classify(x, y, cutoffX, cutoffY float64) string {
	highX := x > cutoffX
	highY := y > cutoffY
	switch {
	case highX && highY:
		return QuadrantHighHigh
	case highX:
		return QuadrantHighLow
	case highY:
		return QuadrantLowHigh
	default:
		return QuadrantLowLow
	}
}

// percentile computes the p-th percentile with linear interpolation between
// closest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
