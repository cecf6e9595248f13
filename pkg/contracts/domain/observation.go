package domain

import "time"

// Observation is one unit's measurements for a single (year, month) period.
// Values are keyed by metric ID; at most one observation exists per
// (unit, year, month) and at most one value per metric within it.
type Observation struct {
	UnitKey    string             `json:"unit_key"`
	Year       int                `json:"year"`
	Month      time.Month         `json:"month"`
	Population float64            `json:"population"`
	Values     map[string]float64 `json:"values"`
}

// Period returns a sortable representation of the observation's period.
func (o Observation) Period() int {
	return o.Year*100 + int(o.Month)
}

// Date returns the first day of the observation's period.
func (o Observation) Date() time.Time {
	return time.Date(o.Year, o.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Value returns the metric value and whether it is present.
func (o Observation) Value(metricID string) (float64, bool) {
	v, ok := o.Values[metricID]
	return v, ok
}

// Incidence normalizes a case count per 1,000 population. Returns nil when
// population is zero or missing so callers render "no data" instead of
// dividing by zero or reporting infinity.
func Incidence(cases, population float64) *float64 {
	if population <= 0 {
		return nil
	}
	v := cases / population * 1000
	return &v
}
