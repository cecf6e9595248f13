package metrics

import (
	"time"

	"malariawatch/pkg/contracts/domain"
)

// Selection identifies one dashboard view request: the administrative level,
// the metric, and the period under analysis.
type Selection struct {
	Level    domain.Level `json:"level"`
	MetricID string       `json:"metric_id"`
	Year     int          `json:"year"`
	Month    time.Month   `json:"month"`

	// Units holds the unit keys a trend chart follows. Empty everywhere else.
	Units []string `json:"units,omitempty"`

	// TopN bounds the ranking chart. Zero means the default of ten.
	TopN int `json:"top_n,omitempty"`
}

// UnitValue is one unit's metric reading for a single period.
type UnitValue struct {
	UnitKey     string  `json:"unit_key"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	District    string  `json:"district,omitempty"`
	Province    string  `json:"province,omitempty"`
	Population  float64 `json:"population"`

	// Value is nil when the unit has no observation for the period, so
	// consumers render "no data" rather than zero.
	Value *float64 `json:"value"`
}

// SeriesPoint is one step of a unit's monthly time series.
type SeriesPoint struct {
	UnitKey     string    `json:"unit_key"`
	DisplayName string    `json:"display_name"`
	Date        time.Time `json:"date"`
	Value       float64   `json:"value"`
}

// Summary holds the headline figures for a year of data.
type Summary struct {
	Year             int     `json:"year"`
	MetricID         string  `json:"metric_id"`
	TotalCases       float64 `json:"total_cases"`
	OverallIncidence float64 `json:"overall_incidence"`

	// ChangePercent compares against the previous year. Nil when the
	// previous year is absent or its figure is not positive.
	ChangePercent *float64 `json:"change_percent,omitempty"`
}

// ColorRange is the value span a color scale maps onto. Computed over all
// periods so colors stay comparable when the user switches months or years.
type ColorRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}
