package domain

// MetricKind distinguishes raw case counts from population-normalized rates.
// Counts aggregate by sum over a period, rates by mean.
type MetricKind string

const (
	MetricCount MetricKind = "count"
	MetricRate  MetricKind = "rate"
)

// Metric describes one selectable dashboard metric.
type Metric struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Kind   MetricKind `json:"kind"`
	Column string     `json:"-"` // source CSV column header
}

// District-level metric identifiers.
const (
	MetricAllCases          = "all_cases"
	MetricAllCasesIncidence = "all_cases_incidence"
	MetricSevereCases       = "severe_cases"
)

// Sector-level metric identifiers.
const (
	MetricSimpleCases = "simple_cases"
	MetricIncidence   = "incidence"
)

// DistrictMetrics is the metric registry for district dashboards.
var DistrictMetrics = []Metric{
	{ID: MetricAllCases, Label: "All Cases", Kind: MetricCount, Column: "all cases"},
	{ID: MetricAllCasesIncidence, Label: "All Cases Incidence", Kind: MetricRate, Column: "all cases incidence"},
	{ID: MetricSevereCases, Label: "Severe Cases & Deaths", Kind: MetricCount, Column: "Severe cases/Deaths"},
}

// SectorMetrics is the metric registry for sector dashboards.
var SectorMetrics = []Metric{
	{ID: MetricSimpleCases, Label: "Simple Malaria Cases", Kind: MetricCount, Column: "Simple malaria cases"},
	{ID: MetricIncidence, Label: "Incidence", Kind: MetricRate, Column: "incidence"},
}

// MetricsFor returns the metric registry for an administrative level.
func MetricsFor(level Level) []Metric {
	if level == LevelSector {
		return SectorMetrics
	}
	return DistrictMetrics
}

// LookupMetric resolves a metric ID within a level's registry.
func LookupMetric(level Level, id string) (Metric, bool) {
	for _, m := range MetricsFor(level) {
		if m.ID == id {
			return m, true
		}
	}
	return Metric{}, false
}
