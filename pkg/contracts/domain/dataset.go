package domain

import (
	"sort"
	"time"
)

// Dataset is the joined, read-only view of one administrative level:
// boundary geometries merged with malaria observations. Built once by the
// loader and shared across sessions without locking.
type Dataset struct {
	Level        Level
	Units        []AdministrativeUnit
	Observations []Observation

	// DroppedRows counts attribute rows whose identifier had no matching
	// boundary feature. Surfaced as a non-blocking warning, never fatal.
	DroppedRows int

	// LoadedAt records when the dataset was parsed from disk.
	LoadedAt time.Time

	unitIndex map[string]int
}

// BuildIndex prepares the unit lookup table. Called once by the loader after
// the dataset is assembled.
func (d *Dataset) BuildIndex() {
	d.unitIndex = make(map[string]int, len(d.Units))
	for i, u := range d.Units {
		d.unitIndex[u.Key] = i
	}
}

// Unit looks up an administrative unit by key.
func (d *Dataset) Unit(key string) (AdministrativeUnit, bool) {
	if d.unitIndex != nil {
		if i, ok := d.unitIndex[key]; ok {
			return d.Units[i], true
		}
	}
	return AdministrativeUnit{}, false
}

// Years returns the distinct years present, ascending.
func (d *Dataset) Years() []int {
	seen := make(map[int]struct{})
	for _, o := range d.Observations {
		seen[o.Year] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// MonthsIn returns the distinct months present for a year, ascending.
func (d *Dataset) MonthsIn(year int) []time.Month {
	seen := make(map[time.Month]struct{})
	for _, o := range d.Observations {
		if o.Year == year {
			seen[o.Month] = struct{}{}
		}
	}
	months := make([]time.Month, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
	return months
}

// UnitOptions returns the sorted display names offered in selection controls.
func (d *Dataset) UnitOptions() []string {
	opts := make([]string, 0, len(d.Units))
	for _, u := range d.Units {
		opts = append(opts, u.DisplayName)
	}
	sort.Strings(opts)
	return opts
}
