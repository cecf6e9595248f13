package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/twpayne/go-geom"
)

// Level identifies the administrative level of a dataset.
type Level string

const (
	LevelDistrict Level = "district"
	LevelSector   Level = "sector"
)

// Valid reports whether the level is one of the known administrative levels.
func (l Level) Valid() bool {
	return l == LevelDistrict || l == LevelSector
}

// String returns the string representation of the level.
func (l Level) String() string {
	return string(l)
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "district", "districts":
		return LevelDistrict, nil
	case "sector", "sectors":
		return LevelSector, nil
	default:
		return "", fmt.Errorf("unknown administrative level: %q", s)
	}
}

// AdministrativeUnit is a district or sector with its boundary geometry.
// Units are immutable after load and shared read-only across sessions.
type AdministrativeUnit struct {
	// Key uniquely identifies the unit within its level. Districts use the
	// district name; sectors use "Sector_District" because sector names
	// repeat across districts.
	Key string `json:"key"`

	// Name is the unit's own name (district or sector name).
	Name string `json:"name"`

	// District is the parent district for sector-level units. Empty for
	// district-level units.
	District string `json:"district,omitempty"`

	// Province is the parent province.
	Province string `json:"province,omitempty"`

	// DisplayName is the human-facing label. For sectors this is
	// "Sector (District)" so duplicated sector names stay distinguishable.
	DisplayName string `json:"display_name"`

	// Geometry is the polygon or multi-polygon boundary. Nil when the unit
	// appears in attribute data but carries no boundary feature.
	Geometry geom.T `json:"-"`
}

// HasGeometry reports whether the unit carries a boundary polygon.
func (u AdministrativeUnit) HasGeometry() bool {
	return u.Geometry != nil
}

// NormalizeName canonicalizes an administrative name for joining: trimmed,
// title-cased per word. Both CSV and GeoJSON sides pass through this before
// matching, mirroring the upstream data cleaning.
func NormalizeName(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	for i, f := range fields {
		runes := []rune(strings.ToLower(f))
		runes[0] = unicode.ToUpper(runes[0])
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}

// SectorKey builds the composite identifier for a sector row.
func SectorKey(sector, district string) string {
	return sector + "_" + district
}

// SectorDisplayName builds the human-facing sector label.
func SectorDisplayName(sector, district string) string {
	return fmt.Sprintf("%s (%s)", sector, district)
}
