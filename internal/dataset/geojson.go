package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/twpayne/go-geom/encoding/geojson"

	apperrors "malariawatch/internal/errors"
	"malariawatch/pkg/contracts/domain"
)

// loadBoundaries reads a GeoJSON feature collection and returns one
// administrative unit per distinct key. Duplicate features keep the first
// geometry seen.
func loadBoundaries(path string, level domain.Level) ([]domain.AdministrativeUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError("read boundary file", err).WithContext("path", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, apperrors.NewParsingError("parse boundary file", err).WithContext("path", path)
	}

	seen := make(map[string]struct{}, len(fc.Features))
	units := make([]domain.AdministrativeUnit, 0, len(fc.Features))

	for i, f := range fc.Features {
		unit, err := unitFromFeature(f, level)
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("boundary feature %d", i), err).WithContext("path", path)
		}
		if _, dup := seen[unit.Key]; dup {
			continue
		}
		seen[unit.Key] = struct{}{}
		units = append(units, unit)
	}

	return units, nil
}

func unitFromFeature(f *geojson.Feature, level domain.Level) (domain.AdministrativeUnit, error) {
	district := domain.NormalizeName(stringProperty(f.Properties, "District"))
	province := domain.NormalizeName(stringProperty(f.Properties, "Province"))

	switch level {
	case domain.LevelSector:
		sector := domain.NormalizeName(stringProperty(f.Properties, "Sector"))
		if sector == "" || district == "" {
			return domain.AdministrativeUnit{}, fmt.Errorf("missing Sector or District property")
		}
		return domain.AdministrativeUnit{
			Key:         domain.SectorKey(sector, district),
			Name:        sector,
			District:    district,
			Province:    province,
			DisplayName: domain.SectorDisplayName(sector, district),
			Geometry:    f.Geometry,
		}, nil
	default:
		if district == "" {
			return domain.AdministrativeUnit{}, fmt.Errorf("missing District property")
		}
		return domain.AdministrativeUnit{
			Key:         district,
			Name:        district,
			Province:    province,
			DisplayName: district,
			Geometry:    f.Geometry,
		}, nil
	}
}

func stringProperty(props map[string]interface{}, key string) string {
	if props == nil {
		return ""
	}
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
