package dataset

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"malariawatch/internal/config"
	apperrors "malariawatch/internal/errors"
	"malariawatch/internal/metrics"
	"malariawatch/pkg/contracts/domain"
)

const districtGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"District": "Gasabo", "Province": "Kigali City"},
      "geometry": {"type": "Polygon", "coordinates": [[[30.0, -1.9], [30.2, -1.9], [30.2, -1.7], [30.0, -1.7], [30.0, -1.9]]]}
    },
    {
      "type": "Feature",
      "properties": {"District": "  nyagatare ", "Province": "Eastern"},
      "geometry": {"type": "Polygon", "coordinates": [[[30.3, -1.4], [30.5, -1.4], [30.5, -1.2], [30.3, -1.2], [30.3, -1.4]]]}
    }
  ]
}`

const sectorGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"Sector": "Remera", "District": "Gasabo", "Province": "Kigali City"},
      "geometry": {"type": "Polygon", "coordinates": [[[30.1, -1.95], [30.15, -1.95], [30.15, -1.9], [30.1, -1.9], [30.1, -1.95]]]}
    }
  ]
}`

const districtCSV = `Date,District,Population,all cases,Severe cases/Deaths,all cases incidence
2023-01-01,Gasabo,530000,1200,15,2.26
2023-01-01,NYAGATARE,465000,2100,30,4.52
2023-02-01,gasabo,530000,900,,1.70
bad-date,Gasabo,530000,100,1,0.19
2023-02-01,Rubavu,400000,700,8,1.75
`

const sectorCSV = `Date,District,Sector,Population,Simple malaria cases,incidence
2023-01-01,Gasabo,Remera,60000,300,5.0
2023-01-01,Gasabo,remera,60000,280,4.7
`

func writeTestData(t *testing.T) *config.Paths {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"district_malaria_data.csv":   districtCSV,
		"sector_malaria_data.csv":     sectorCSV,
		"district_geometries.geojson": districtGeoJSON,
		"sector_geometries.geojson":   sectorGeoJSON,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.Data.Dir = dir
	cfg.Data.ExportsDir = filepath.Join(dir, "exports")
	return config.NewPaths(cfg)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoaderLoadDistrict(t *testing.T) {
	paths := writeTestData(t)
	loader := NewLoader(paths, testLogger())

	ds, err := loader.Load(context.Background(), domain.LevelDistrict)
	require.NoError(t, err)

	assert.Equal(t, domain.LevelDistrict, ds.Level)

	// Two boundary districts plus Rubavu synthesized from the CSV.
	assert.Len(t, ds.Units, 3)

	// The bad-date row is skipped entirely.
	assert.Len(t, ds.Observations, 4)

	// Rubavu has no boundary feature, so its single row counts as unmatched
	// but the observation is kept for charting.
	assert.Equal(t, 1, ds.DroppedRows)

	rubavu, ok := ds.Unit("Rubavu")
	require.True(t, ok)
	assert.False(t, rubavu.HasGeometry())

	gasabo, ok := ds.Unit("Gasabo")
	require.True(t, ok)
	assert.True(t, gasabo.HasGeometry())
	assert.Equal(t, "Kigali City", gasabo.Province)
}

func TestLoaderNameNormalization(t *testing.T) {
	paths := writeTestData(t)
	loader := NewLoader(paths, testLogger())

	ds, err := loader.Load(context.Background(), domain.LevelDistrict)
	require.NoError(t, err)

	// "NYAGATARE" in the CSV and "  nyagatare " in the GeoJSON join as one
	// unit after normalization.
	unit, ok := ds.Unit("Nyagatare")
	require.True(t, ok)
	assert.True(t, unit.HasGeometry())

	var count int
	for _, o := range ds.Observations {
		if o.UnitKey == "Nyagatare" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestLoaderSectorCompositeKey(t *testing.T) {
	paths := writeTestData(t)
	loader := NewLoader(paths, testLogger())

	ds, err := loader.Load(context.Background(), domain.LevelSector)
	require.NoError(t, err)

	unit, ok := ds.Unit("Remera_Gasabo")
	require.True(t, ok)
	assert.Equal(t, "Remera (Gasabo)", unit.DisplayName)
	assert.Equal(t, "Gasabo", unit.District)
	assert.True(t, unit.HasGeometry())

	// Both CSV rows normalize to the same sector key.
	assert.Zero(t, ds.DroppedRows)
	assert.Len(t, ds.Observations, 2)
}

func TestLoaderNumericCoercion(t *testing.T) {
	paths := writeTestData(t)
	loader := NewLoader(paths, testLogger())

	ds, err := loader.Load(context.Background(), domain.LevelDistrict)
	require.NoError(t, err)

	var feb *domain.Observation
	for i, o := range ds.Observations {
		if o.UnitKey == "Gasabo" && o.Month == time.February {
			feb = &ds.Observations[i]
		}
	}
	require.NotNil(t, feb)

	// Empty severe-cases cell coerces to zero rather than failing the row.
	v, ok := feb.Value(domain.MetricSevereCases)
	require.True(t, ok)
	assert.Zero(t, v)
}

func TestLoaderLoadAll(t *testing.T) {
	paths := writeTestData(t)
	loader := NewLoader(paths, testLogger())

	datasets, err := loader.LoadAll(context.Background())
	require.NoError(t, err)
	require.Contains(t, datasets, domain.LevelDistrict)
	require.Contains(t, datasets, domain.LevelSector)
	assert.NotEmpty(t, datasets[domain.LevelDistrict].Observations)
	assert.NotEmpty(t, datasets[domain.LevelSector].Observations)
}

func TestLoaderMissingColumn(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "district_malaria_data.csv"),
		[]byte("Date,Population\n2023-01-01,100\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "district_geometries.geojson"),
		[]byte(districtGeoJSON), 0o644))

	cfg := config.Default()
	cfg.Data.Dir = dir
	paths := config.NewPaths(cfg)
	loader := NewLoader(paths, testLogger())

	_, err := loader.Load(context.Background(), domain.LevelDistrict)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "District")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrTypeParsing, appErr.Type)
}

func TestLoaderErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		csv      string
		geojson  string
		wantType apperrors.ErrorType
	}{
		{
			name:     "missing attribute file",
			geojson:  districtGeoJSON,
			wantType: apperrors.ErrTypeStorage,
		},
		{
			name:     "malformed attribute record",
			csv:      "Date,District,Population\n2023-01-01,\"Gasabo,100\n",
			geojson:  districtGeoJSON,
			wantType: apperrors.ErrTypeParsing,
		},
		{
			name:     "malformed boundary file",
			csv:      districtCSV,
			geojson:  "{not json",
			wantType: apperrors.ErrTypeParsing,
		},
		{
			name:     "missing boundary file",
			csv:      districtCSV,
			wantType: apperrors.ErrTypeStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.csv != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "district_malaria_data.csv"), []byte(tt.csv), 0o644))
			}
			if tt.geojson != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "district_geometries.geojson"), []byte(tt.geojson), 0o644))
			}

			cfg := config.Default()
			cfg.Data.Dir = dir
			loader := NewLoader(config.NewPaths(cfg), testLogger())

			_, err := loader.Load(context.Background(), domain.LevelDistrict)
			require.Error(t, err)

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantType, appErr.Type)
			assert.Contains(t, appErr.Context, "path")
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "iso date", input: "2023-05-01", want: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{name: "iso datetime", input: "2023-05-01 00:00:00", want: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{name: "us slash", input: "5/1/2023", want: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "not-a-date", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDate(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "plain", input: "1200", want: 1200},
		{name: "decimal", input: "2.26", want: 2.26},
		{name: "thousands separator", input: "1,200", want: 1200},
		{name: "whitespace", input: " 42 ", want: 42},
		{name: "empty coerces to zero", input: "", want: 0},
		{name: "garbage coerces to zero", input: "n/a", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseNumber(tt.input))
		})
	}
}

func TestStoreReloadAndStale(t *testing.T) {
	paths := writeTestData(t)
	loader := NewLoader(paths, testLogger())
	store := NewStore(loader, paths, testLogger())

	_, err := store.Dataset(domain.LevelDistrict)
	require.Error(t, err)

	reloaded, err := store.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, reloaded)

	ds, err := store.Dataset(domain.LevelDistrict)
	require.NoError(t, err)
	assert.NotEmpty(t, ds.Observations)
	assert.False(t, store.LoadedAt().IsZero())
	assert.False(t, store.Stale())

	// Unchanged files make reload a no-op.
	reloaded, err = store.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, reloaded)

	// Touch a source file with a newer mtime.
	csvPath := paths.CSVFor(domain.LevelDistrict)
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(csvPath, future, future))
	assert.True(t, store.Stale())

	reloaded, err = store.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, reloaded)
}

// rewritingLoader rewrites a source file while a load is in flight.
type rewritingLoader struct {
	*Loader
	t    *testing.T
	path string
}

func (l *rewritingLoader) LoadAll(ctx context.Context) (map[domain.Level]*domain.Dataset, error) {
	datasets, err := l.Loader.LoadAll(ctx)
	future := time.Now().Add(time.Hour)
	require.NoError(l.t, os.Chtimes(l.path, future, future))
	return datasets, err
}

func TestStoreStaleAfterMidLoadRewrite(t *testing.T) {
	paths := writeTestData(t)
	loader := &rewritingLoader{
		Loader: NewLoader(paths, testLogger()),
		t:      t,
		path:   paths.CSVFor(domain.LevelDistrict),
	}
	store := NewStore(loader, paths, testLogger())

	reloaded, err := store.Reload(context.Background())
	require.NoError(t, err)
	require.True(t, reloaded)

	// The rewrite landed after the pre-parse snapshot, so the store must
	// still see the file as changed and reload picks it up.
	assert.True(t, store.Stale())

	reloaded, err = store.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, reloaded)
}

func TestLoadedRateNullForZeroPopulation(t *testing.T) {
	dir := t.TempDir()
	csv := "Date,District,Population,all cases,Severe cases/Deaths,all cases incidence\n" +
		"2023-01-01,Gasabo,0,100,2,4.2\n" +
		"2023-01-01,Nyagatare,465000,2100,30,4.52\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "district_malaria_data.csv"), []byte(csv), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "district_geometries.geojson"), []byte(districtGeoJSON), 0o644))

	cfg := config.Default()
	cfg.Data.Dir = dir
	loader := NewLoader(config.NewPaths(cfg), testLogger())

	ds, err := loader.Load(context.Background(), domain.LevelDistrict)
	require.NoError(t, err)

	metric, ok := domain.LookupMetric(domain.LevelDistrict, domain.MetricAllCasesIncidence)
	require.True(t, ok)

	calc := metrics.NewCalculator(ds)
	values := calc.UnitValues(2023, time.January, metric)

	byKey := make(map[string]metrics.UnitValue, len(values))
	for _, v := range values {
		byKey[v.UnitKey] = v
	}

	// The incidence column holds 4.2 for Gasabo, but with no population
	// the rate is unusable and must surface as null.
	require.Contains(t, byKey, "Gasabo")
	assert.Nil(t, byKey["Gasabo"].Value)

	require.Contains(t, byKey, "Nyagatare")
	require.NotNil(t, byKey["Nyagatare"].Value)
	assert.InDelta(t, 4.52, *byKey["Nyagatare"].Value, 0.001)
}
