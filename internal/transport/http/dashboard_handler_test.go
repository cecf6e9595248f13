package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"malariawatch/internal/config"
	"malariawatch/internal/dataset"
	apierrors "malariawatch/internal/errors"
	"malariawatch/internal/services"
)

const handlerDistrictGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"District": "Gasabo", "Province": "Kigali City"},
      "geometry": {"type": "Polygon", "coordinates": [[[30.0, -1.9], [30.2, -1.9], [30.2, -1.7], [30.0, -1.7], [30.0, -1.9]]]}
    },
    {
      "type": "Feature",
      "properties": {"District": "Nyagatare", "Province": "Eastern"},
      "geometry": {"type": "Polygon", "coordinates": [[[30.3, -1.4], [30.5, -1.4], [30.5, -1.2], [30.3, -1.2], [30.3, -1.4]]]}
    }
  ]
}`

const handlerSectorGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"Sector": "Remera", "District": "Gasabo", "Province": "Kigali City"},
      "geometry": {"type": "Polygon", "coordinates": [[[30.1, -1.95], [30.15, -1.95], [30.15, -1.9], [30.1, -1.9], [30.1, -1.95]]]}
    }
  ]
}`

const handlerDistrictCSV = `Date,District,Population,all cases,Severe cases/Deaths,all cases incidence
2022-01-01,Gasabo,500000,800,10,1.6
2022-01-01,Nyagatare,450000,1200,20,2.67
2023-01-01,Gasabo,500000,1000,12,2.0
2023-01-01,Nyagatare,450000,1500,25,3.33
`

const handlerSectorCSV = `Date,District,Sector,Population,Simple malaria cases,incidence
2023-01-01,Gasabo,Remera,60000,300,5.0
`

func newTestRouter(t *testing.T) chi.Router {
	router, _ := newTestRouterWithDir(t)
	return router
}

func newTestRouterWithDir(t *testing.T) (chi.Router, string) {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"district_malaria_data.csv":   handlerDistrictCSV,
		"sector_malaria_data.csv":     handlerSectorCSV,
		"district_geometries.geojson": handlerDistrictGeoJSON,
		"sector_geometries.geojson":   handlerSectorGeoJSON,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.Data.Dir = dir
	cfg.Data.ExportsDir = filepath.Join(dir, "exports")

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	paths := config.NewPaths(cfg)
	store := dataset.NewStore(dataset.NewLoader(paths, logger), paths, logger)
	svc := services.NewDashboardService(store, cfg, logger, nil)
	_, err := svc.Reload(context.Background())
	require.NoError(t, err)

	errorHandler := apierrors.NewErrorHandler(logger, false)
	r := chi.NewRouter()
	r.Mount("/api/dashboard", NewDashboardHandler(svc, errorHandler, logger).Routes())
	r.Mount("/api/health", NewHealthHandler(svc, logger, "test").Routes())
	return r, dir
}

func doRequest(t *testing.T, router chi.Router, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestFiltersEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/filters?level=district")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "district", body["level"])
	assert.Len(t, body["years"], 2)
	assert.Len(t, body["units"], 2)
}

func TestFiltersRejectsUnknownLevel(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/filters?level=village")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
}

func TestSummaryEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/summary?level=district&metric=all_cases&year=2023")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 2500.0, body["total_cases"])
	assert.NotNil(t, body["change_percent"])
}

func TestSummaryMissingYear(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/summary?level=district&metric=all_cases")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/map?level=district&metric=all_cases&year=2023&month=1")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Len(t, body["features"], 2)
	assert.Equal(t, "carto-darkmatter", body["style"])
}

func TestMapUnknownMetric(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/map?level=district&metric=bogus&year=2023&month=1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrendsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/trends?level=district&metric=all_cases&units=Gasabo,Nyagatare")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Len(t, body["series"], 2)
}

func TestTrendsUnknownUnit(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/trends?level=district&metric=all_cases&units=Atlantis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScatterEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/scatter?level=district&year=2023&month=1")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Len(t, body["points"], 2)
	assert.NotNil(t, body["x_threshold"])
}

func TestTopEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/top?level=district&metric=all_cases&year=2023&month=1&n=1")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	bars, ok := body["bars"].([]interface{})
	require.True(t, ok)
	require.Len(t, bars, 1)
}

func TestQuadrantsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/quadrants?level=district&year=2023&month=1")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "all_cases", body["x_metric"])
	assert.NotNil(t, body["counts"])
}

func TestQuadrantsNoData(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/quadrants?level=district&year=1999&month=1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/export/csv?level=district&year=2023")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "malaria_district_2023.csv")
	assert.Contains(t, rec.Body.String(), "Gasabo")
}

func TestExportBadFormat(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/dashboard/export/pdf?level=district")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReloadEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/dashboard/reload")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.NotNil(t, body["reloaded_at"])
}

func TestReloadCorruptedSource(t *testing.T) {
	router, dir := newTestRouterWithDir(t)

	// Drop a required column and push the mtime forward so the store
	// reparses on the next reload.
	path := filepath.Join(dir, "district_malaria_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Region\n2023-01-01,Gasabo\n"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	rec := doRequest(t, router, http.MethodPost, "/api/dashboard/reload")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "/errors/data/corrupted", body["type"])
	assert.Equal(t, "PARSING", body["error_type"])
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/health/")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["data_ready"])

	rec = doRequest(t, router, http.MethodGet, "/api/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}
