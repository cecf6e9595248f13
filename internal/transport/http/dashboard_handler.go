package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "malariawatch/internal/errors"
	"malariawatch/internal/metrics"
	"malariawatch/internal/services"
	"malariawatch/pkg/contracts/domain"
)

// DashboardHandler serves the dashboard API.
type DashboardHandler struct {
	service *services.DashboardService
	errors  *apierrors.ErrorHandler
	logger  *slog.Logger
}

// NewDashboardHandler creates the dashboard handler.
func NewDashboardHandler(service *services.DashboardService, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		errors:  errorHandler,
		logger:  logger.With(slog.String("handler", "dashboard")),
	}
}

// Routes returns the dashboard route tree.
func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/filters", h.Filters)
	r.Get("/summary", h.Summary)
	r.Get("/map", h.Map)
	r.Get("/trends", h.Trends)
	r.Get("/scatter", h.Scatter)
	r.Get("/top", h.Top)
	r.Get("/quadrants", h.Quadrants)
	r.Get("/export/{format}", h.Export)
	r.Post("/reload", h.Reload)

	return r
}

// Filters returns the selectable filter options for a level.
func (h *DashboardHandler) Filters(w http.ResponseWriter, r *http.Request) {
	level, apiErr := parseLevel(r)
	if apiErr != nil {
		h.renderError(w, r, apiErr)
		return
	}

	opts, err := h.service.Filters(r.Context(), level)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, opts)
}

// Summary returns the headline figures for a year.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sel, apiErr := parseSelection(r, needMetric|needYear)
	if apiErr != nil {
		h.renderError(w, r, apiErr)
		return
	}

	summary, err := h.service.Summary(r.Context(), sel)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

// Map returns the choropleth spec for a period.
func (h *DashboardHandler) Map(w http.ResponseWriter, r *http.Request) {
	sel, apiErr := parseSelection(r, needMetric|needYear|needMonth)
	if apiErr != nil {
		h.renderError(w, r, apiErr)
		return
	}

	spec, err := h.service.Map(r.Context(), sel)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, spec)
}

// Trends returns the monthly trend chart for selected units.
func (h *DashboardHandler) Trends(w http.ResponseWriter, r *http.Request) {
	sel, apiErr := parseSelection(r, needMetric)
	if apiErr != nil {
		h.renderError(w, r, apiErr)
		return
	}

	units := strings.TrimSpace(r.URL.Query().Get("units"))
	if units == "" {
		h.renderError(w, r, apierrors.ErrValidation("units", "at least one unit key is required"))
		return
	}
	sel.Units = strings.Split(units, ",")

	spec, err := h.service.Trends(r.Context(), sel)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, spec)
}

// Scatter returns the quadrant scatter spec for a period.
func (h *DashboardHandler) Scatter(w http.ResponseWriter, r *http.Request) {
	sel, apiErr := parseSelection(r, needYear|needMonth)
	if apiErr != nil {
		h.renderError(w, r, apiErr)
		return
	}

	spec, err := h.service.Scatter(r.Context(), sel)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, spec)
}

// Top returns the ranking bar chart for a period.
func (h *DashboardHandler) Top(w http.ResponseWriter, r *http.Request) {
	sel, apiErr := parseSelection(r, needMetric|needYear|needMonth)
	if apiErr != nil {
		h.renderError(w, r, apiErr)
		return
	}

	if n := r.URL.Query().Get("n"); n != "" {
		v, err := strconv.Atoi(n)
		if err != nil || v < 1 || v > 100 {
			h.renderError(w, r, apierrors.ErrValidation("n", "must be an integer between 1 and 100"))
			return
		}
		sel.TopN = v
	}

	spec, err := h.service.Top(r.Context(), sel)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, spec)
}

// Quadrants returns the classified quadrant result for a period.
func (h *DashboardHandler) Quadrants(w http.ResponseWriter, r *http.Request) {
	sel, apiErr := parseSelection(r, needYear|needMonth)
	if apiErr != nil {
		h.renderError(w, r, apiErr)
		return
	}

	result, err := h.service.Quadrants(r.Context(), sel)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// Export streams a level's observations as csv or xlsx.
func (h *DashboardHandler) Export(w http.ResponseWriter, r *http.Request) {
	level, apiErr := parseLevel(r)
	if apiErr != nil {
		h.renderError(w, r, apiErr)
		return
	}

	year := 0
	if y := r.URL.Query().Get("year"); y != "" {
		v, err := strconv.Atoi(y)
		if err != nil {
			h.renderError(w, r, apierrors.ErrValidation("year", "must be an integer"))
			return
		}
		year = v
	}

	format := chi.URLParam(r, "format")
	name, data, err := h.service.Export(r.Context(), level, year, format)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == "xlsx" {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Reload re-parses the source files from disk.
func (h *DashboardHandler) Reload(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Reload(r.Context())
	if err != nil {
		var appErr *apierrors.AppError
		if errors.As(err, &appErr) {
			h.errors.HandleError(w, r, err)
			return
		}
		h.renderError(w, r, apierrors.DatasetLoadError(err))
		return
	}
	render.JSON(w, r, result)
}

func (h *DashboardHandler) renderError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}

// renderServiceError maps service sentinels to API errors.
func (h *DashboardHandler) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierrors.APIError
	switch {
	case errors.Is(err, services.ErrUnknownLevel):
		apiErr = apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_PARAMETER", "Invalid administrative level", err.Error())
	case errors.Is(err, services.ErrUnknownMetric):
		apiErr = apierrors.NewWithDetails(http.StatusNotFound, "METRIC_NOT_FOUND", "Metric not found", err.Error())
	case errors.Is(err, services.ErrUnitNotFound):
		apiErr = apierrors.NewWithDetails(http.StatusNotFound, "UNIT_NOT_FOUND", "Administrative unit not found", err.Error())
	case errors.Is(err, services.ErrNoData):
		apiErr = apierrors.NewWithDetails(http.StatusNotFound, "NO_DATA", "No observations match the selection", err.Error())
	case errors.Is(err, services.ErrInvalidSelection):
		apiErr = apierrors.NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Invalid selection", err.Error())
	case errors.Is(err, services.ErrUnsupportedFormat):
		apiErr = apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_PARAMETER", "Unsupported export format", err.Error())
	case errors.Is(err, services.ErrNotLoaded):
		apiErr = apierrors.NewWithDetails(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Datasets not loaded", err.Error())
	default:
		// Anything else, including AppError chains from the load and compute
		// pipelines, goes through the central handler.
		h.errors.HandleError(w, r, err)
		return
	}
	h.renderError(w, r, apiErr)
}

// Selection parsing

type selectionFields int

const (
	needMetric selectionFields = 1 << iota
	needYear
	needMonth
)

func parseLevel(r *http.Request) (domain.Level, *apierrors.APIError) {
	raw := r.URL.Query().Get("level")
	if raw == "" {
		raw = "district"
	}
	level, err := domain.ParseLevel(raw)
	if err != nil {
		return "", apierrors.ErrValidation("level", "must be \"district\" or \"sector\"")
	}
	return level, nil
}

func parseSelection(r *http.Request, fields selectionFields) (metrics.Selection, *apierrors.APIError) {
	var sel metrics.Selection

	level, apiErr := parseLevel(r)
	if apiErr != nil {
		return sel, apiErr
	}
	sel.Level = level

	q := r.URL.Query()

	if fields&needMetric != 0 {
		sel.MetricID = q.Get("metric")
		if sel.MetricID == "" {
			return sel, apierrors.ErrValidation("metric", "metric is required")
		}
	}

	if fields&needYear != 0 {
		year, err := strconv.Atoi(q.Get("year"))
		if err != nil || year < 1900 || year > 2200 {
			return sel, apierrors.ErrValidation("year", "must be a four-digit year")
		}
		sel.Year = year
	}

	if fields&needMonth != 0 {
		month, err := strconv.Atoi(q.Get("month"))
		if err != nil || month < 1 || month > 12 {
			return sel, apierrors.ErrValidation("month", "must be between 1 and 12")
		}
		sel.Month = time.Month(month)
	}

	return sel, nil
}
