package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"malariawatch/internal/services"
)

// HealthHandler reports service liveness and dataset freshness.
type HealthHandler struct {
	service   *services.DashboardService
	logger    *slog.Logger
	version   string
	startedAt time.Time
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(service *services.DashboardService, logger *slog.Logger, version string) *HealthHandler {
	return &HealthHandler{
		service:   service,
		logger:    logger.With(slog.String("handler", "health")),
		version:   version,
		startedAt: time.Now(),
	}
}

// Routes returns the health route tree.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Health)
	r.Get("/ready", h.Ready)
	return r
}

// Health returns liveness plus dataset load state.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	loadedAt := h.service.LoadedAt()

	render.JSON(w, r, map[string]interface{}{
		"status":     "ok",
		"version":    h.version,
		"uptime":     time.Since(h.startedAt).String(),
		"data_ready": !loadedAt.IsZero(),
		"loaded_at":  loadedAt,
		"data_stale": h.service.Stale(),
	})
}

// Ready returns 200 only once datasets are loaded.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.service.LoadedAt().IsZero() {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "loading"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}
