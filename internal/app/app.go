package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"malariawatch/internal/config"
	"malariawatch/internal/dataset"
	apierrors "malariawatch/internal/errors"
	"malariawatch/internal/infrastructure"
	custommw "malariawatch/internal/middleware"
	"malariawatch/internal/services"
	transport "malariawatch/internal/transport/http"
	"malariawatch/internal/websocket"
)

// Version is set at build time.
var Version = "dev"

// Application wires configuration, datasets, services and transport into a
// runnable server.
type Application struct {
	cfg    *config.Config
	logger *slog.Logger
	router chi.Router
	server *http.Server

	otel         *infrastructure.OTelProviders
	instruments  *infrastructure.DashboardMetrics
	hub          *websocket.Hub
	dashboard    *services.DashboardService
	errorHandler *apierrors.ErrorHandler
}

// NewApplication builds the application from configuration. The initial
// dataset load happens here; a missing or malformed source file is fatal at
// startup rather than at first request.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	paths := config.NewPaths(cfg)
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	otelCfg := infrastructure.DefaultOTelConfig()
	otelProviders, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	instruments, err := infrastructure.NewDashboardMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("register instruments: %w", err)
	}

	hub := websocket.NewHub(logger)

	store := dataset.NewStore(dataset.NewLoader(paths, logger), paths, logger)
	dashboard := services.NewDashboardService(store, cfg, logger, hub).WithInstruments(instruments)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := dashboard.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial dataset load: %w", err)
	}

	app := &Application{
		cfg:          cfg,
		logger:       logger,
		otel:         otelProviders,
		instruments:  instruments,
		hub:          hub,
		dashboard:    dashboard,
		errorHandler: apierrors.NewErrorHandler(logger, cfg.Logging.Level == "debug"),
	}
	app.router = app.setupRouter()
	app.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        app.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return app, nil
}

func (a *Application) setupRouter() chi.Router {
	r := chi.NewRouter()

	// Order matters: request ID first so everything downstream logs with a
	// trace ID.
	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(a.logger))
	r.Use(custommw.Metrics(a.instruments))
	r.Use(custommw.Recoverer(a.logger))
	r.Use(custommw.SecurityHeaders)
	r.Use(custommw.Compress(5))

	if a.cfg.Security.EnableCORS {
		r.Use(custommw.CORS(custommw.CORSConfig{
			AllowedOrigins: a.cfg.Security.AllowedOrigins,
			Logger:         a.logger,
		}))
	}

	if rl := a.cfg.Security.RateLimit; rl.Enabled {
		limiter := custommw.NewRateLimiter(rl.RPS, rl.Burst, a.logger)
		r.Use(limiter.Handler)
	}

	r.Use(custommw.Timeout(a.cfg.Server.WriteTimeout, a.logger))

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	r.Mount("/api/dashboard", transport.NewDashboardHandler(a.dashboard, a.errorHandler, a.logger).Routes())
	r.Mount("/api/health", transport.NewHealthHandler(a.dashboard, a.logger, Version).Routes())

	if a.otel.PrometheusHTTP != nil {
		r.Handle("/metrics", a.otel.PrometheusHTTP)
	}

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		if err := websocket.ServeWS(a.hub, a.logger, w, req); err != nil {
			a.logger.ErrorContext(req.Context(), "websocket upgrade failed",
				slog.String("error", err.Error()))
		}
	})

	return r
}

// Run starts the server and blocks until shutdown.
func (a *Application) Run() error {
	a.hub.Start()
	defer a.hub.Stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			slog.String("addr", a.server.Addr),
			slog.String("version", Version))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
	}
	infrastructure.CloseLogFile()

	a.logger.Info("server stopped")
	return nil
}

// Router exposes the HTTP handler, mainly for tests.
func (a *Application) Router() chi.Router {
	return a.router
}
