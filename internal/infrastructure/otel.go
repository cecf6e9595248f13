package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "malaria-watch-rwanda"
	ServiceVersion = "v1.0.0"
	MeterName      = "malariawatch"
)

// OTelConfig holds OpenTelemetry configuration.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout", "none"
	MetricExporter string // "prometheus", "none"
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64
}

// OTelProviders holds the OpenTelemetry providers.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig returns a default OpenTelemetry configuration.
func DefaultOTelConfig() *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    env,
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		EnableMetrics:  true,
		EnableTracing:  env == "development",
		SampleRatio:    1.0,
	}
}

// InitializeOTel initializes the tracer and meter providers.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}

	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	)

	providers := &OTelProviders{Logger: logger}

	if cfg.EnableTracing && cfg.TraceExporter == "stdout" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		)
		providers.TracerProvider = tp
		providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetTracerProvider(tp)
	}

	if cfg.EnableMetrics && cfg.MetricExporter == "prometheus" {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		providers.PrometheusHTTP = promhttp.Handler()

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetMeterProvider(mp)
	} else {
		providers.Meter = noop.NewMeterProvider().Meter(MeterName)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialization complete",
		slog.Bool("tracing_enabled", providers.TracerProvider != nil),
		slog.Bool("metrics_enabled", providers.MeterProvider != nil))

	return providers, nil
}

// DashboardMetrics holds the application-specific instruments.
type DashboardMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	DatasetReloadsTotal metric.Int64Counter
	DatasetLoadDuration metric.Float64Histogram
	DatasetJoinWarnings metric.Int64Counter

	ViewComputationsTotal   metric.Int64Counter
	ViewComputationDuration metric.Float64Histogram
	ViewCacheHits           metric.Int64Counter
}

// NewDashboardMetrics registers the application-specific instruments.
func NewDashboardMetrics(meter metric.Meter) (*DashboardMetrics, error) {
	httpRequestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	httpRequestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	httpActiveRequests, err := meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	datasetReloadsTotal, err := meter.Int64Counter(
		"dataset_reloads_total",
		metric.WithDescription("Total number of dataset load or reload operations"),
	)
	if err != nil {
		return nil, err
	}

	datasetLoadDuration, err := meter.Float64Histogram(
		"dataset_load_duration_seconds",
		metric.WithDescription("Dataset parse and join duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	datasetJoinWarnings, err := meter.Int64Counter(
		"dataset_join_warnings_total",
		metric.WithDescription("Attribute rows dropped for lack of a matching boundary"),
	)
	if err != nil {
		return nil, err
	}

	viewComputationsTotal, err := meter.Int64Counter(
		"view_computations_total",
		metric.WithDescription("Total number of derived view computations"),
	)
	if err != nil {
		return nil, err
	}

	viewComputationDuration, err := meter.Float64Histogram(
		"view_computation_duration_seconds",
		metric.WithDescription("Derived view computation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	viewCacheHits, err := meter.Int64Counter(
		"view_cache_hits_total",
		metric.WithDescription("Memoized view results served without recomputation"),
	)
	if err != nil {
		return nil, err
	}

	return &DashboardMetrics{
		HTTPRequestsTotal:       httpRequestsTotal,
		HTTPRequestDuration:     httpRequestDuration,
		HTTPActiveRequests:      httpActiveRequests,
		DatasetReloadsTotal:     datasetReloadsTotal,
		DatasetLoadDuration:     datasetLoadDuration,
		DatasetJoinWarnings:     datasetJoinWarnings,
		ViewComputationsTotal:   viewComputationsTotal,
		ViewComputationDuration: viewComputationDuration,
		ViewCacheHits:           viewCacheHits,
	}, nil
}

// Shutdown gracefully shuts down the OpenTelemetry providers.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}
	return nil
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}
