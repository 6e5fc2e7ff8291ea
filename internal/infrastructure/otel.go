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
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "hosting-relay"
	ServiceVersion = "1.2.0"
	MeterName      = "hosting"
)

// OTelConfig holds OpenTelemetry configuration
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

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig returns a default OpenTelemetry configuration
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
		EnableTracing:  true,
		SampleRatio:    1.0,
	}
}

// InitializeOTel initializes OpenTelemetry tracing and metrics
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}

	ctx := context.Background()

	logger.InfoContext(ctx, "Initializing OpenTelemetry",
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providers := &OTelProviders{
		Logger: logger,
	}

	if cfg.EnableTracing {
		if err := initializeTracing(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if cfg.EnableMetrics {
		if err := initializeMetrics(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	// Set up global propagators for trace context
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialization complete",
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	return providers, nil
}

// createResource creates the OpenTelemetry resource
func createResource(cfg *OTelConfig) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	), nil
}

// initializeTracing sets up OpenTelemetry tracing
func initializeTracing(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "stdout":
		exporter, err = stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
	case "none":
		return nil
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)

	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))

	otel.SetTracerProvider(tp)

	providers.Logger.InfoContext(ctx, "Tracing initialized",
		slog.String("exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return nil
}

// initializeMetrics sets up OpenTelemetry metrics
func initializeMetrics(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.MetricExporter {
	case "prometheus":
		exporter, err := prometheus.New()
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}

		providers.PrometheusHTTP = promhttp.Handler()

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)

		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))

		otel.SetMeterProvider(mp)

	case "none":
		return nil
	default:
		return fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	providers.Logger.InfoContext(ctx, "Metrics initialized",
		slog.String("exporter", cfg.MetricExporter))

	return nil
}

// CreateBusinessMetrics creates application-specific metrics
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	// HTTP metrics
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

	// License validation metrics
	licenseValidationChecks, err := meter.Int64Counter(
		"license_validation_checks_total",
		metric.WithDescription("Total number of license validation checks"),
	)
	if err != nil {
		return nil, err
	}

	licenseValidationFailures, err := meter.Int64Counter(
		"license_validation_failures_total",
		metric.WithDescription("Total number of license validation failures"),
	)
	if err != nil {
		return nil, err
	}

	licenseValidationDuration, err := meter.Float64Histogram(
		"license_validation_duration_seconds",
		metric.WithDescription("License validation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	licenseBindConflicts, err := meter.Int64Counter(
		"license_bind_conflicts_total",
		metric.WithDescription("Total number of rejected hardware or address rebind attempts"),
	)
	if err != nil {
		return nil, err
	}

	authorityRequests, err := meter.Int64Counter(
		"authority_requests_total",
		metric.WithDescription("Total number of requests sent to the license authority"),
	)
	if err != nil {
		return nil, err
	}

	authorityFailures, err := meter.Int64Counter(
		"authority_failures_total",
		metric.WithDescription("Total number of failed license authority requests"),
	)
	if err != nil {
		return nil, err
	}

	// Session metrics
	sessionsIssued, err := meter.Int64Counter(
		"sessions_issued_total",
		metric.WithDescription("Total number of session tokens issued"),
	)
	if err != nil {
		return nil, err
	}

	sessionResolutions, err := meter.Int64Counter(
		"session_resolutions_total",
		metric.WithDescription("Total number of session token resolutions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	sessionsActive, err := meter.Int64UpDownCounter(
		"sessions_active",
		metric.WithDescription("Number of live session tokens"),
	)
	if err != nil {
		return nil, err
	}

	sessionsPruned, err := meter.Int64Counter(
		"sessions_pruned_total",
		metric.WithDescription("Total number of session records removed by the janitor"),
	)
	if err != nil {
		return nil, err
	}

	pinsIssued, err := meter.Int64Counter(
		"address_pins_issued_total",
		metric.WithDescription("Total number of address pins issued"),
	)
	if err != nil {
		return nil, err
	}

	pinsRedeemed, err := meter.Int64Counter(
		"address_pins_redeemed_total",
		metric.WithDescription("Total number of address pins consumed by validation"),
	)
	if err != nil {
		return nil, err
	}

	// Relay metrics
	relayForwards, err := meter.Int64Counter(
		"relay_forwards_total",
		metric.WithDescription("Total number of requests forwarded to the relay backend"),
	)
	if err != nil {
		return nil, err
	}

	relayForwardDuration, err := meter.Float64Histogram(
		"relay_forward_duration_seconds",
		metric.WithDescription("Relay forward duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	relayFailures, err := meter.Int64Counter(
		"relay_failures_total",
		metric.WithDescription("Total number of failed relay forwards"),
	)
	if err != nil {
		return nil, err
	}

	relayActiveJobs, err := meter.Int64UpDownCounter(
		"relay_active_jobs",
		metric.WithDescription("Number of relay jobs currently tracked as running"),
	)
	if err != nil {
		return nil, err
	}

	// Security metrics
	validationAttemptsBlocked, err := meter.Int64Counter(
		"validation_attempts_blocked_total",
		metric.WithDescription("Total number of validation attempts blocked by the attempt limiter"),
	)
	if err != nil {
		return nil, err
	}

	rateLimitedRequests, err := meter.Int64Counter(
		"rate_limited_requests_total",
		metric.WithDescription("Total number of requests rejected by the rate limiter"),
	)
	if err != nil {
		return nil, err
	}

	// System metrics
	systemErrors, err := meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
	)
	if err != nil {
		return nil, err
	}

	systemUptime, err := meter.Float64UpDownCounter(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &BusinessMetrics{
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		HTTPActiveRequests:  httpActiveRequests,

		LicenseValidationChecks:   licenseValidationChecks,
		LicenseValidationFailures: licenseValidationFailures,
		LicenseValidationDuration: licenseValidationDuration,
		LicenseBindConflicts:      licenseBindConflicts,
		AuthorityRequests:         authorityRequests,
		AuthorityFailures:         authorityFailures,

		SessionsIssued:     sessionsIssued,
		SessionResolutions: sessionResolutions,
		SessionsActive:     sessionsActive,
		SessionsPruned:     sessionsPruned,
		PinsIssued:         pinsIssued,
		PinsRedeemed:       pinsRedeemed,

		RelayForwards:        relayForwards,
		RelayForwardDuration: relayForwardDuration,
		RelayFailures:        relayFailures,
		RelayActiveJobs:      relayActiveJobs,

		ValidationAttemptsBlocked: validationAttemptsBlocked,
		RateLimitedRequests:       rateLimitedRequests,

		SystemErrors: systemErrors,
		SystemUptime: systemUptime,
	}, nil
}

// BusinessMetrics holds all application-specific metrics
type BusinessMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// License validation metrics
	LicenseValidationChecks   metric.Int64Counter
	LicenseValidationFailures metric.Int64Counter
	LicenseValidationDuration metric.Float64Histogram
	LicenseBindConflicts      metric.Int64Counter
	AuthorityRequests         metric.Int64Counter
	AuthorityFailures         metric.Int64Counter

	// Session metrics
	SessionsIssued     metric.Int64Counter
	SessionResolutions metric.Int64Counter
	SessionsActive     metric.Int64UpDownCounter
	SessionsPruned     metric.Int64Counter
	PinsIssued         metric.Int64Counter
	PinsRedeemed       metric.Int64Counter

	// Relay metrics
	RelayForwards        metric.Int64Counter
	RelayForwardDuration metric.Float64Histogram
	RelayFailures        metric.Int64Counter
	RelayActiveJobs      metric.Int64UpDownCounter

	// Security metrics
	ValidationAttemptsBlocked metric.Int64Counter
	RateLimitedRequests       metric.Int64Counter

	// System metrics
	SystemErrors metric.Int64Counter
	SystemUptime metric.Float64UpDownCounter
}

// Shutdown gracefully shuts down OpenTelemetry providers
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

	p.Logger.InfoContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}

// generateInstanceID generates a unique instance identifier
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext extracts trace ID from context for logging correlation
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// SpanFromContext returns the current span from context
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span with structured attributes
func AddSpanEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanAttributes sets attributes on the current span
func SetSpanAttributes(ctx context.Context, attributes map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			span.SetAttributes(attribute.String(k, val))
		case int:
			span.SetAttributes(attribute.Int(k, val))
		case int64:
			span.SetAttributes(attribute.Int64(k, val))
		case float64:
			span.SetAttributes(attribute.Float64(k, val))
		case bool:
			span.SetAttributes(attribute.Bool(k, val))
		default:
			span.SetAttributes(attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
}

// RecordValidationMetrics records metrics for a license validation attempt
func RecordValidationMetrics(ctx context.Context, metrics *BusinessMetrics, duration time.Duration, success bool, err error) {
	if metrics == nil {
		return
	}

	metrics.LicenseValidationChecks.Add(ctx, 1)

	statusAttr := attribute.String("status", "success")
	if !success {
		statusAttr = attribute.String("status", "failure")
	}
	metrics.LicenseValidationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(statusAttr))

	if err != nil {
		metrics.LicenseValidationFailures.Add(ctx, 1,
			metric.WithAttributes(attribute.String("error.type", fmt.Sprintf("%T", err))))
	}
}

// RecordSessionResolution records the outcome of a session token resolution
func RecordSessionResolution(ctx context.Context, metrics *BusinessMetrics, outcome string) {
	if metrics == nil {
		return
	}

	metrics.SessionResolutions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRelayMetrics records metrics for a relay forward
func RecordRelayMetrics(ctx context.Context, metrics *BusinessMetrics, operation string, duration time.Duration, success bool, err error) {
	if metrics == nil {
		return
	}

	opAttr := attribute.String("operation", operation)

	metrics.RelayForwards.Add(ctx, 1, metric.WithAttributes(opAttr))

	statusAttr := attribute.String("status", "success")
	if !success {
		statusAttr = attribute.String("status", "failure")
	}
	metrics.RelayForwardDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(opAttr, statusAttr))

	if err != nil {
		metrics.RelayFailures.Add(ctx, 1,
			metric.WithAttributes(opAttr, attribute.String("error.type", fmt.Sprintf("%T", err))))
	}
}

// RecordActiveJobChange records changes in the tracked relay job count
func RecordActiveJobChange(ctx context.Context, metrics *BusinessMetrics, delta int64) {
	if metrics == nil {
		return
	}

	metrics.RelayActiveJobs.Add(ctx, delta)
}
