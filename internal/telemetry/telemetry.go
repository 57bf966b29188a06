// Package telemetry configures OpenTelemetry tracing for reportgen.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/dusk-indust/reportgen/internal/logger"
)

// InstrumentationName names the tracer used by reportgen packages.
const InstrumentationName = "github.com/dusk-indust/reportgen"

// Exporter values.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config selects a span exporter and sampling.
type Config struct {
	// Exporter is one of none, stdout or otlp. Empty means none.
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards Endpoint.
	Insecure bool `yaml:"insecure"`

	// Headers are sent with every OTLP export.
	Headers map[string]string `yaml:"headers"`

	// SampleRatio is the root sampling ratio in [0,1].
	SampleRatio float64 `yaml:"sampleRatio"`

	ServiceName string `yaml:"serviceName"`
	Environment string `yaml:"environment"`
}

// Shutdown flushes and stops the installed provider.
type Shutdown func(context.Context) error

func nopShutdown(context.Context) error { return nil }

// Setup installs a global tracer provider according to cfg. With the none
// exporter the global no-op provider is left in place.
func Setup(ctx context.Context, log *logger.Logger, cfg Config, version string) (Shutdown, error) {
	log = logger.OrNop(log)
	kind := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if kind == "" || kind == ExporterNone {
		return nopShutdown, nil
	}

	exporter, err := newExporter(ctx, kind, cfg)
	if err != nil {
		return nopShutdown, err
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "reportgen"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
		attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
	))
	if err != nil {
		log.Warn("otel resource init failed (continuing)", "error", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(cfg.SampleRatio)))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("otel tracing initialized", "service", serviceName, "exporter", kind, "endpoint", cfg.Endpoint)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, kind string, cfg Config) (sdktrace.SpanExporter, error) {
	switch kind {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterOTLP:
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("telemetry: unknown exporter %q", kind)
	}
}

// ValidExporter reports whether name is a supported exporter value.
func ValidExporter(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ExporterNone, ExporterStdout, ExporterOTLP:
		return true
	}
	return false
}

func clampRatio(r float64) float64 {
	switch {
	case r <= 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

// Tracer returns the reportgen tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
