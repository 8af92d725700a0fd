// Package telemetry wires tracing and run metrics for a leaderboard run.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerName is the instrumentation scope used by every span in this module.
const TracerName = "github-leaderboard"

const (
	traceModeOff      = "off"
	traceModeSampled  = "sampled"
	traceModeDetailed = "detailed"
)

// TracingConfig configures OpenTelemetry tracing setup.
type TracingConfig struct {
	ServiceName      string
	TraceMode        string
	TraceSampleRatio float64
	// Logger receives one debug entry per finished span. Nil disables span logging.
	Logger *zap.Logger
}

// Runtime contains the initialized tracer provider and its shutdown hook.
type Runtime struct {
	TracerProvider *sdktrace.TracerProvider
	Shutdown       func(ctx context.Context) error
}

// SetupTracing installs a global tracer provider for the configured mode.
func SetupTracing(cfg TracingConfig) (Runtime, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = TracerName
	}

	mode := normalizeTraceMode(cfg.TraceMode)

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return Runtime{}, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(samplerForMode(mode, cfg.TraceSampleRatio)),
		sdktrace.WithResource(res),
	}
	if cfg.Logger != nil && mode != traceModeOff {
		opts = append(opts, sdktrace.WithSpanProcessor(&logSpanProcessor{logger: cfg.Logger}))
	}
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return Runtime{
		TracerProvider: provider,
		Shutdown:       provider.Shutdown,
	}, nil
}

// Tracer returns the module tracer from the global provider. Until SetupTracing
// runs, spans are non-recording.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func samplerForMode(mode string, ratio float64) sdktrace.Sampler {
	switch mode {
	case traceModeOff:
		return sdktrace.NeverSample()
	case traceModeDetailed:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(ratio)))
	}
}

func normalizeTraceMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case traceModeSampled:
		return traceModeSampled
	case traceModeDetailed:
		return traceModeDetailed
	default:
		return traceModeOff
	}
}

func clampRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// logSpanProcessor writes finished spans to the run log.
type logSpanProcessor struct {
	logger *zap.Logger
}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := []zap.Field{
		zap.String("span", s.Name()),
		zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
		zap.String("trace_id", s.SpanContext().TraceID().String()),
		zap.String("status", s.Status().Code.String()),
	}
	for _, attr := range s.Attributes() {
		fields = append(fields, zap.String(string(attr.Key), attr.Value.Emit()))
	}
	p.logger.Debug("span finished", fields...)
}

func (p *logSpanProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *logSpanProcessor) ForceFlush(context.Context) error {
	return nil
}
