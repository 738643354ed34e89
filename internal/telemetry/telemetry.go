// Package telemetry exports the store's spans over OTLP/HTTP when an
// endpoint is configured in the environment.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/mesh-intelligence/sectional/internal/paths"
)

// Settings control span export.
type Settings struct {
	Endpoint    string  `env:"SECTIONAL_OTEL_ENDPOINT"`
	Enabled     string  `env:"SECTIONAL_OTEL_ENABLED"`
	SampleRatio float64 `env:"SECTIONAL_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := paths.ParseEnv(&s); err != nil {
		return Settings{}, err
	}
	if s.SampleRatio < 0 || s.SampleRatio > 1 {
		return Settings{}, fmt.Errorf("SECTIONAL_OTEL_SAMPLE_RATIO must be within [0, 1], got %v", s.SampleRatio)
	}
	return s, nil
}

// Active reports whether spans should be exported: an endpoint is set and
// export was not switched off.
func (s Settings) Active() bool {
	return s.Endpoint != "" && !strings.EqualFold(s.Enabled, "false")
}

// Setup installs a global tracer provider for the sectional binary and
// returns its flush function. Without an active configuration nothing is
// installed and the returned function does nothing.
func Setup(ctx context.Context, service, version string) (func(context.Context) error, error) {
	none := func(context.Context) error { return nil }

	settings, err := LoadSettings()
	if err != nil {
		return none, err
	}
	if !settings.Active() {
		return none, nil
	}

	tp, err := newProvider(ctx, settings, service, version)
	if err != nil {
		return none, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

func newProvider(ctx context.Context, settings Settings, service, version string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(settings.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(service),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("describing service: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(settings.SampleRatio))),
	), nil
}
