// Package telemetry wires a TracerProvider with the Tsunagi bridge processor
// and, optionally, OTLP exporters side by side.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown combines multiple shutdown functions.
type Shutdown func(ctx context.Context) error

// Init configures the global OpenTelemetry tracer and meter providers with
// the given bridge processor installed. If endpoint is non-empty, OTLP trace
// and metric exporters run next to the bridge, so the same spans reach both
// backends. Returns a shutdown function that must be called during graceful
// shutdown.
func Init(ctx context.Context, processor sdktrace.SpanProcessor, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	traceProviderOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
	}

	if endpoint != "" {
		traceOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
		}
		if insecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		}
		traceExp, err := otlptracehttp.New(ctx, traceOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
		}
		traceProviderOpts = append(traceProviderOpts,
			sdktrace.WithBatcher(traceExp,
				sdktrace.WithBatchTimeout(5*time.Second),
			),
		)
	}

	tp := sdktrace.NewTracerProvider(traceProviderOpts...)
	otel.SetTracerProvider(tp)

	// Register W3C Trace Context and Baggage propagators. Baggage extraction
	// is what carries a remote trace's dynamic sampling context into the
	// bridge's root transactions.
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	var mp *sdkmetric.MeterProvider
	if endpoint != "" {
		metricOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(endpoint),
		}
		if insecure {
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
		}
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(
				sdkmetric.NewPeriodicReader(metricExp,
					sdkmetric.WithInterval(15*time.Second),
				),
			),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
	}

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if mp != nil {
			if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	return shutdown, nil
}
