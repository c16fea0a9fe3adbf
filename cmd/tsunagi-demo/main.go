// Command tsunagi-demo runs a small instrumented workload through the bridge:
// OTel spans on one side, Sentry transactions (and optionally OTLP) on the other.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/tsunagi"
	"github.com/ashita-ai/tsunagi/internal/config"
	"github.com/ashita-ai/tsunagi/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("TSUNAGI_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("tsunagi demo starting", "version", version, "service", cfg.ServiceName)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
	})
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	defer sentry.Flush(2 * time.Second)

	processor, err := tsunagi.New(
		tsunagi.WithLogger(logger),
		tsunagi.WithPruneInterval(cfg.PruneInterval),
	)
	if err != nil {
		return fmt.Errorf("init bridge: %w", err)
	}

	otelShutdown, err := telemetry.Init(ctx, processor, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	monitor := tsunagi.NewMonitor(processor, logger, cfg.MonitorInterval)
	monitor.Start(ctx)
	defer monitor.Stop()

	tracer := otel.Tracer("tsunagi-demo")

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "stats", fmt.Sprintf("%+v", processor.Stats()))
			return ctx.Err()
		case <-ticker.C:
			simulateRequest(ctx, tracer, i)
		}
	}
}

// simulateRequest emits one server trace with a db child span; every fifth
// request fails and records an exception event.
func simulateRequest(ctx context.Context, tracer trace.Tracer, n int) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("demo request %d", n),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/orders/{id}"),
		),
	)
	defer span.End()

	_, dbSpan := tracer.Start(ctx, "SELECT orders",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.statement", "SELECT * FROM orders WHERE id = $1"),
		),
	)
	time.Sleep(10 * time.Millisecond)
	dbSpan.End()

	if n%5 == 4 {
		span.AddEvent("exception", trace.WithAttributes(
			attribute.String("exception.type", "demo.OrderNotFound"),
			attribute.String("exception.message", "no such order"),
		))
		span.SetAttributes(attribute.Int("http.status_code", 404))
		span.SetStatus(codes.Error, "not found")
	}
}
