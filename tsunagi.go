// Package tsunagi bridges OpenTelemetry tracing onto Sentry performance
// monitoring.
//
// The bridge is an OTel span processor: register it on a TracerProvider and
// every span started by the application's instrumentation becomes a Sentry
// child span, or a new root transaction when it has no in-flight local
// parent. Parent structure, timing, semantic-convention naming, and
// status carry over; exception event markers become correlated Sentry error
// events.
//
//	err := sentry.Init(sentry.ClientOptions{
//	    Dsn:              dsn,
//	    EnableTracing:    true,
//	    TracesSampleRate: 1.0,
//	})
//	if err != nil { ... }
//
//	processor, err := tsunagi.New(tsunagi.WithLogger(logger))
//	if err != nil { ... }
//
//	tp := sdktrace.NewTracerProvider(
//	    sdktrace.WithSpanProcessor(processor),
//	)
//	otel.SetTracerProvider(tp)
//
// The processor's OnStart/OnEnd are safe to call concurrently from any
// goroutine. A failure while handling one span is logged and absorbed; it
// never affects other in-flight spans.
package tsunagi

import "errors"

// ErrNoClient is returned by New when the bound hub has no initialized Sentry
// client. The bridge cannot start transactions without one: call sentry.Init
// (or bind a hub via WithHub) before constructing the processor.
var ErrNoClient = errors.New("tsunagi: sentry client not initialized")
