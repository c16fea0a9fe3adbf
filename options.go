package tsunagi

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/zoobzio/clockz"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanFinalizer is called once per span at the end of processing, just before
// the span is finished, for last-moment customization. src is the ended OTel
// span the Sentry span was derived from.
type SpanFinalizer func(span *sentry.Span, src sdktrace.ReadOnlySpan)

// StatusPrecedence controls which status wins when both the finalizer
// callback and the semantic-convention rules produce one.
type StatusPrecedence int

const (
	// StatusDerived overwrites the span status with the one derived from
	// span attributes, even when the finalizer set its own. The default.
	StatusDerived StatusPrecedence = iota
	// StatusCallback keeps a status the finalizer set; the derived status
	// applies only when the finalizer left it untouched.
	StatusCallback
)

// Option configures a SpanProcessor.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	hub                *sentry.Hub
	logger             *slog.Logger
	clock              clockz.Clock
	pruneInterval      time.Duration
	resourceAttributes func() map[string]any
	finalizer          SpanFinalizer
	statusPrecedence   StatusPrecedence
}

// WithHub binds the processor to a specific hub instead of sentry.CurrentHub().
// The hub is the fallback for spans whose start context carries no hub of
// its own, and the target for shutdown flushes.
func WithHub(hub *sentry.Hub) Option {
	return func(o *resolvedOptions) { o.hub = hub }
}

// WithLogger sets the structured logger for the processor.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithClock injects the clock used to rate-limit registry pruning.
// Intended for tests; production uses the real clock.
func WithClock(clock clockz.Clock) Option {
	return func(o *resolvedOptions) { o.clock = clock }
}

// WithPruneInterval overrides the minimum gap between registry pruning
// sweeps (default 5s). Non-positive values keep the default.
func WithPruneInterval(interval time.Duration) Option {
	return func(o *resolvedOptions) { o.pruneInterval = interval }
}

// WithResourceAttributes replaces the default process-wide resource attribute
// source (the ended span's own SDK resource). The function is called at most
// once per processor; its result is cached and attached to every transaction.
func WithResourceAttributes(fn func() map[string]any) Option {
	return func(o *resolvedOptions) { o.resourceAttributes = fn }
}

// WithSpanFinalizer registers a callback invoked for every span just before
// it is finished. If multiple are registered, only the last takes effect.
func WithSpanFinalizer(fn SpanFinalizer) Option {
	return func(o *resolvedOptions) { o.finalizer = fn }
}

// WithStatusPrecedence sets the precedence between a status set by the span
// finalizer and the status derived from span attributes (default StatusDerived).
func WithStatusPrecedence(p StatusPrecedence) Option {
	return func(o *resolvedOptions) { o.statusPrecedence = p }
}
