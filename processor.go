package tsunagi

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/zoobzio/clockz"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/tsunagi/internal/attrs"
	"github.com/ashita-ai/tsunagi/internal/registry"
	"github.com/ashita-ai/tsunagi/internal/resolve"
)

// defaultFlushTimeout bounds Shutdown/ForceFlush when the caller's context
// carries no deadline.
const defaultFlushTimeout = 2 * time.Second

// SpanProcessor converts OTel spans into Sentry transactions and child spans.
//
// One processor instance serves one TracerProvider for the lifetime of the
// process. All methods are safe for concurrent use.
type SpanProcessor struct {
	hub       *sentry.Hub
	logger    *slog.Logger
	reg       *registry.Registry
	finalizer SpanFinalizer
	statusPre StatusPrecedence

	// apiURL is the Sentry ingestion endpoint; spans describing requests to
	// it are transport self-traffic and are discarded to break the
	// instrumented-transport feedback loop. nil disables the filter.
	apiURL *url.URL

	resourceOnce sync.Once
	resourceFn   func() map[string]any
	resource     map[string]any

	started  atomic.Int64
	finished atomic.Int64
	dropped  atomic.Int64
}

var _ sdktrace.SpanProcessor = (*SpanProcessor)(nil)

// New constructs the bridge processor. The Sentry SDK must already be
// initialized on the bound hub: construction fails with ErrNoClient when it
// is not, rather than deferring the failure to the first span.
func New(opts ...Option) (*SpanProcessor, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.hub == nil {
		o.hub = sentry.CurrentHub()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = clockz.RealClock
	}

	client := o.hub.Client()
	if client == nil {
		return nil, ErrNoClient
	}

	p := &SpanProcessor{
		hub:        o.hub,
		logger:     o.logger,
		reg:        registry.New(o.clock, o.pruneInterval),
		finalizer:  o.finalizer,
		statusPre:  o.statusPrecedence,
		resourceFn: o.resourceAttributes,
	}

	if raw := client.Options().Dsn; raw != "" {
		dsn, err := sentry.NewDsn(raw)
		if err == nil {
			p.apiURL = dsn.GetAPIURL()
		}
	}

	return p, nil
}

// OnStart maps a newly started OTel span onto a Sentry child span when its
// parent is in flight, or onto a new root transaction otherwise. An
// unresolvable parent is not an error; it is the defined trigger for
// starting a new trace root.
func (p *SpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	sc := s.SpanContext()
	spanID := sc.SpanID()
	parentSC := s.Parent()

	// Only a hub actually present on the start context is recorded on the
	// entry; the finalize-time parent-chain walk supplies the fallback.
	ctxHub := sentry.GetHubFromContext(parent)
	hub := ctxHub
	if hub == nil {
		hub = p.hub
	}

	var parentEntry *registry.Entry
	if parentSC.IsValid() && !parentSC.IsRemote() {
		parentEntry, _ = p.reg.Get(parentSC.SpanID())
	}

	if parentEntry != nil {
		span := parentEntry.Span.StartChild(s.Name())
		span.SpanID = sentry.SpanID(spanID)
		span.StartTime = s.StartTime()
		span.Status = sentry.SpanStatusOK
		p.reg.Set(spanID, &registry.Entry{Span: span, Source: s, Hub: ctxHub})
	} else {
		// No in-flight parent: new trace root. A remote parent decides the
		// initial sampling flag; otherwise the decision is the sampler's.
		sampled := sentry.SampledUndefined
		if parentSC.IsValid() && parentSC.IsRemote() {
			if parentSC.IsSampled() {
				sampled = sentry.SampledTrue
			} else {
				sampled = sentry.SampledFalse
			}
		}

		ctx := parent
		if sentry.GetHubFromContext(ctx) == nil {
			ctx = sentry.SetHubOnContext(ctx, hub)
		}
		tx := sentry.StartTransaction(ctx, s.Name(), sentry.WithSpanSampled(sampled))
		tx.SpanID = sentry.SpanID(spanID)
		tx.TraceID = sentry.TraceID(sc.TraceID())
		if parentSC.SpanID().IsValid() {
			tx.ParentSpanID = sentry.SpanID(parentSC.SpanID())
		}
		tx.StartTime = s.StartTime()
		tx.Status = sentry.SpanStatusOK

		// Propagated baggage rides along unchanged for trace-wide
		// sampling consistency.
		if dsc, ok := samplingContextFromBaggage(parent); ok {
			tx.SetDynamicSamplingContext(dsc)
		}

		// Bind the new root as the ambient current trace so events captured
		// while it is in flight correlate.
		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetContext("trace", sentry.Context{
				"trace_id": tx.TraceID.String(),
				"span_id":  tx.SpanID.String(),
			})
		})

		p.reg.Set(spanID, &registry.Entry{Span: tx, Source: s, Hub: ctxHub, IsRoot: true})
	}

	p.started.Add(1)
	p.reg.Prune()
}

// OnEnd finalizes the mapped Sentry span: naming and status resolution,
// timing, attribute transfer, exception synthesis, and removal from the
// registry. An end without a matching start is a logged protocol violation,
// never a crash.
func (p *SpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	defer p.reg.Prune()

	sc := s.SpanContext()
	spanID := sc.SpanID()
	set := attrs.New(s.Attributes())

	// The transport's own ingestion traffic is infrastructure noise, not
	// telemetry.
	if p.isIngestRequest(set) {
		if entry, ok := p.reg.Get(spanID); ok {
			entry.Dropped = true
			p.reg.Remove(spanID)
			p.dropped.Add(1)
		}
		return
	}

	entry, ok := p.reg.Get(spanID)
	if !ok {
		p.logger.Error("tsunagi: span ended without a matching start",
			"span_id", spanID.String(), "trace_id", sc.TraceID().String(), "name", s.Name())
		return
	}

	// A span whose backing trace was never sampled is excluded from the
	// payload; the decision is evaluated here, at finalize time. It must be
	// made before the end time is set: the transaction recorder includes
	// every child with a non-zero EndTime, finished or not.
	drop := entry.Dropped || (!entry.IsRoot && !sc.IsSampled())

	span := entry.Span
	desc := resolve.Describe(s.Name(), s.SpanKind(), set)
	span.Op = desc.Op
	span.Description = desc.Text
	if !drop {
		span.EndTime = s.StartTime().Add(s.EndTime().Sub(s.StartTime()))
	}

	if entry.IsRoot {
		span.Name = desc.Text
		span.Source = desc.Source

		otelCtx := sentry.Context{}
		if m := set.Map(); m != nil {
			otelCtx["attributes"] = m
		}
		if res := p.resourceAttrs(s); len(res) > 0 {
			otelCtx["resource"] = res
		}
		if len(otelCtx) > 0 {
			span.SetContext("otel", otelCtx)
		}
	} else {
		for k, v := range set.Map() {
			span.SetData(k, v)
		}
		span.SetData("otel.kind", s.SpanKind().String())
	}

	// Async middleware may pop its scope before the span formally ends;
	// finalize-time telemetry must run against the hub that saw the trace
	// start, not whatever scope happens to be ambient.
	hub := p.ownerHub(entry)

	p.captureExceptionEvents(hub, s, set, span)

	derived := resolve.Status(s.Status().Code, set)
	before := span.Status
	if p.finalizer != nil {
		p.finalizer(span, s)
	}
	if p.statusPre == StatusDerived || span.Status == before {
		span.Status = derived
	}

	if drop {
		p.dropped.Add(1)
	} else {
		span.Finish()
		p.finished.Add(1)
	}

	p.reg.Remove(spanID)
}

// Shutdown drops all in-flight registry entries and flushes buffered Sentry
// events, waiting up to the context deadline (2s when none is set).
func (p *SpanProcessor) Shutdown(ctx context.Context) error {
	p.reg.Clear()
	return p.flush(ctx)
}

// ForceFlush flushes buffered Sentry events without touching in-flight spans.
func (p *SpanProcessor) ForceFlush(ctx context.Context) error {
	return p.flush(ctx)
}

// GetSpan returns the Sentry span mapped to the given OTel span ID, for
// instrumentation layers that need to attach data to the in-flight span.
func (p *SpanProcessor) GetSpan(id trace.SpanID) (*sentry.Span, bool) {
	entry, ok := p.reg.Get(id)
	if !ok {
		return nil, false
	}
	return entry.Span, true
}

// Stats is a point-in-time snapshot of the processor's counters.
type Stats struct {
	Started  int64 // spans mapped at start
	Finished int64 // spans forwarded to Sentry
	Dropped  int64 // spans excluded from the payload
	Pruned   int64 // registry entries removed by sweeps
	InFlight int   // current registry depth
}

// Stats returns the current counter snapshot.
func (p *SpanProcessor) Stats() Stats {
	return Stats{
		Started:  p.started.Load(),
		Finished: p.finished.Load(),
		Dropped:  p.dropped.Load(),
		Pruned:   p.reg.Pruned(),
		InFlight: p.reg.Len(),
	}
}

func (p *SpanProcessor) flush(ctx context.Context) error {
	timeout := defaultFlushTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if client := p.hub.Client(); client != nil {
		client.Flush(timeout)
	}
	return ctx.Err()
}

// ownerHub walks the parent chain (self first) for the first entry that
// captured a hub at start time, falling back to the processor's own hub.
// The walk is read-only and tolerates concurrent removal of ancestors.
func (p *SpanProcessor) ownerHub(entry *registry.Entry) *sentry.Hub {
	for e := entry; e != nil; {
		if e.Hub != nil {
			return e.Hub
		}
		if e.Source == nil {
			break
		}
		parent := e.Source.Parent()
		if !parent.IsValid() || parent.IsRemote() {
			break
		}
		e, _ = p.reg.Get(parent.SpanID())
	}
	return p.hub
}

func (p *SpanProcessor) isIngestRequest(set attrs.Set) bool {
	if p.apiURL == nil {
		return false
	}
	raw, ok := set.String(attrs.HTTPURL, attrs.URLFull)
	if !ok {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.HasPrefix(raw, p.apiURL.String())
	}
	return u.Host == p.apiURL.Host
}

// resourceAttrs resolves the process-wide resource attributes exactly once
// per processor; concurrent first callers are serialized by the Once.
func (p *SpanProcessor) resourceAttrs(s sdktrace.ReadOnlySpan) map[string]any {
	p.resourceOnce.Do(func() {
		if p.resourceFn != nil {
			p.resource = p.resourceFn()
			return
		}
		res := s.Resource()
		if res == nil {
			return
		}
		kvs := res.Attributes()
		if len(kvs) == 0 {
			return
		}
		out := make(map[string]any, len(kvs))
		for _, kv := range kvs {
			out[string(kv.Key)] = kv.Value.AsInterface()
		}
		p.resource = out
	})
	return p.resource
}
