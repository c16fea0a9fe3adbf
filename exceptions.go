package tsunagi

import (
	"encoding/hex"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ashita-ai/tsunagi/internal/attrs"
)

// captureExceptionEvents synthesizes Sentry error events from the ended
// span's exception event markers.
//
// Best effort, per marker: a marker without exception.type carries too little
// to report and is skipped; a marker the hub rejects is logged and skipped.
// Neither aborts processing of the remaining markers or of the span itself.
func (p *SpanProcessor) captureExceptionEvents(hub *sentry.Hub, s sdktrace.ReadOnlySpan, set attrs.Set, span *sentry.Span) {
	for _, marker := range s.Events() {
		if marker.Name != attrs.ExceptionEventName {
			continue
		}
		markerSet := attrs.New(marker.Attributes)

		typ, ok := markerSet.String(attrs.ExceptionType)
		if !ok || typ == "" {
			p.logger.Debug("tsunagi: exception marker without a type, skipping",
				"span_id", span.SpanID.String())
			continue
		}
		message, _ := markerSet.String(attrs.ExceptionMessage)
		stacktrace, _ := markerSet.String(attrs.ExceptionStacktrace)

		event := sentry.NewEvent()
		event.EventID = newEventID()
		event.Level = sentry.LevelError
		event.Timestamp = marker.Time
		event.Exception = []sentry.Exception{{Type: typ, Value: message}}

		otelCtx := sentry.Context{}
		if m := set.Map(); m != nil {
			otelCtx["attributes"] = m
		}
		if stacktrace != "" {
			otelCtx["stack_trace"] = stacktrace
		}
		if len(otelCtx) > 0 {
			event.Contexts["otel"] = otelCtx
		}

		// Correlate explicitly: ambient scope state is unreliable at
		// finalize time, so the owning trace's identifiers override it.
		traceCtx := sentry.Context{
			"trace_id": span.TraceID.String(),
			"span_id":  span.SpanID.String(),
		}
		if span.ParentSpanID != (sentry.SpanID{}) {
			traceCtx["parent_span_id"] = span.ParentSpanID.String()
		}
		event.Contexts["trace"] = traceCtx

		if id := hub.CaptureEvent(event); id == nil {
			p.logger.Debug("tsunagi: exception event was not accepted",
				"exception_type", typ, "span_id", span.SpanID.String())
		}
	}
}

// newEventID returns a Sentry-format event ID: 32 lowercase hex characters.
func newEventID() sentry.EventID {
	id := uuid.New()
	return sentry.EventID(hex.EncodeToString(id[:]))
}
