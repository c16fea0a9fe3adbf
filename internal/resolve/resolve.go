// Package resolve derives Sentry naming and status from OTel span metadata.
//
// Both entry points are pure functions over the span snapshot and its
// normalized attribute set; the processor calls them synchronously on the
// span-end path.
package resolve

import (
	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/tsunagi/internal/attrs"
)

// Description is the derived naming for one span: the Sentry operation, the
// human-readable description, and where the transaction name came from.
type Description struct {
	Op     string
	Text   string
	Source sentry.TransactionSource
}

// Describe maps (span name, kind, attributes) to a Description.
//
// The rules are ordered and first-match wins; each branch is gated on
// attribute presence, never on value truthiness. Reordering them changes
// which convention claims ambiguous spans (an HTTP client call to a
// database proxy carries both http.* and db.* attributes).
func Describe(name string, kind trace.SpanKind, set attrs.Set) Description {
	if method, ok := set.String(attrs.HTTPMethod, attrs.HTTPRequestMethod); ok {
		switch {
		case kind == trace.SpanKindClient:
			return Description{Op: "http.client", Text: method, Source: sentry.SourceCustom}
		case set.Has(attrs.HTTPRoute):
			route, _ := set.String(attrs.HTTPRoute)
			return Description{Op: "http.server", Text: method + " " + route, Source: sentry.SourceRoute}
		case set.Has(attrs.HTTPTarget):
			target, _ := set.String(attrs.HTTPTarget)
			source := sentry.SourceURL
			// A bare "/" is the route, not an arbitrary URL.
			if target == "/" {
				source = sentry.SourceRoute
			}
			return Description{Op: "http.server", Text: method + " " + target, Source: source}
		default:
			return Description{Op: "http.server", Text: name, Source: sentry.SourceCustom}
		}
	}
	if set.Has(attrs.DBSystem) {
		text := name
		if stmt, ok := set.String(attrs.DBStatement); ok {
			text = stmt
		}
		return Description{Op: "db", Text: text, Source: sentry.SourceTask}
	}
	if set.Has(attrs.RPCService) {
		return Description{Op: "rpc", Text: name, Source: sentry.SourceRoute}
	}
	if set.Has(attrs.MessagingSystem) {
		return Description{Op: "message", Text: name, Source: sentry.SourceRoute}
	}
	if trigger, ok := set.String(attrs.FaaSTrigger); ok {
		return Description{Op: trigger, Text: name, Source: sentry.SourceRoute}
	}
	return Description{Op: name, Text: name, Source: sentry.SourceCustom}
}

// Status maps the OTel status code and attributes to a Sentry span status.
//
// An explicit otel.status_code=ERROR attribute wins over the generic code;
// error statuses are refined through the HTTP or gRPC status attribute when
// one is present, and degrade to "unknown" otherwise.
func Status(code codes.Code, set attrs.Set) sentry.SpanStatus {
	if marker, ok := set.String(attrs.OTelStatusCode); ok && marker == "ERROR" {
		return errorStatus(set)
	}
	switch code {
	case codes.Unset, codes.Ok:
		return sentry.SpanStatusOK
	case codes.Error:
		return errorStatus(set)
	default:
		return sentry.SpanStatusUnknown
	}
}

func errorStatus(set attrs.Set) sentry.SpanStatus {
	if httpCode, ok := set.Int(attrs.HTTPStatusCode, attrs.HTTPResponseStatusCode); ok {
		return sentry.HTTPtoSpanStatus(httpCode)
	}
	if grpcCode, ok := set.Int(attrs.RPCGRPCStatusCode); ok {
		return grpcToSpanStatus(grpcCode)
	}
	return sentry.SpanStatusUnknown
}

// grpcToSpanStatus converts a numeric gRPC status code. Sentry span statuses
// mirror the gRPC code space, so this is a positional mapping.
func grpcToSpanStatus(code int) sentry.SpanStatus {
	switch code {
	case 0:
		return sentry.SpanStatusOK
	case 1:
		return sentry.SpanStatusCanceled
	case 2:
		return sentry.SpanStatusUnknown
	case 3:
		return sentry.SpanStatusInvalidArgument
	case 4:
		return sentry.SpanStatusDeadlineExceeded
	case 5:
		return sentry.SpanStatusNotFound
	case 6:
		return sentry.SpanStatusAlreadyExists
	case 7:
		return sentry.SpanStatusPermissionDenied
	case 8:
		return sentry.SpanStatusResourceExhausted
	case 9:
		return sentry.SpanStatusFailedPrecondition
	case 10:
		return sentry.SpanStatusAborted
	case 11:
		return sentry.SpanStatusOutOfRange
	case 12:
		return sentry.SpanStatusUnimplemented
	case 13:
		return sentry.SpanStatusInternalError
	case 14:
		return sentry.SpanStatusUnavailable
	case 15:
		return sentry.SpanStatusDataLoss
	case 16:
		return sentry.SpanStatusUnauthenticated
	default:
		return sentry.SpanStatusUnknown
	}
}
