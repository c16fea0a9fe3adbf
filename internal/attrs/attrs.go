// Package attrs normalizes OpenTelemetry attribute sets into a typed lookup.
//
// The bridge interprets a fixed set of semantic-convention keys. They are
// declared here rather than imported from a semconv package because the
// convention names the bridge must honor span multiple semconv releases
// (http.method predates http.request.method; both appear in the wild).
package attrs

import (
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// Semantic-convention keys interpreted by the bridge.
const (
	HTTPMethod             = "http.method"
	HTTPRequestMethod      = "http.request.method"
	HTTPRoute              = "http.route"
	HTTPTarget             = "http.target"
	HTTPURL                = "http.url"
	URLFull                = "url.full"
	HTTPStatusCode         = "http.status_code"
	HTTPResponseStatusCode = "http.response.status_code"
	DBSystem               = "db.system"
	DBStatement            = "db.statement"
	RPCService             = "rpc.service"
	RPCGRPCStatusCode      = "rpc.grpc.status_code"
	MessagingSystem        = "messaging.system"
	FaaSTrigger            = "faas.trigger"
	OTelStatusCode         = "otel.status_code"

	// Exception event marker convention.
	ExceptionEventName  = "exception"
	ExceptionType       = "exception.type"
	ExceptionMessage    = "exception.message"
	ExceptionStacktrace = "exception.stacktrace"
)

// Set is a normalized read-only view over a span's attributes.
// The zero value is an empty set. Pure data, safe to copy.
type Set struct {
	kv map[attribute.Key]attribute.Value
}

// New builds a Set from a raw attribute slice.
// On duplicate keys the last occurrence wins, matching SDK merge behavior.
func New(raw []attribute.KeyValue) Set {
	if len(raw) == 0 {
		return Set{}
	}
	kv := make(map[attribute.Key]attribute.Value, len(raw))
	for _, a := range raw {
		kv[a.Key] = a.Value
	}
	return Set{kv: kv}
}

// Len returns the number of attributes in the set.
func (s Set) Len() int { return len(s.kv) }

// Has reports whether key is present, regardless of its value.
func (s Set) Has(key string) bool {
	_, ok := s.kv[attribute.Key(key)]
	return ok
}

// String returns the first present key rendered as a string.
// Non-string values are emitted in their canonical text form.
func (s Set) String(keys ...string) (string, bool) {
	for _, key := range keys {
		v, ok := s.kv[attribute.Key(key)]
		if !ok {
			continue
		}
		if v.Type() == attribute.STRING {
			return v.AsString(), true
		}
		return v.Emit(), true
	}
	return "", false
}

// Int returns the first present key as an integer. Integer-typed values are
// used directly; string values that parse as integers are accepted because
// some instrumentation records status codes as strings.
func (s Set) Int(keys ...string) (int, bool) {
	for _, key := range keys {
		v, ok := s.kv[attribute.Key(key)]
		if !ok {
			continue
		}
		switch v.Type() {
		case attribute.INT64:
			return int(v.AsInt64()), true
		case attribute.STRING:
			if n, err := strconv.Atoi(v.AsString()); err == nil {
				return n, true
			}
		}
		return 0, false
	}
	return 0, false
}

// Map renders the set as a plain map for span data and event contexts.
// Returns nil for an empty set.
func (s Set) Map() map[string]any {
	if len(s.kv) == 0 {
		return nil
	}
	out := make(map[string]any, len(s.kv))
	for k, v := range s.kv {
		out[string(k)] = v.AsInterface()
	}
	return out
}
