package tsunagi

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/baggage"
)

// sentryBaggagePrefix marks baggage members that belong to Sentry's dynamic
// sampling context, per the trace-propagation convention.
const sentryBaggagePrefix = "sentry-"

// samplingContextFromBaggage extracts sentry-prefixed members propagated via
// OTel baggage into a frozen dynamic sampling context. The entries are opaque
// to the bridge and forwarded unchanged. Returns ok=false when the context
// carries no Sentry members.
func samplingContextFromBaggage(ctx context.Context) (sentry.DynamicSamplingContext, bool) {
	bag := baggage.FromContext(ctx)
	var entries map[string]string
	for _, m := range bag.Members() {
		key, ok := strings.CutPrefix(m.Key(), sentryBaggagePrefix)
		if !ok {
			continue
		}
		if entries == nil {
			entries = make(map[string]string)
		}
		entries[key] = m.Value()
	}
	if len(entries) == 0 {
		return sentry.DynamicSamplingContext{}, false
	}
	return sentry.DynamicSamplingContext{Entries: entries, Frozen: true}, true
}
