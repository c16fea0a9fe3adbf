package registry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/tsunagi/internal/registry"
)

// recordOnlySampler records spans without sampling them, the state an
// instrumentation layer leaves a span in when it discards it after start.
type recordOnlySampler struct{}

func (recordOnlySampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	return sdktrace.SamplingResult{
		Decision:   sdktrace.RecordOnly,
		Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
	}
}

func (recordOnlySampler) Description() string { return "RecordOnly" }

func newSpan(t *testing.T, sampler sdktrace.Sampler) sdktrace.ReadWriteSpan {
	t.Helper()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sampler))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("registry-test").Start(context.Background(), "op")
	rw, ok := span.(sdktrace.ReadWriteSpan)
	require.True(t, ok, "SDK span must be a ReadWriteSpan")
	return rw
}

func id(rw sdktrace.ReadWriteSpan) trace.SpanID {
	return rw.SpanContext().SpanID()
}

func TestSetGetRemove(t *testing.T) {
	reg := registry.New(nil, 0)
	span := newSpan(t, sdktrace.AlwaysSample())

	_, ok := reg.Get(id(span))
	assert.False(t, ok)

	reg.Set(id(span), &registry.Entry{Source: span})
	e, ok := reg.Get(id(span))
	require.True(t, ok)
	assert.Same(t, span, e.Source)
	assert.Equal(t, 1, reg.Len())

	reg.Remove(id(span))
	_, ok = reg.Get(id(span))
	assert.False(t, ok)

	// Removing an absent id is a no-op, not an error.
	reg.Remove(id(span))
	assert.Equal(t, 0, reg.Len())
}

func TestPruneRemovesAbandonedEntries(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	reg := registry.New(clock, 5*time.Second)

	abandoned := newSpan(t, recordOnlySampler{})
	live := newSpan(t, recordOnlySampler{})
	sampled := newSpan(t, sdktrace.AlwaysSample())

	reg.Set(id(abandoned), &registry.Entry{Source: abandoned})
	reg.Set(id(live), &registry.Entry{Source: live})
	reg.Set(id(sampled), &registry.Entry{Source: sampled})

	// First sweep stamps the rate limiter; nothing is stale yet.
	assert.Equal(t, 0, reg.Prune())

	// The abandoned span ends without the registry hearing about it; the
	// sampled span ends too but its trace was recorded.
	abandoned.End()
	sampled.End()

	// Not before the interval elapses.
	assert.Equal(t, 0, reg.Prune())
	assert.Equal(t, 3, reg.Len())

	clock.Advance(5 * time.Second)
	assert.Equal(t, 1, reg.Prune())
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, int64(1), reg.Pruned())

	_, ok := reg.Get(id(abandoned))
	assert.False(t, ok, "abandoned entry should be pruned")
	_, ok = reg.Get(id(live))
	assert.True(t, ok, "recording entry must survive")
	_, ok = reg.Get(id(sampled))
	assert.True(t, ok, "sampled entry must survive until its own end")
}

func TestPruneIsRateLimited(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	reg := registry.New(clock, 5*time.Second)

	span := newSpan(t, recordOnlySampler{})
	reg.Set(id(span), &registry.Entry{Source: span})
	span.End()

	clock.Advance(5 * time.Second)
	assert.Equal(t, 1, reg.Prune())

	// A second stale entry appears immediately after a sweep: the next
	// Prune call inside the interval must not scan again.
	other := newSpan(t, recordOnlySampler{})
	reg.Set(id(other), &registry.Entry{Source: other})
	other.End()

	assert.Equal(t, 0, reg.Prune())
	assert.Equal(t, 1, reg.Len())

	clock.Advance(5 * time.Second)
	assert.Equal(t, 1, reg.Prune())
	assert.Equal(t, 0, reg.Len())
}

func TestConcurrentAccess(t *testing.T) {
	reg := registry.New(nil, time.Millisecond)

	const workers = 8
	const perWorker = 50

	// Spans are created up front: the SDK tracer is what hands out unique
	// span IDs, and require must not run off the test goroutine.
	spans := make([][]sdktrace.ReadWriteSpan, workers)
	for w := range spans {
		spans[w] = make([]sdktrace.ReadWriteSpan, perWorker)
		for i := range spans[w] {
			spans[w][i] = newSpan(t, sdktrace.AlwaysSample())
		}
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(own []sdktrace.ReadWriteSpan) {
			defer wg.Done()
			for _, span := range own {
				reg.Set(id(span), &registry.Entry{Source: span})
				reg.Get(id(span))
				reg.Prune()
				reg.Remove(id(span))
			}
		}(spans[w])
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len())
}
