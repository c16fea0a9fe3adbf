// Package registry tracks in-flight Sentry spans keyed by OTel span ID.
//
// The registry is the only mutable shared state in the bridge. Every
// operation touches a single key; no call holds the lock while invoking
// external collaborators.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/zoobzio/clockz"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPruneInterval is the minimum gap between two pruning sweeps.
const DefaultPruneInterval = 5 * time.Second

// Entry correlates one OTel span with its Sentry counterpart for the span's
// lifetime. The root/child split is decided once at creation and never
// re-classified.
type Entry struct {
	Span   *sentry.Span           // child span, or the root transaction when IsRoot
	Source sdktrace.ReadWriteSpan // backing OTel span; drives the pruning predicate
	Hub    *sentry.Hub            // hub seen on the start context; nil when none
	IsRoot bool

	// Dropped marks the entry as excluded from the outgoing payload
	// (transport self-traffic, or a span whose trace was never sampled).
	Dropped bool
}

// Registry is a concurrent span map with opportunistic pruning.
// Safe for use from any goroutine.
type Registry struct {
	clock    clockz.Clock
	interval time.Duration

	mu      sync.RWMutex
	entries map[trace.SpanID]*Entry

	lastPrune atomic.Int64 // unix nanos of the last sweep
	pruned    atomic.Int64
}

// New creates a registry. A nil clock selects the real clock; a
// non-positive interval selects DefaultPruneInterval.
func New(clock clockz.Clock, interval time.Duration) *Registry {
	if clock == nil {
		clock = clockz.RealClock
	}
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	return &Registry{
		clock:    clock,
		interval: interval,
		entries:  make(map[trace.SpanID]*Entry),
	}
}

// Set inserts or replaces the entry for id.
func (r *Registry) Set(id trace.SpanID, e *Entry) {
	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()
}

// Get returns the entry for id.
func (r *Registry) Get(id trace.SpanID) (*Entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	return e, ok
}

// Remove deletes the entry for id. Removing an absent id is a no-op.
func (r *Registry) Remove(id trace.SpanID) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Len returns the number of in-flight entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.entries)
	r.mu.RUnlock()
	return n
}

// Clear drops all entries. Used on processor shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[trace.SpanID]*Entry)
	r.mu.Unlock()
}

// Pruned returns the total number of entries removed by sweeps.
func (r *Registry) Pruned() int64 { return r.pruned.Load() }

// Prune removes entries whose backing OTel span will never produce an end
// notification: the span has stopped recording without its trace being
// sampled, so the instrumentation layer discarded it after start. Returns the
// number of entries removed.
//
// At most one sweep runs per interval. Concurrent callers race on a CAS of
// the last-run timestamp; losers return immediately, so triggering Prune from
// the hot path costs two atomic loads in the common case.
func (r *Registry) Prune() int {
	now := r.clock.Now().UnixNano()
	last := r.lastPrune.Load()
	if now-last < r.interval.Nanoseconds() {
		return 0
	}
	if !r.lastPrune.CompareAndSwap(last, now) {
		return 0
	}

	// Collect stale IDs under the read lock, then delete under the write
	// lock. Entries inserted between the two passes are untouched.
	r.mu.RLock()
	var stale []trace.SpanID
	for id, e := range r.entries {
		if e.Source == nil {
			continue
		}
		if !e.Source.SpanContext().IsSampled() && !e.Source.IsRecording() {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	r.mu.Lock()
	removed := 0
	for _, id := range stale {
		if _, ok := r.entries[id]; ok {
			delete(r.entries, id)
			removed++
		}
	}
	r.mu.Unlock()

	r.pruned.Add(int64(removed))
	return removed
}
