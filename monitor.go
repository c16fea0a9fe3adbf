package tsunagi

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// defaultMonitorInterval is how often the monitor logs a counter summary.
const defaultMonitorInterval = 30 * time.Second

// Monitor publishes bridge health as OTel metrics and periodically logs a
// counter summary. One explicitly constructed instance per processor; there
// is no implicit process-wide singleton.
//
// Start is idempotent; the loop shuts down at its next wake-up when the start
// context is canceled or Stop is called.
type Monitor struct {
	proc     *SpanProcessor
	logger   *slog.Logger
	interval time.Duration

	started      atomic.Bool
	cancelLoop   context.CancelFunc
	done         chan struct{}
	registration metric.Registration
}

// NewMonitor creates a monitor for proc. A nil logger uses the processor's;
// a non-positive interval selects the default (30s).
func NewMonitor(proc *SpanProcessor, logger *slog.Logger, interval time.Duration) *Monitor {
	if logger == nil {
		logger = proc.logger
	}
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	return &Monitor{
		proc:     proc,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start registers the OTel gauges and begins the summary loop.
// A second call logs a warning and returns without spawning another loop.
func (m *Monitor) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		m.logger.Warn("tsunagi: monitor already started")
		return
	}
	if err := m.registerMetrics(); err != nil {
		m.logger.Warn("tsunagi: metric registration failed", "error", err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancelLoop = cancel
	go m.loop(loopCtx)
}

// Stop cancels the summary loop, waits for it to exit, and unregisters the
// gauge callback so a stopped monitor is no longer observed.
// Safe to call multiple times; a no-op if Start was never called.
func (m *Monitor) Stop() {
	if !m.started.Load() || m.cancelLoop == nil {
		return
	}
	m.cancelLoop()
	<-m.done
	if m.registration != nil {
		_ = m.registration.Unregister()
		m.registration = nil
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := m.proc.Stats()
			m.logger.Debug("tsunagi: bridge stats",
				"in_flight", stats.InFlight,
				"started", stats.Started,
				"finished", stats.Finished,
				"dropped", stats.Dropped,
				"pruned", stats.Pruned,
			)
		}
	}
}

// registerMetrics registers observable OTEL gauges for bridge health.
// Called from Start() after the global meter provider has been initialized.
// One shared callback serves all five gauges so Stop can unregister them as
// a unit.
func (m *Monitor) registerMetrics() error {
	meter := otel.GetMeterProvider().Meter("tsunagi/bridge")

	depth, err := meter.Int64ObservableGauge("tsunagi.registry.depth",
		metric.WithDescription("Current number of in-flight spans in the registry"))
	if err != nil {
		return err
	}
	started, err := meter.Int64ObservableGauge("tsunagi.spans.started_total",
		metric.WithDescription("Total spans mapped at start"))
	if err != nil {
		return err
	}
	finished, err := meter.Int64ObservableGauge("tsunagi.spans.finished_total",
		metric.WithDescription("Total spans forwarded to Sentry"))
	if err != nil {
		return err
	}
	dropped, err := meter.Int64ObservableGauge("tsunagi.spans.dropped_total",
		metric.WithDescription("Total spans excluded from the payload"))
	if err != nil {
		return err
	}
	pruned, err := meter.Int64ObservableGauge("tsunagi.registry.pruned_total",
		metric.WithDescription("Total registry entries removed by pruning sweeps"))
	if err != nil {
		return err
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := m.proc.Stats()
		o.ObserveInt64(depth, int64(stats.InFlight))
		o.ObserveInt64(started, stats.Started)
		o.ObserveInt64(finished, stats.Finished)
		o.ObserveInt64(dropped, stats.Dropped)
		o.ObserveInt64(pruned, stats.Pruned)
		return nil
	}, depth, started, finished, dropped, pruned)
	if err != nil {
		return err
	}
	m.registration = reg
	return nil
}
