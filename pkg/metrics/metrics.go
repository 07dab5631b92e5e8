// Package metrics provides Prometheus collectors for the connection pool
// and the table accessors.
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.NewCollector("tabular", reg)
//
//	p, _ := pool.New(connector, creds, pool.Options{Metrics: collector})
//	users := accessor.New("users", p, loop, accessor.WithMetrics(collector))
//
// A nil *Collector is valid and records nothing, so components can be built
// without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a pooled connection is destroyed
const (
	ReasonIdle     = "idle"
	ReasonBroken   = "broken"
	ReasonClosed   = "closed"
	ReasonExplicit = "explicit"
)

// Operation outcome labels
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Collector groups every tabular metric registered on one Registerer.
type Collector struct {
	connectionsLive    prometheus.Gauge
	connectionsIdle    prometheus.Gauge
	waiters            prometheus.Gauge
	connectionsCreated prometheus.Counter
	connectionsReused  prometheus.Counter
	connectionsClosed  *prometheus.CounterVec
	connectFailures    prometheus.Counter
	acquireWait        prometheus.Histogram
	operations         *prometheus.CounterVec
	operationLatency   *prometheus.HistogramVec
}

// NewCollector registers the collectors on reg under namespace.
// Registering twice on the same Registerer panics, as with promauto.
//
// Example:
//
//	collector := metrics.NewCollector("tabular", prometheus.DefaultRegisterer)
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		connectionsLive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "connections",
			Help:      "Number of live connections (idle and in use)",
		}),
		connectionsIdle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "idle_connections",
			Help:      "Number of idle connections",
		}),
		waiters: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "waiting_acquires",
			Help:      "Number of acquire calls queued for a connection",
		}),
		connectionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "connections_created_total",
			Help:      "Total connections opened",
		}),
		connectionsReused: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "connections_reused_total",
			Help:      "Total acquires served by an existing connection",
		}),
		connectionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "connections_closed_total",
			Help:      "Total connections closed",
		}, []string{"reason"}),
		connectFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "connect_failures_total",
			Help:      "Total failed connect or select-database attempts",
		}),
		acquireWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting for a connection",
			Buckets: []float64{
				0.0001, // 100μs - idle hit
				0.001,  // 1ms
				0.01,   // 10ms - fresh connect on a LAN
				0.1,    // 100ms
				1,      // 1s - queued behind slow queries
				10,
			},
		}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accessor",
			Name:      "operations_total",
			Help:      "Total accessor operations",
		}, []string{"table", "operation", "status"}),
		operationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "accessor",
			Name:      "operation_duration_seconds",
			Help:      "Accessor operation latency from acquire to result",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table", "operation"}),
	}
}

// PoolState records the current pool gauges.
func (c *Collector) PoolState(live, idle, waiting int) {
	if c == nil {
		return
	}
	c.connectionsLive.Set(float64(live))
	c.connectionsIdle.Set(float64(idle))
	c.waiters.Set(float64(waiting))
}

// ConnectionCreated counts a successful connect.
func (c *Collector) ConnectionCreated() {
	if c == nil {
		return
	}
	c.connectionsCreated.Inc()
}

// ConnectionReused counts an acquire served without connecting.
func (c *Collector) ConnectionReused() {
	if c == nil {
		return
	}
	c.connectionsReused.Inc()
}

// ConnectionClosed counts a destroyed connection by reason.
func (c *Collector) ConnectionClosed(reason string) {
	if c == nil {
		return
	}
	c.connectionsClosed.WithLabelValues(reason).Inc()
}

// ConnectFailed counts a failed connection attempt.
func (c *Collector) ConnectFailed() {
	if c == nil {
		return
	}
	c.connectFailures.Inc()
}

// AcquireWaited observes how long an acquire took.
func (c *Collector) AcquireWaited(d time.Duration) {
	if c == nil {
		return
	}
	c.acquireWait.Observe(d.Seconds())
}

// Operation records one finished accessor operation.
func (c *Collector) Operation(table, operation string, err error, d time.Duration) {
	if c == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	c.operations.WithLabelValues(table, operation, status).Inc()
	c.operationLatency.WithLabelValues(table, operation).Observe(d.Seconds())
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called
// repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// RegisterRuntime adds the Go runtime and process collectors to reg.
func RegisterRuntime(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
