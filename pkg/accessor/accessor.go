// Package accessor provides a generic, schema-discovering accessor for one
// MySQL table. Operations build their SQL synchronously, run it on a pooled
// connection in the background and deliver results through callbacks that
// execute serially on a scheduler loop.
package accessor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabular/pkg/driver"
	"github.com/ajitpratap0/tabular/pkg/errors"
	"github.com/ajitpratap0/tabular/pkg/logger"
	"github.com/ajitpratap0/tabular/pkg/metrics"
	"github.com/ajitpratap0/tabular/pkg/observability"
	"github.com/ajitpratap0/tabular/pkg/pool"
)

// Operation names used in logs, metrics and span names
const (
	OpSelect = "select"
	OpCreate = "create"
	OpUpdate = "update"
	OpRemove = "remove"
)

// Callback receives the outcome of one operation. Exactly one of err and
// res is non-nil.
type Callback func(err error, res *driver.Result)

// ConnPool is the subset of *pool.Pool used by an Accessor
type ConnPool interface {
	Acquire(ctx context.Context) (*pool.Conn, error)
	Release(c *pool.Conn)
}

// Scheduler runs deferred functions one at a time, in the order given.
type Scheduler interface {
	Defer(fn func()) bool
}

// Option configures an Accessor
type Option func(*Accessor)

// WithLogger sets the base logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Accessor) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics records operation counts and latencies on c
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Accessor) { a.metrics = c }
}

// WithTracerProvider sets the provider spans are started from. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Accessor) { a.tp = tp }
}

// Accessor reads and writes one table.
type Accessor struct {
	table     string
	pool      ConnPool
	loop      Scheduler
	logger    *zap.Logger
	metrics   *metrics.Collector
	tp        trace.TracerProvider
	tracer    *observability.TableTracer
	observers *registry

	mu     sync.RWMutex
	fields []string
	known  map[string]struct{}

	ready     chan struct{}
	readyOnce sync.Once
	probeErr  error
}

// New creates an accessor for table and starts loading its field list with
// SELECT * FROM table LIMIT 1. It returns before the field list is known;
// writes issued until Ready is closed see an empty field list and drop
// every value.
func New(table string, p ConnPool, loop Scheduler, opts ...Option) *Accessor {
	a := &Accessor{
		table:     table,
		pool:      p,
		loop:      loop,
		logger:    logger.Get(),
		observers: newRegistry(),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "accessor"), zap.String("table", table))
	a.tracer = observability.NewTableTracer(table, a.tp)

	a.Select(context.Background(), &SelectOptions{Limit: 1, Offset: 0}, a.loadFields)
	return a
}

func (a *Accessor) loadFields(err error, res *driver.Result) {
	if err != nil {
		a.logger.Error("failed to load table fields", zap.Error(err))
		a.markReady(err)
		return
	}

	known := make(map[string]struct{}, len(res.Fields))
	for _, f := range res.Fields {
		known[f] = struct{}{}
	}

	a.mu.Lock()
	a.fields = append([]string(nil), res.Fields...)
	a.known = known
	a.mu.Unlock()

	a.logger.Debug("table fields loaded", zap.Strings("fields", res.Fields))
	a.markReady(nil)
}

func (a *Accessor) markReady(err error) {
	a.readyOnce.Do(func() {
		a.probeErr = err
		close(a.ready)
	})
}

// Table returns the table name
func (a *Accessor) Table() string { return a.table }

// Ready is closed once the field probe has finished, successfully or not.
func (a *Accessor) Ready() <-chan struct{} { return a.ready }

// Wait blocks until Ready is closed or ctx is done. It returns the probe
// error, if any.
func (a *Accessor) Wait(ctx context.Context) error {
	select {
	case <-a.ready:
		return a.probeErr
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrorTypeInternal, "waiting for table fields")
	}
}

// Fields returns a copy of the field list, empty before Ready.
func (a *Accessor) Fields() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.fields...)
}

func (a *Accessor) knownFields() map[string]struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.known
}

// Create inserts one row built from the values whose keys are table fields.
func (a *Accessor) Create(ctx context.Context, values map[string]interface{}, cb Callback) {
	sql := buildInsert(a.table, fieldValues(values, a.knownFields(), a.logger))
	a.run(ctx, OpCreate, EventCreate, sql, cb)
}

// Select reads rows. A nil opts selects everything.
func (a *Accessor) Select(ctx context.Context, opts *SelectOptions, cb Callback) {
	sql := buildSelect(a.table, opts, a.logger)
	a.run(ctx, OpSelect, EventSelect, sql, cb)
}

// Update sets values on the rows matching where. An empty where updates
// every row.
func (a *Accessor) Update(ctx context.Context, where Where, values map[string]interface{}, cb Callback) {
	sql := buildUpdate(a.table, fieldValues(values, a.knownFields(), a.logger), where, a.logger)
	a.run(ctx, OpUpdate, EventUpdate, sql, cb)
}

// Remove deletes the rows matching where. An empty where deletes every row.
func (a *Accessor) Remove(ctx context.Context, where Where, cb Callback) {
	sql := buildDelete(a.table, where, a.logger)
	a.run(ctx, OpRemove, EventRemove, sql, cb)
}

func (a *Accessor) run(ctx context.Context, operation string, event Event, sql string, cb Callback) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.WithOperation(ctx, a.table, operation, uuid.NewString())
	go a.execute(ctx, operation, event, sql, cb)
}

func (a *Accessor) execute(ctx context.Context, operation string, event Event, sql string, cb Callback) {
	log := logger.FromContext(ctx, a.logger)
	timer := metrics.NewTimer(operation)

	ctx, span := a.tracer.StartSpan(ctx, operation, sql)
	res, err := a.query(ctx, sql)
	elapsed := timer.Stop()

	if err != nil {
		log.Error("query failed", zap.String("sql", sql), zap.Error(err))
	} else {
		log.Debug("query executed",
			zap.String("sql", sql),
			zap.Duration("duration", elapsed),
			zap.Int("rows", len(res.Rows)),
			zap.Uint64("affected_rows", res.AffectedRows))
		span.SetAttribute("db.rows_returned", int64(len(res.Rows)))
		span.SetAttribute("db.rows_affected", int64(res.AffectedRows))
	}
	span.End(err)
	a.metrics.Operation(a.table, operation, err, elapsed)

	a.notify(event)

	if !a.loop.Defer(func() {
		if cb != nil {
			cb(err, res)
		}
	}) {
		log.Warn("scheduler closed, callback dropped", zap.String("sql", sql))
		a.markReady(errors.New(errors.ErrorTypeInternal, "scheduler closed before table fields were loaded"))
	}
}

// query runs sql on a pooled connection. The connection goes back to the
// pool on every path; a broken one is destroyed by the pool.
func (a *Accessor) query(ctx context.Context, sql string) (*driver.Result, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer a.pool.Release(conn)

	res, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed").WithDetail("sql", sql)
	}
	return res, nil
}
