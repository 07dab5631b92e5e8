package pool

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabular/pkg/config"
	"github.com/ajitpratap0/tabular/pkg/driver"
	"github.com/ajitpratap0/tabular/pkg/errors"
	"github.com/ajitpratap0/tabular/pkg/metrics"
)

const (
	// DefaultMaxConnections is used when Options.MaxConnections is zero
	DefaultMaxConnections = 10
	// DefaultIdleTimeout is used when Options.IdleTimeout is zero
	DefaultIdleTimeout = 30 * time.Second

	minReapInterval = 10 * time.Millisecond
)

// Options configures a Pool. Zero values select the defaults.
type Options struct {
	MaxConnections int
	IdleTimeout    time.Duration
	// ReapInterval is how often idle connections are checked; zero means IdleTimeout/2
	ReapInterval time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Collector
}

// OptionsFromConfig maps the pool section of the configuration.
func OptionsFromConfig(cfg config.PoolConfig) Options {
	return Options{
		MaxConnections: cfg.MaxConnections,
		IdleTimeout:    cfg.IdleTimeout(),
		ReapInterval:   cfg.ReapInterval(),
	}
}

func (o *Options) normalize() error {
	if o.MaxConnections < 0 {
		return errors.New(errors.ErrorTypeValidation, "max connections cannot be negative").
			WithDetail("max_connections", o.MaxConnections)
	}
	if o.IdleTimeout < 0 {
		return errors.New(errors.ErrorTypeValidation, "idle timeout cannot be negative").
			WithDetail("idle_timeout", o.IdleTimeout)
	}
	if o.MaxConnections == 0 {
		o.MaxConnections = DefaultMaxConnections
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = o.IdleTimeout / 2
	}
	if o.ReapInterval < minReapInterval {
		o.ReapInterval = minReapInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return nil
}

// Pool manages a bounded set of lazily opened sessions. Idle sessions are
// reused most recently released first; blocked acquirers are served in
// arrival order.
type Pool struct {
	connector driver.Connector
	creds     driver.Credentials
	opts      Options
	logger    *zap.Logger
	metrics   *metrics.Collector

	mu      sync.Mutex
	idle    []*Conn
	live    int
	inUse   int
	waiters *list.List // of *waiter
	closed  bool
	nextID  uint64

	totalCreated   int64
	totalDestroyed int64
	totalReused    int64

	reapTicker *time.Ticker
	stopCh     chan struct{}
	reapDone   chan struct{}
	closeOnce  sync.Once
}

// Stats describes the pool at one instant.
type Stats struct {
	Live      int   `json:"live"`
	Idle      int   `json:"idle"`
	InUse     int   `json:"in_use"`
	Waiting   int   `json:"waiting"`
	Created   int64 `json:"created"`
	Destroyed int64 `json:"destroyed"`
	Reused    int64 `json:"reused"`
}

// grant is what a queued acquirer receives: a released connection, a
// reserved slot to open a new one (conn == nil), or an error.
type grant struct {
	conn *Conn
	err  error
}

type waiter struct {
	ch chan grant
}

// New creates a pool and starts its idle reaper. No connection is opened
// until the first Acquire.
func New(connector driver.Connector, creds driver.Credentials, opts Options) (*Pool, error) {
	if connector == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "connector is required")
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	p := &Pool{
		connector: connector,
		creds:     creds,
		opts:      opts,
		logger:    opts.Logger.With(zap.String("component", "connection_pool")),
		metrics:   opts.Metrics,
		waiters:   list.New(),
		stopCh:    make(chan struct{}),
		reapDone:  make(chan struct{}),
	}

	p.reapTicker = time.NewTicker(opts.ReapInterval)
	go p.reapLoop()

	p.logger.Debug("connection pool created",
		zap.Int("max_connections", opts.MaxConnections),
		zap.Duration("idle_timeout", opts.IdleTimeout),
		zap.Duration("reap_interval", opts.ReapInterval))

	return p, nil
}

// Acquire returns an idle connection, opens a new one when below the
// limit, or waits in line for a release. The caller owns the connection
// until Release or Destroy.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.ErrPoolClosed
	}

	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.checkoutLocked(c)
		p.totalReused++
		p.publishLocked()
		p.mu.Unlock()

		p.metrics.ConnectionReused()
		p.metrics.AcquireWaited(time.Since(start))
		p.logger.Debug("reusing connection",
			zap.Uint64("conn_id", c.id),
			zap.Int64("use_count", c.useCount),
			zap.Duration("age", time.Since(c.createdAt)))
		return c, nil
	}

	if p.live < p.opts.MaxConnections {
		p.live++
		p.publishLocked()
		p.mu.Unlock()
		return p.open(ctx, start)
	}

	w := &waiter{ch: make(chan grant, 1)}
	elem := p.waiters.PushBack(w)
	p.publishLocked()
	waiting := p.waiters.Len()
	p.mu.Unlock()

	p.logger.Debug("pool exhausted, waiting for a connection", zap.Int("waiting", waiting))

	select {
	case g := <-w.ch:
		return p.fulfil(ctx, g, start)
	case <-ctx.Done():
	}

	p.mu.Lock()
	select {
	case g := <-w.ch:
		// granted while giving up: pass it on
		p.mu.Unlock()
		p.returnGrant(g)
	default:
		p.waiters.Remove(elem)
		p.publishLocked()
		p.mu.Unlock()
	}

	return nil, errors.Wrap(ctx.Err(), errors.ErrorTypePool, "acquire cancelled")
}

func (p *Pool) fulfil(ctx context.Context, g grant, start time.Time) (*Conn, error) {
	switch {
	case g.err != nil:
		return nil, g.err
	case g.conn != nil:
		p.metrics.ConnectionReused()
		p.metrics.AcquireWaited(time.Since(start))
		return g.conn, nil
	default:
		return p.open(ctx, start)
	}
}

// returnGrant undoes a grant that arrived after its acquirer gave up.
func (p *Pool) returnGrant(g grant) {
	switch {
	case g.err != nil:
	case g.conn != nil:
		p.Release(g.conn)
	default:
		p.mu.Lock()
		p.live--
		p.serveWaitersLocked()
		p.publishLocked()
		p.mu.Unlock()
	}
}

// open creates a connection in a slot already counted in p.live.
func (p *Pool) open(ctx context.Context, start time.Time) (*Conn, error) {
	raw, err := driver.Open(ctx, p.connector, p.creds)
	if err != nil {
		p.mu.Lock()
		p.live--
		p.serveWaitersLocked()
		p.publishLocked()
		p.mu.Unlock()

		p.metrics.ConnectFailed()
		p.logger.Error("failed to open connection",
			zap.String("addr", p.creds.Addr()),
			zap.String("database", p.creds.Database),
			zap.Error(err))
		return nil, err
	}

	now := time.Now()
	p.mu.Lock()
	if p.closed {
		p.live--
		p.publishLocked()
		p.mu.Unlock()
		_ = raw.Close()
		return nil, errors.ErrPoolClosed
	}
	p.nextID++
	c := &Conn{
		pool:      p,
		raw:       raw,
		id:        p.nextID,
		createdAt: now,
		lastUsed:  now,
	}
	p.checkoutLocked(c)
	p.totalCreated++
	p.publishLocked()
	live := p.live
	p.mu.Unlock()

	p.metrics.ConnectionCreated()
	p.metrics.AcquireWaited(time.Since(start))
	p.logger.Debug("created new connection",
		zap.Uint64("conn_id", c.id),
		zap.Int("live", live))
	return c, nil
}

// Release returns c to the pool. A healthy connection goes to the oldest
// waiter or back to the idle set; a broken one, or any connection of a
// closed pool, is closed.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}

	p.mu.Lock()
	if c.pool != p || !c.inUse {
		p.mu.Unlock()
		p.logger.Warn("release of a connection not held from this pool", zap.Uint64("conn_id", c.id))
		return
	}
	c.inUse = false
	p.inUse--

	if c.broken || p.closed {
		reason := metrics.ReasonBroken
		if !c.broken {
			reason = metrics.ReasonClosed
		}
		p.dropLocked()
		p.mu.Unlock()
		p.closeConn(c, reason)
		return
	}

	c.lastUsed = time.Now()

	if front := p.waiters.Front(); front != nil {
		w := p.waiters.Remove(front).(*waiter)
		p.checkoutLocked(c)
		p.totalReused++
		p.publishLocked()
		w.ch <- grant{conn: c}
		p.mu.Unlock()

		p.logger.Debug("handed connection to waiter", zap.Uint64("conn_id", c.id))
		return
	}

	p.idle = append(p.idle, c)
	p.publishLocked()
	idle := len(p.idle)
	p.mu.Unlock()

	p.logger.Debug("returned connection to pool",
		zap.Uint64("conn_id", c.id),
		zap.Int("idle", idle))
}

// Destroy closes c instead of returning it; the freed slot lets the next
// waiter open a replacement.
func (p *Pool) Destroy(c *Conn) {
	if c == nil {
		return
	}

	p.mu.Lock()
	if c.pool != p || !c.inUse {
		p.mu.Unlock()
		p.logger.Warn("destroy of a connection not held from this pool", zap.Uint64("conn_id", c.id))
		return
	}
	c.inUse = false
	p.inUse--
	p.dropLocked()
	p.mu.Unlock()

	p.closeConn(c, metrics.ReasonExplicit)
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

// Close closes idle connections and fails queued acquirers with
// ErrPoolClosed. Connections still in use are closed when released.
// Close is idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		idle := p.idle
		p.idle = nil
		p.live -= len(idle)
		p.totalDestroyed += int64(len(idle))
		for e := p.waiters.Front(); e != nil; e = e.Next() {
			e.Value.(*waiter).ch <- grant{err: errors.ErrPoolClosed}
		}
		failed := p.waiters.Len()
		p.waiters.Init()
		p.publishLocked()
		inUse := p.inUse
		p.mu.Unlock()

		close(p.stopCh)
		<-p.reapDone

		for _, c := range idle {
			p.closeConn(c, metrics.ReasonClosed)
		}

		p.logger.Info("connection pool closed",
			zap.Int("closed_idle", len(idle)),
			zap.Int("failed_waiters", failed),
			zap.Int("in_use", inUse))
	})
}

func (p *Pool) reapLoop() {
	defer close(p.reapDone)
	defer p.reapTicker.Stop()

	for {
		select {
		case <-p.reapTicker.C:
			p.reap(time.Now())
		case <-p.stopCh:
			return
		}
	}
}

// reap closes idle connections unused for longer than the idle timeout.
func (p *Pool) reap(now time.Time) {
	p.mu.Lock()
	var expired []*Conn
	kept := p.idle[:0]
	for _, c := range p.idle {
		if now.Sub(c.lastUsed) > p.opts.IdleTimeout {
			expired = append(expired, c)
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = kept
	p.live -= len(expired)
	p.totalDestroyed += int64(len(expired))
	p.serveWaitersLocked()
	p.publishLocked()
	remaining := len(p.idle)
	p.mu.Unlock()

	for _, c := range expired {
		p.closeConn(c, metrics.ReasonIdle)
	}

	if len(expired) > 0 {
		p.logger.Info("cleaned up idle connections",
			zap.Int("cleaned", len(expired)),
			zap.Int("remaining_idle", remaining))
	}
}

func (p *Pool) checkoutLocked(c *Conn) {
	c.inUse = true
	c.useCount++
	p.inUse++
}

// dropLocked forgets an in-use connection that is about to be closed.
func (p *Pool) dropLocked() {
	p.live--
	p.totalDestroyed++
	p.serveWaitersLocked()
	p.publishLocked()
}

// serveWaitersLocked hands free slots to queued acquirers, oldest first.
func (p *Pool) serveWaitersLocked() {
	for !p.closed && p.live < p.opts.MaxConnections {
		front := p.waiters.Front()
		if front == nil {
			return
		}
		w := p.waiters.Remove(front).(*waiter)
		p.live++
		w.ch <- grant{}
	}
}

func (p *Pool) closeConn(c *Conn, reason string) {
	if err := c.raw.Close(); err != nil {
		p.logger.Debug("error closing connection", zap.Uint64("conn_id", c.id), zap.Error(err))
	}
	p.metrics.ConnectionClosed(reason)
	p.logger.Debug("closed connection",
		zap.Uint64("conn_id", c.id),
		zap.String("reason", reason),
		zap.Int64("use_count", c.useCount))
}

func (p *Pool) statsLocked() Stats {
	return Stats{
		Live:      p.live,
		Idle:      len(p.idle),
		InUse:     p.inUse,
		Waiting:   p.waiters.Len(),
		Created:   p.totalCreated,
		Destroyed: p.totalDestroyed,
		Reused:    p.totalReused,
	}
}

func (p *Pool) publishLocked() {
	p.metrics.PoolState(p.live, len(p.idle), p.waiters.Len())
}
