package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabular/pkg/accessor"
	"github.com/ajitpratap0/tabular/pkg/config"
	"github.com/ajitpratap0/tabular/pkg/driver"
	"github.com/ajitpratap0/tabular/pkg/driver/native"
	"github.com/ajitpratap0/tabular/pkg/driver/sqldriver"
	"github.com/ajitpratap0/tabular/pkg/errors"
	"github.com/ajitpratap0/tabular/pkg/metrics"
	"github.com/ajitpratap0/tabular/pkg/observability"
	"github.com/ajitpratap0/tabular/pkg/pool"
	"github.com/ajitpratap0/tabular/pkg/scheduler"
)

const dialTimeout = 10 * time.Second

// connectorFactory picks the driver adapter for a configuration.
type connectorFactory func(cfg *config.Config, log *zap.Logger) (driver.Connector, error)

func defaultConnector(cfg *config.Config, log *zap.Logger) (driver.Connector, error) {
	switch cfg.Database.Driver {
	case config.DriverNative:
		return native.NewConnector(log), nil
	case config.DriverSQL:
		return sqldriver.NewConnector(log, dialTimeout), nil
	}
	return nil, errors.New(errors.ErrorTypeConfig, "unknown database driver").
		WithDetail("driver", cfg.Database.Driver)
}

// app owns the pool, scheduler loop and telemetry for one command run.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	pool     *pool.Pool
	loop     *scheduler.Loop
	registry *prometheus.Registry
	metrics  *metrics.Collector
	tracing  *observability.Provider
}

func newApp(cfg *config.Config, log *zap.Logger, newConnector connectorFactory) (*app, error) {
	a := &app{cfg: cfg, logger: log}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.metrics = metrics.NewCollector(cfg.Metrics.Namespace, a.registry)
		if err := metrics.RegisterRuntime(a.registry); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to register runtime metrics")
		}
	}

	if cfg.Tracing.Enabled {
		tcfg := observability.DefaultConfig()
		tcfg.ServiceVersion = version
		tcfg.SamplingRate = cfg.Tracing.SamplingRate
		tp, err := observability.Init(tcfg)
		if err != nil {
			return nil, err
		}
		a.tracing = tp
	}

	connector, err := newConnector(cfg, log)
	if err != nil {
		return nil, err
	}

	opts := pool.OptionsFromConfig(cfg.Pool)
	opts.Logger = log
	opts.Metrics = a.metrics
	a.pool, err = pool.New(connector, driver.Credentials{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
	}, opts)
	if err != nil {
		return nil, err
	}

	a.loop = scheduler.New(log)
	return a, nil
}

// table opens an accessor and waits for its field list.
func (a *app) table(ctx context.Context, name string) (*accessor.Accessor, error) {
	acc := accessor.New(name, a.pool, a.loop,
		accessor.WithLogger(a.logger),
		accessor.WithMetrics(a.metrics))
	if err := acc.Wait(ctx); err != nil {
		return nil, err
	}
	return acc, nil
}

// do runs one accessor operation and blocks for its callback.
func (a *app) do(ctx context.Context, op func(cb accessor.Callback)) (*driver.Result, error) {
	type outcome struct {
		res *driver.Result
		err error
	}
	done := make(chan outcome, 1)
	op(func(err error, res *driver.Result) { done <- outcome{res: res, err: err} })

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeInternal, "operation timed out")
	}
}

// close drains callbacks, tears the pool down and flushes telemetry.
func (a *app) close(metricsFile string) error {
	a.loop.Close()
	a.pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to flush traces", zap.Error(err))
	}

	if metricsFile != "" && a.registry != nil {
		if err := prometheus.WriteToTextfile(metricsFile, a.registry); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write metrics file").
				WithDetail("path", metricsFile)
		}
	}
	_ = a.logger.Sync()
	return nil
}
