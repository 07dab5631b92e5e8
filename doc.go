// Package tabular provides pooled, schema-discovering access to MySQL tables.
//
// A process shares one connection pool and one scheduler loop between any
// number of table accessors. Each accessor learns its table's columns with
// a one-row probe when it is created, builds SQL for create, select, update
// and remove operations, and delivers results through callbacks that run
// serially on the loop.
//
// # Quick Start
//
//	cfg, err := config.Load("tabular.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	p, err := pool.New(native.NewConnector(logger.Get()), driver.Credentials{
//		Host:     cfg.Database.Host,
//		Port:     cfg.Database.Port,
//		User:     cfg.Database.User,
//		Password: cfg.Database.Password,
//		Database: cfg.Database.Name,
//	}, pool.OptionsFromConfig(cfg.Pool))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
//
//	loop := scheduler.New(logger.Get())
//	defer loop.Close()
//
//	users := accessor.New("users", p, loop)
//	if err := users.Wait(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	users.RegisterObserver([]accessor.Event{accessor.EventCreate}, func(e accessor.Event) {
//		logger.Info("users changed", zap.String("event", string(e)))
//	})
//
//	users.Select(ctx, &accessor.SelectOptions{
//		Where: accessor.Where{accessor.Compare("age", ">=", 18)},
//		Limit: 10,
//	}, func(err error, res *driver.Result) {
//		// runs on the loop goroutine
//	})
//
// # Key Packages
//
//	pkg/accessor      - Table accessor, WHERE clauses, observers
//	pkg/pool          - Bounded session pool with FIFO waiters and idle eviction
//	pkg/scheduler     - Serial callback loop
//	pkg/driver        - Driver contract plus go-mysql and database/sql adapters
//	pkg/sqlstring     - MySQL literal escaping
//	pkg/config        - YAML and environment configuration
//	pkg/errors        - Structured error handling
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus collectors
//	pkg/observability - OpenTelemetry tracing
//
// # Escaping
//
// Values written by Create and Update are escaped. Values inside WHERE
// comparisons are quoted but not escaped; callers that build conditions
// from untrusted input must validate it first.
//
// # Command Line
//
// cmd/tabular exposes the accessor operations:
//
//	tabular columns users
//	tabular select users --where "age>=18" --limit 10
//	tabular insert users --set name=ann --set age=31
//	tabular update users --set name=bob --where id=3
//	tabular delete users --where id=3
package tabular
