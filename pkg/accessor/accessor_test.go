package accessor

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/tabular/pkg/driver"
	"github.com/ajitpratap0/tabular/pkg/errors"
	"github.com/ajitpratap0/tabular/pkg/metrics"
	"github.com/ajitpratap0/tabular/pkg/pool"
	"github.com/ajitpratap0/tabular/pkg/scheduler"
	"github.com/ajitpratap0/tabular/pkg/testutil"
)

const wait = 2 * time.Second

type fixture struct {
	fake *testutil.FakeConnector
	pool *pool.Pool
	loop *scheduler.Loop
}

func newFixture(t *testing.T, maxConns int, fields ...string) *fixture {
	t.Helper()

	fake := testutil.NewFakeConnector(fields...)
	p, err := pool.New(fake, driver.Credentials{Host: "127.0.0.1", Port: 3306, Database: "shop"}, pool.Options{
		MaxConnections: maxConns,
		Logger:         testutil.TestLogger(t),
	})
	require.NoError(t, err)

	loop := scheduler.New(testutil.TestLogger(t))
	t.Cleanup(func() {
		loop.Close()
		p.Close()
	})
	return &fixture{fake: fake, pool: p, loop: loop}
}

// open returns an accessor whose field probe has completed.
func (f *fixture) open(t *testing.T, table string, opts ...Option) *Accessor {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.TestLogger(t))}, opts...)
	a := New(table, f.pool, f.loop, opts...)
	require.NoError(t, a.Wait(testutil.TestContext(t)))
	return a
}

type outcome struct {
	err error
	res *driver.Result
}

func collect() (Callback, chan outcome) {
	ch := make(chan outcome, 16)
	return func(err error, res *driver.Result) { ch <- outcome{err: err, res: res} }, ch
}

func TestNewProbesFieldsOnce(t *testing.T) {
	f := newFixture(t, 2, "id", "name", "email")
	a := f.open(t, "users")

	assert.Equal(t, []string{"SELECT * FROM users LIMIT 1;"}, f.fake.Statements())
	assert.Equal(t, []string{"id", "name", "email"}, a.Fields())
	assert.Equal(t, "users", a.Table())

	select {
	case <-a.Ready():
	default:
		t.Fatal("ready should be closed after Wait")
	}
}

func TestProbeFailureLeavesFieldsEmpty(t *testing.T) {
	f := newFixture(t, 1, "id")
	f.fake.OnQuery(func(context.Context, string) (*driver.Result, error) {
		return nil, stderrors.New("Table 'shop.missing' doesn't exist")
	})

	core, logs := observer.New(zapcore.ErrorLevel)
	a := New("missing", f.pool, f.loop, WithLogger(zap.New(core)))

	err := a.Wait(testutil.TestContext(t))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
	assert.Empty(t, a.Fields())
	assert.Equal(t, 1, logs.FilterMessage("failed to load table fields").Len())
}

func TestWaitHonoursContext(t *testing.T) {
	f := newFixture(t, 1, "id")
	gate := make(chan struct{})
	defer close(gate)
	f.fake.OnQuery(func(context.Context, string) (*driver.Result, error) {
		<-gate
		return &driver.Result{Fields: []string{"id"}}, nil
	})

	a := New("users", f.pool, f.loop, WithLogger(testutil.TestLogger(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Wait(ctx), context.DeadlineExceeded)
}

func TestCreateDropsUnknownFields(t *testing.T) {
	f := newFixture(t, 2, "id", "name")
	core, logs := observer.New(zapcore.WarnLevel)
	a := f.open(t, "users", WithLogger(zap.New(core)))

	cb, results := collect()
	a.Create(testutil.TestContext(t), map[string]interface{}{
		"id":    1,
		"name":  "O'Brien",
		"bogus": true,
	}, cb)

	out := testutil.Receive(t, results, wait)
	require.NoError(t, out.err)
	assert.Equal(t, uint64(1), out.res.InsertID)
	assert.Equal(t, "INSERT INTO users SET `id` = 1,`name` = 'O\\'Brien';", f.fake.Statements()[1])
	assert.Equal(t, 1, logs.FilterField(zap.String("field", "bogus")).Len())
}

func TestCreateBeforeFieldsLoadedWritesNoValues(t *testing.T) {
	f := newFixture(t, 2)
	gate := make(chan struct{})
	f.fake.OnQuery(func(_ context.Context, sql string) (*driver.Result, error) {
		if strings.HasPrefix(sql, "SELECT") {
			<-gate
			return &driver.Result{Fields: []string{"id", "name"}}, nil
		}
		return &driver.Result{AffectedRows: 1}, nil
	})

	a := New("users", f.pool, f.loop, WithLogger(testutil.TestLogger(t)))

	cb, results := collect()
	a.Create(testutil.TestContext(t), map[string]interface{}{"name": "early"}, cb)
	require.NoError(t, testutil.Receive(t, results, wait).err)
	assert.Contains(t, f.fake.Statements(), "INSERT INTO users SET ;")

	close(gate)
	require.NoError(t, a.Wait(testutil.TestContext(t)))
	assert.Equal(t, []string{"id", "name"}, a.Fields())
}

func TestSelectForms(t *testing.T) {
	f := newFixture(t, 2, "id", "name")
	f.fake.SetRows(map[string]interface{}{"id": int64(1), "name": "ann"})
	a := f.open(t, "users")
	ctx := testutil.TestContext(t)

	cb, results := collect()

	a.Select(ctx, nil, cb)
	out := testutil.Receive(t, results, wait)
	require.NoError(t, out.err)
	assert.Equal(t, []map[string]interface{}{{"id": int64(1), "name": "ann"}}, out.res.Rows)

	a.Select(ctx, &SelectOptions{
		Fields: []string{"id", "name"},
		Where:  Where{Eq("name", "O'Brien")},
		Limit:  "3abc",
		Offset: 2.9,
	}, cb)
	require.NoError(t, testutil.Receive(t, results, wait).err)

	stmts := f.fake.Statements()
	require.Len(t, stmts, 3)
	assert.Equal(t, "SELECT * FROM users;", stmts[1])
	assert.Equal(t, "SELECT `id`,`name` FROM users WHERE `name` = 'O'Brien'  LIMIT 3 OFFSET 2;", stmts[2])
}

func TestUpdateAndRemove(t *testing.T) {
	f := newFixture(t, 2, "id", "name")
	a := f.open(t, "users")
	ctx := testutil.TestContext(t)
	cb, results := collect()

	a.Update(ctx, Where{Eq("id", 1)}, map[string]interface{}{"name": "x", "nope": 1}, cb)
	out := testutil.Receive(t, results, wait)
	require.NoError(t, out.err)
	assert.Equal(t, uint64(1), out.res.AffectedRows)

	a.Remove(ctx, Where{Eq("id", 1), And(), Eq("name", "x")}, cb)
	require.NoError(t, testutil.Receive(t, results, wait).err)

	stmts := f.fake.Statements()
	assert.Equal(t, "UPDATE users SET `name` = 'x' WHERE `id` = '1' ;", stmts[1])
	assert.Equal(t, "DELETE FROM users WHERE `id` = '1'  AND  `name` = 'x' ;", stmts[2])
}

func TestCallbackRunsOnLoop(t *testing.T) {
	f := newFixture(t, 2, "id")
	a := f.open(t, "users")

	block := make(chan struct{})
	require.True(t, f.loop.Defer(func() { <-block }))

	cb, results := collect()
	a.Select(testutil.TestContext(t), nil, cb)

	testutil.AssertEventually(t, func() bool { return len(f.fake.Statements()) == 2 }, wait,
		"select never reached the driver")
	testutil.NotReceived(t, results, 20*time.Millisecond)

	close(block)
	require.NoError(t, testutil.Receive(t, results, wait).err)
}

func TestQueryErrorIsTypedAndReleasesConnection(t *testing.T) {
	f := newFixture(t, 1, "id")
	a := f.open(t, "users")
	ctx := testutil.TestContext(t)

	f.fake.OnQuery(func(context.Context, string) (*driver.Result, error) {
		return nil, stderrors.New("You have an error in your SQL syntax")
	})

	cb, results := collect()
	for i := 0; i < 5; i++ {
		a.Remove(ctx, nil, cb)
		out := testutil.Receive(t, results, wait)
		require.Error(t, out.err)
		assert.Nil(t, out.res)
		assert.True(t, errors.IsType(out.err, errors.ErrorTypeQuery))

		var e *errors.Error
		require.True(t, errors.As(out.err, &e))
		assert.Equal(t, "DELETE FROM users;", e.Details["sql"])
	}

	f.fake.OnQuery(nil)
	a.Select(ctx, nil, cb)
	require.NoError(t, testutil.Receive(t, results, wait).err)

	stats := f.pool.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, 1, f.fake.Opened())
}

func TestBrokenConnectionIsReplaced(t *testing.T) {
	f := newFixture(t, 1, "id")
	a := f.open(t, "users")
	ctx := testutil.TestContext(t)

	f.fake.OnQuery(func(context.Context, string) (*driver.Result, error) {
		return nil, driver.Broken(stderrors.New("connection reset by peer"))
	})
	cb, results := collect()
	a.Select(ctx, nil, cb)
	require.Error(t, testutil.Receive(t, results, wait).err)

	f.fake.OnQuery(nil)
	a.Select(ctx, nil, cb)
	require.NoError(t, testutil.Receive(t, results, wait).err)

	assert.Equal(t, 2, f.fake.Opened())
	assert.Equal(t, 1, f.fake.Closed())
}

func TestConcurrentOperationsShareThePool(t *testing.T) {
	f := newFixture(t, 3, "id", "name")
	users := f.open(t, "users")
	orders := f.open(t, "orders")
	ctx := testutil.TestContext(t)

	const n = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures int
	wg.Add(n)
	for i := 0; i < n; i++ {
		target := users
		if i%2 == 1 {
			target = orders
		}
		go target.Create(ctx, map[string]interface{}{"id": i}, func(err error, _ *driver.Result) {
			mu.Lock()
			if err != nil {
				failures++
			}
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	assert.Zero(t, failures)
	stats := f.pool.Stats()
	assert.LessOrEqual(t, stats.Live, 3)
	assert.Zero(t, stats.InUse)
}

func TestOperationsAreTraced(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, 1, "id")
	a := f.open(t, "users", WithTracerProvider(tp))

	f.fake.OnQuery(func(context.Context, string) (*driver.Result, error) {
		return nil, stderrors.New("boom")
	})
	cb, results := collect()
	a.Remove(testutil.TestContext(t), nil, cb)
	require.Error(t, testutil.Receive(t, results, wait).err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "users.select", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "users.remove", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestOperationsAreCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, 1, "id")
	a := f.open(t, "users", WithMetrics(metrics.NewCollector("tabular", reg)))

	f.fake.OnQuery(func(context.Context, string) (*driver.Result, error) {
		return nil, stderrors.New("boom")
	})
	cb, results := collect()
	a.Remove(testutil.TestContext(t), nil, cb)
	require.Error(t, testutil.Receive(t, results, wait).err)

	expected := `
# HELP tabular_accessor_operations_total Total accessor operations
# TYPE tabular_accessor_operations_total counter
tabular_accessor_operations_total{operation="remove",status="failure",table="users"} 1
tabular_accessor_operations_total{operation="select",status="success",table="users"} 1
`
	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected),
		"tabular_accessor_operations_total"))
}

func TestClosedLoopStillReleasesReady(t *testing.T) {
	f := newFixture(t, 1, "id")
	f.loop.Close()

	a := New("users", f.pool, f.loop, WithLogger(testutil.TestLogger(t)))

	err := a.Wait(testutil.TestContext(t))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
	assert.Empty(t, a.Fields())
}
