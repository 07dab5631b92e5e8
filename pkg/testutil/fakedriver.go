package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/ajitpratap0/tabular/pkg/driver"
)

// QueryFunc produces the outcome of one statement on a FakeConn
type QueryFunc func(ctx context.Context, sql string) (*driver.Result, error)

// FakeConnector is an in-memory driver.Connector. SELECT statements return
// the configured columns and rows; other statements report one affected row.
type FakeConnector struct {
	mu         sync.Mutex
	fields     []string
	rows       []map[string]interface{}
	connectErr error
	selectErr  error
	query      QueryFunc
	statements []string
	databases  []string
	opened     int
	closed     int
	insertID   uint64
}

// NewFakeConnector creates a connector whose tables report fields as columns.
func NewFakeConnector(fields ...string) *FakeConnector {
	return &FakeConnector{fields: fields}
}

// SetRows replaces the rows returned by SELECT statements
func (f *FakeConnector) SetRows(rows ...map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows
}

// FailConnect makes every Connect fail with err (nil restores success).
func (f *FakeConnector) FailConnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

// FailSelectDatabase makes every SelectDatabase fail with err (nil restores success).
func (f *FakeConnector) FailSelectDatabase(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectErr = err
}

// OnQuery overrides statement execution; nil restores the default.
func (f *FakeConnector) OnQuery(fn QueryFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = fn
}

// Statements returns every statement executed so far, in order.
func (f *FakeConnector) Statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statements...)
}

// Databases returns every database name selected so far.
func (f *FakeConnector) Databases() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.databases...)
}

// Opened returns the number of successful connects
func (f *FakeConnector) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// Closed returns the number of closed sessions
func (f *FakeConnector) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Connect implements driver.Connector
func (f *FakeConnector) Connect(ctx context.Context, _ driver.Credentials) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.opened++
	return &FakeConn{owner: f}, nil
}

// FakeConn is a session opened by FakeConnector
type FakeConn struct {
	owner  *FakeConnector
	closed bool
}

// SelectDatabase implements driver.Conn
func (c *FakeConn) SelectDatabase(_ context.Context, name string) error {
	f := c.owner
	f.mu.Lock()
	defer f.mu.Unlock()
	f.databases = append(f.databases, name)
	return f.selectErr
}

// Query implements driver.Conn
func (c *FakeConn) Query(ctx context.Context, sql string) (*driver.Result, error) {
	f := c.owner
	f.mu.Lock()
	f.statements = append(f.statements, sql)
	hook := f.query
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, sql)
	}
	return f.defaultResult(sql), nil
}

func (f *FakeConnector) defaultResult(sql string) *driver.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT") {
		rows := make([]map[string]interface{}, len(f.rows))
		copy(rows, f.rows)
		return &driver.Result{
			Fields: append([]string(nil), f.fields...),
			Rows:   rows,
		}
	}

	res := &driver.Result{AffectedRows: 1}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "INSERT") {
		f.insertID++
		res.InsertID = f.insertID
	}
	return res
}

// Close implements driver.Conn. Closing twice is counted once.
func (c *FakeConn) Close() error {
	f := c.owner
	f.mu.Lock()
	defer f.mu.Unlock()
	if !c.closed {
		c.closed = true
		f.closed++
	}
	return nil
}
