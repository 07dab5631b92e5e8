// Package native implements the driver contract on top of the go-mysql
// client, which speaks the MySQL protocol directly.
package native

import (
	"context"
	"time"

	"github.com/go-mysql-org/go-mysql/client"
	"github.com/go-mysql-org/go-mysql/mysql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabular/pkg/driver"
	"github.com/ajitpratap0/tabular/pkg/errors"
	stringpool "github.com/ajitpratap0/tabular/pkg/strings"
)

// session is the subset of *client.Conn used by Conn
type session interface {
	UseDB(dbName string) error
	Execute(command string, args ...interface{}) (*mysql.Result, error)
	Close() error
}

// dialFunc opens a raw protocol session
type dialFunc func(addr, user, password string) (session, error)

func dial(addr, user, password string) (session, error) {
	return client.Connect(addr, user, password, "")
}

// Connector opens go-mysql client sessions.
type Connector struct {
	logger *zap.Logger
	dial   dialFunc
}

// NewConnector creates a connector.
func NewConnector(logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		logger: logger.With(zap.String("component", "native_driver")),
		dial:   dial,
	}
}

type dialResult struct {
	s   session
	err error
}

// Connect dials the server. The handshake itself is not interruptible, so
// when ctx ends first the late session is closed in the background.
func (c *Connector) Connect(ctx context.Context, creds driver.Credentials) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan dialResult, 1)
	go func() {
		s, err := c.dial(creds.Addr(), creds.User, creds.Password)
		done <- dialResult{s: s, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		c.logger.Debug("session opened", zap.String("addr", creds.Addr()))
		return &Conn{s: r.s, logger: c.logger}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = r.s.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Conn is a go-mysql session.
type Conn struct {
	s      session
	logger *zap.Logger
}

// SelectDatabase issues COM_INIT_DB.
func (c *Conn) SelectDatabase(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify(c.s.UseDB(name))
}

// Query executes sql and converts the resultset, if any.
func (c *Conn) Query(ctx context.Context, sql string) (*driver.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	r, err := c.s.Execute(sql)
	if err != nil {
		return nil, classify(err)
	}

	res, err := convert(r)
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Close closes the session
func (c *Conn) Close() error {
	return c.s.Close()
}

// classify marks everything but a server-reported error as broken: a
// server error leaves the protocol in a known state, anything else
// (I/O, framing, ErrBadConn) does not.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MyError
	if errors.As(err, &myErr) {
		return err
	}
	return driver.Broken(err)
}

// rowSource is the read side of *mysql.Resultset
type rowSource interface {
	RowNumber() int
	GetValue(row, column int) (interface{}, error)
}

func convert(r *mysql.Result) (*driver.Result, error) {
	res := &driver.Result{
		AffectedRows: r.AffectedRows,
		InsertID:     r.InsertId,
	}
	if r.Resultset == nil {
		return res, nil
	}

	fields := make([]string, len(r.Resultset.Fields))
	for i, f := range r.Resultset.Fields {
		fields[i] = string(f.Name)
	}

	rows, err := convertRows(fields, r.Resultset)
	if err != nil {
		return nil, err
	}
	res.Fields = fields
	res.Rows = rows
	return res, nil
}

func convertRows(fields []string, rs rowSource) ([]map[string]interface{}, error) {
	rows := make([]map[string]interface{}, 0, rs.RowNumber())
	for row := 0; row < rs.RowNumber(); row++ {
		values := make(map[string]interface{}, len(fields))
		for col, name := range fields {
			v, err := rs.GetValue(row, col)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeQuery,
					stringpool.Sprintf("failed to read row %d column %s", row, name))
			}
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			values[name] = v
		}
		rows = append(rows, values)
	}
	return rows, nil
}
