// Package sqldriver implements the driver contract over database/sql with
// the go-sql-driver/mysql connector. Each session pins one *sql.Conn so
// that USE and the following statements share a server connection.
package sqldriver

import (
	"context"
	"database/sql"
	sqldrv "database/sql/driver"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tabular/pkg/driver"
	"github.com/ajitpratap0/tabular/pkg/errors"
)

// Connector opens database/sql sessions.
type Connector struct {
	logger      *zap.Logger
	dialTimeout time.Duration
}

// NewConnector creates a connector. A zero dialTimeout keeps the driver default.
func NewConnector(logger *zap.Logger, dialTimeout time.Duration) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		logger:      logger.With(zap.String("component", "sql_driver")),
		dialTimeout: dialTimeout,
	}
}

func (c *Connector) config(creds driver.Credentials) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = creds.User
	cfg.Passwd = creds.Password
	cfg.Net = "tcp"
	cfg.Addr = creds.Addr()
	cfg.Timeout = c.dialTimeout
	return cfg
}

// Connect opens a single-connection *sql.DB and pins its connection.
func (c *Connector) Connect(ctx context.Context, creds driver.Credentials) (driver.Conn, error) {
	connector, err := mysql.NewConnector(c.config(creds))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid mysql config")
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c.logger.Debug("session opened", zap.String("addr", creds.Addr()))
	return &Conn{db: db, conn: conn}, nil
}

// Conn is one pinned database/sql connection.
type Conn struct {
	db   *sql.DB
	conn *sql.Conn
}

// SelectDatabase runs USE.
func (c *Conn) SelectDatabase(ctx context.Context, name string) error {
	_, err := c.conn.ExecContext(ctx, useStatement(name))
	return classify(err)
}

func useStatement(name string) string {
	return "USE `" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Query runs sql through QueryContext when it returns rows and ExecContext otherwise.
func (c *Conn) Query(ctx context.Context, sql string) (*driver.Result, error) {
	start := time.Now()

	if !returnsRows(sql) {
		r, err := c.conn.ExecContext(ctx, sql)
		if err != nil {
			return nil, classify(err)
		}
		res := &driver.Result{Duration: time.Since(start)}
		if n, err := r.RowsAffected(); err == nil && n > 0 {
			res.AffectedRows = uint64(n)
		}
		if id, err := r.LastInsertId(); err == nil && id > 0 {
			res.InsertID = uint64(id)
		}
		return res, nil
	}

	rows, err := c.conn.QueryContext(ctx, sql)
	if err != nil {
		return nil, classify(err)
	}
	res, err := scan(rows)
	if err != nil {
		return nil, classify(err)
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Close releases the pinned connection and its *sql.DB
func (c *Conn) Close() error {
	connErr := c.conn.Close()
	if err := c.db.Close(); err != nil {
		return err
	}
	return connErr
}

// returnsRows reports whether sql yields a resultset.
func returnsRows(sql string) bool {
	head := strings.TrimLeft(sql, " \t\r\n(")
	if len(head) > 8 {
		head = head[:8]
	}
	head = strings.ToUpper(head)
	for _, kw := range []string{"SELECT", "SHOW", "DESCRIBE", "DESC ", "EXPLAIN", "WITH"} {
		if strings.HasPrefix(head, kw) {
			return true
		}
	}
	return false
}

// rowsReader is the part of *sql.Rows used by scan
type rowsReader interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

func scan(rows rowsReader) (*driver.Result, error) {
	defer rows.Close()

	fields, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &driver.Result{Fields: fields}
	for rows.Next() {
		values := make([]interface{}, len(fields))
		ptrs := make([]interface{}, len(fields))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fields))
		for i, name := range fields {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sqldrv.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return driver.Broken(err)
	}
	return err
}
