// Package driver defines the database session contract the connection pool
// consumes, plus the helpers shared by the MySQL adapters.
package driver

import (
	"context"
	sqldriver "database/sql/driver"
	"net"
	"strconv"
	"time"

	"github.com/ajitpratap0/tabular/pkg/errors"
)

// Credentials identify the server and the target database of a session.
type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Addr returns host:port
func (c Credentials) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Result is the outcome of one statement.
type Result struct {
	// Rows holds one map per returned row, keyed by column name
	Rows []map[string]interface{}
	// Fields lists the column names in the order the server reported them
	Fields []string
	// AffectedRows is set for INSERT, UPDATE and DELETE
	AffectedRows uint64
	// InsertID is the last auto-increment id generated by an INSERT
	InsertID uint64
	// Duration is the time spent executing the statement
	Duration time.Duration
}

// Conn is a live session bound to one server.
// A Conn is used by one goroutine at a time.
type Conn interface {
	// SelectDatabase switches the session's default database.
	SelectDatabase(ctx context.Context, name string) error

	// Query runs one SQL statement.
	Query(ctx context.Context, sql string) (*Result, error)

	// Close terminates the session.
	Close() error
}

// Connector opens sessions. Implementations must be safe for concurrent use.
type Connector interface {
	// Connect opens a session without selecting a database.
	Connect(ctx context.Context, creds Credentials) (Conn, error)
}

// Open connects and then selects creds.Database, failing as a unit:
// when the second step fails the half-open session is closed.
func Open(ctx context.Context, connector Connector, creds Credentials) (Conn, error) {
	conn, err := connector.Connect(ctx, creds)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect").
			WithDetail("addr", creds.Addr()).
			WithDetail("user", creds.User)
	}

	if creds.Database == "" {
		return conn, nil
	}

	if err := conn.SelectDatabase(ctx, creds.Database); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to select database").
			WithDetail("addr", creds.Addr()).
			WithDetail("database", creds.Database)
	}

	return conn, nil
}

// brokenError marks a driver error after which the session cannot be reused.
type brokenError struct {
	err error
}

func (e *brokenError) Error() string { return e.err.Error() }

func (e *brokenError) Unwrap() error { return e.err }

// Broken marks err as fatal for the connection that produced it.
func Broken(err error) error {
	if err == nil {
		return nil
	}
	if IsBroken(err) {
		return err
	}
	return &brokenError{err: err}
}

// IsBroken reports whether err leaves its connection unusable.
func IsBroken(err error) bool {
	if err == nil {
		return false
	}
	var b *brokenError
	if errors.As(err, &b) {
		return true
	}
	return errors.Is(err, sqldriver.ErrBadConn)
}
