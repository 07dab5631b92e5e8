package pool

import (
	"context"
	"time"

	"github.com/ajitpratap0/tabular/pkg/driver"
)

// Conn is a pooled session. It is owned by exactly one caller between
// Acquire and Release.
type Conn struct {
	pool      *Pool
	raw       driver.Conn
	id        uint64
	createdAt time.Time
	lastUsed  time.Time
	useCount  int64
	broken    bool
	inUse     bool
}

// ID identifies the connection within its pool
func (c *Conn) ID() uint64 {
	return c.id
}

// Query runs sql on the session. A connection-fatal error marks the
// connection broken so that Release closes it.
func (c *Conn) Query(ctx context.Context, sql string) (*driver.Result, error) {
	res, err := c.raw.Query(ctx, sql)
	if driver.IsBroken(err) {
		c.broken = true
	}
	return res, err
}

// MarkBroken prevents the connection from being reused
func (c *Conn) MarkBroken() {
	c.broken = true
}

// Broken reports whether the connection will be closed on release
func (c *Conn) Broken() bool {
	return c.broken
}
