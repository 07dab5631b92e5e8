// Package pool provides a bounded pool of database sessions shared by every
// table accessor of a process.
//
// # Lifecycle
//
// Sessions are opened lazily through driver.Open, which connects and selects
// the configured database as one step. A pool never holds more than
// MaxConnections live sessions, idle and checked out combined.
//
//	p, err := pool.New(native.NewConnector(logger), creds, pool.Options{
//		MaxConnections: 10,
//		IdleTimeout:    30 * time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	conn, err := p.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer p.Release(conn)
//	res, err := conn.Query(ctx, "SELECT 1;")
//
// # Ordering
//
// Idle sessions are reused most recently released first, which lets the
// reaper close the cold end of the idle set. Acquirers that find no idle
// session and no free slot wait in arrival order; a released session is
// handed directly to the oldest waiter.
//
// # Failure handling
//
// A failed connect frees its slot and the next waiter gets a chance to
// open its own session. Sessions whose queries failed at the connection
// level (see driver.Broken) are destroyed on release and their slot is
// passed on, so a waiter never receives a dead session. Close destroys
// idle sessions immediately, fails every waiter with errors.ErrPoolClosed
// and destroys checked out sessions as they are released.
package pool
