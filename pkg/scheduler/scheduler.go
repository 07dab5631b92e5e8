// Package scheduler runs deferred callbacks one at a time, in the order they
// were deferred, on a single goroutine.
package scheduler

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Loop is an unbounded FIFO of functions drained by one goroutine.
// Deferred functions never run on the caller's goroutine.
type Loop struct {
	logger *zap.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New starts a loop.
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		logger: logger.With(zap.String("component", "scheduler")),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Defer queues fn. It returns false, dropping fn, once the loop is closed.
func (l *Loop) Defer(fn func()) bool {
	if fn == nil {
		return false
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Warn("deferred function dropped, loop is closed")
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of queued functions not yet started.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain blocks until every function deferred before the call has run.
// It must not be called from a deferred function.
func (l *Loop) Drain(ctx context.Context) error {
	reached := make(chan struct{})
	if !l.Defer(func() { close(reached) }) {
		select {
		case <-l.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, runs what is already queued, and waits for
// the loop goroutine to exit. It is idempotent and must not be called from
// a deferred function.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			<-l.wake
			continue
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.invoke(fn)
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("deferred function panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}
