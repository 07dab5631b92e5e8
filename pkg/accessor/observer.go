package accessor

import (
	"sync"

	"go.uber.org/zap"
)

// Event names an accessor lifecycle point observers can subscribe to.
type Event string

const (
	EventSelect Event = "SELECT"
	EventUpdate Event = "UPDATE"
	EventCreate Event = "CREATE"
	EventRemove Event = "REMOVE"
	// EventInit observers run synchronously at registration, once per EventInit entry.
	EventInit Event = "INIT"
)

// Valid reports whether e is one of the five events
func (e Event) Valid() bool {
	switch e {
	case EventSelect, EventUpdate, EventCreate, EventRemove, EventInit:
		return true
	}
	return false
}

// Observer receives the event it was notified for.
type Observer func(event Event)

type registry struct {
	mu        sync.Mutex
	observers map[Event][]Observer
}

func newRegistry() *registry {
	return &registry{observers: make(map[Event][]Observer)}
}

func (r *registry) add(e Event, o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[e] = append(r.observers[e], o)
}

func (r *registry) snapshot(e Event) []Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Observer(nil), r.observers[e]...)
}

// RegisterObserver subscribes cb to each event in events, in order.
// Unknown events are skipped. Each EventInit entry calls cb right away, on
// the caller's goroutine, and is not remembered. It returns false, registering
// nothing, when cb is nil or events is empty.
func (a *Accessor) RegisterObserver(events []Event, cb Observer) bool {
	if cb == nil || len(events) == 0 {
		return false
	}

	for _, e := range events {
		switch {
		case !e.Valid():
			a.logger.Debug("unknown observer event skipped", zap.String("event", string(e)))
		case e == EventInit:
			cb(EventInit)
		default:
			a.observers.add(e, cb)
		}
	}
	return true
}

// notify schedules every observer of e on the loop in registration order.
// None runs before notify returns.
func (a *Accessor) notify(e Event) {
	a.logger.Debug("notify", zap.String("event", string(e)))

	if !e.Valid() {
		return
	}
	for _, o := range a.observers.snapshot(e) {
		o := o
		a.loop.Defer(func() { o(e) })
	}
}
