// Package dispatch implements the signal/dispatcher component: a
// one-event-type-to-many-handlers fan-out with two execution
// policies, Sync (invoke inline, on the emitting goroutine) and Async
// (hand off to a dedicated per-handler worker goroutine).
//
// The fan-out-under-mutex shape generalizes "one net.Conn per client"
// to "one registered handler per connection, of either policy". The
// Async worker-goroutine-per-consumer idiom scopes one worker per
// connected Async handler rather than a shared pool, so a slow
// handler cannot starve the others of buffer space.
package dispatch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m-lab/netlinkctl/metrics"
)

// Policy selects how a connected handler is invoked.
type Policy int

const (
	// Sync invokes the handler on the emitting goroutine, before Emit
	// returns. A panicking Sync handler is recovered and does not
	// prevent other handlers from running.
	Sync Policy = iota
	// Async hands the event to a per-handler buffered channel served by
	// a dedicated goroutine, so Emit never blocks on a slow handler.
	Async
)

const asyncQueueDepth = 64

// Connection is the token returned by Connect; pass it to Disconnect
// to stop receiving events.
type Connection struct {
	id int
}

// Dispatcher fans a single event type T out to any number of
// connected handlers.
type Dispatcher[T any] struct {
	mu       sync.Mutex
	nextID   int
	order    []int // connection ids in Connect order, for spec's "Sync observes handlers in connection order"
	handlers map[int]*entry[T]
}

type entry[T any] struct {
	policy Policy
	fn     func(T)
	queue  chan T   // non-nil only for Async
	done   chan struct{}
}

// New returns an empty Dispatcher for event type T.
func New[T any]() *Dispatcher[T] {
	return &Dispatcher[T]{handlers: make(map[int]*entry[T])}
}

// Connect registers fn to be invoked for every subsequent Emit,
// according to policy. The returned Connection can be passed to
// Disconnect to stop delivery.
func (d *Dispatcher[T]) Connect(fn func(T), policy Policy) Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	e := &entry[T]{policy: policy, fn: fn}
	if policy == Async {
		e.queue = make(chan T, asyncQueueDepth)
		e.done = make(chan struct{})
		go runAsync(e)
	}
	d.handlers[id] = e
	d.order = append(d.order, id)
	return Connection{id: id}
}

// Disconnect stops delivery to the handler registered under c. It is
// safe to call more than once or with an unknown Connection.
func (d *Dispatcher[T]) Disconnect(c Connection) {
	d.mu.Lock()
	e, ok := d.handlers[c.id]
	if ok {
		delete(d.handlers, c.id)
	}
	d.mu.Unlock()
	if ok && e.queue != nil {
		close(e.queue)
	}
}

// Emit delivers event to every connected handler: Sync handlers run
// inline, in registration order; Async handlers receive the event on
// their queue without blocking Emit (a full queue drops the event for
// that handler and increments a metric, rather than applying
// backpressure to the emitting goroutine - the listener's read loop
// must never block on a slow consumer).
func (d *Dispatcher[T]) Emit(event T) {
	d.mu.Lock()
	snapshot := make([]*entry[T], 0, len(d.handlers))
	for _, id := range d.order {
		if e, ok := d.handlers[id]; ok {
			snapshot = append(snapshot, e)
		}
	}
	d.mu.Unlock()

	for _, e := range snapshot {
		switch e.policy {
		case Sync:
			invokeSync(e.fn, event)
		case Async:
			select {
			case e.queue <- event:
			default:
				metrics.DispatchPanicCounter.With(prometheus.Labels{"policy": "async-drop"}).Inc()
			}
		}
	}
}

// invokeSync runs fn(event) with its own recover, isolating a
// panicking handler from the rest of the handlers connected to this
// Dispatcher and from the emitting goroutine.
func invokeSync[T any](fn func(T), event T) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchPanicCounter.With(prometheus.Labels{"policy": "sync"}).Inc()
		}
	}()
	fn(event)
}

func runAsync[T any](e *entry[T]) {
	for ev := range e.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					metrics.DispatchPanicCounter.With(prometheus.Labels{"policy": "async"}).Inc()
				}
			}()
			e.fn(ev)
		}()
	}
}
