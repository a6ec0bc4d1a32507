// Package listener implements the passive side of this module: a
// continuous read loop over a subscribed NETLINK_ROUTE socket that
// parses every incoming message and dispatches it by event type.
//
// The read loop is event-driven rather than polling, since the route
// channel delivers unsolicited multicast notifications and there is
// nothing to poll. Its start/stop lifecycle - a derived, cancelable
// context plus a cleanup goroutine that closes the underlying
// resource on cancellation - gives callers a Listen/Serve-style pair.
package listener

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m-lab/netlinkctl/dispatch"
	"github.com/m-lab/netlinkctl/metrics"
	"github.com/m-lab/netlinkctl/nlevent"
	"github.com/m-lab/netlinkctl/nlguard"
	"github.com/m-lab/netlinkctl/nlsock"
	"github.com/m-lab/netlinkctl/nlwire"
)

// Listener subscribes to NETLINK_ROUTE multicast groups and dispatches
// parsed events to whatever handlers are connected on its
// Dispatchers.
type Listener struct {
	newGuard func() *nlguard.Guard
	guard    *nlguard.Guard

	Links     *dispatch.Dispatcher[nlevent.LinkEvent]
	Addresses *dispatch.Dispatcher[nlevent.AddressEvent]
	Routes    *dispatch.Dispatcher[nlevent.RouteEvent]
	Neighbors *dispatch.Dispatcher[nlevent.NeighborEvent]
	Errors    *dispatch.Dispatcher[nlevent.ErrorEvent]

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a Listener that will subscribe to the given multicast
// group bitmask once Start is called.
func New(groups uint) *Listener {
	return newWithGuardFactory(func() *nlguard.Guard { return nlguard.New(groups) })
}

// NewWithOpener returns a Listener backed by a guard built from open
// instead of a real kernel socket. Tests use this to drive the
// end-to-end scenarios of spec.md §8 over an in-memory fake.
func NewWithOpener(open func() (nlsock.Conn, error)) *Listener {
	return newWithGuardFactory(func() *nlguard.Guard { return nlguard.NewWithOpener(open) })
}

func newWithGuardFactory(newGuard func() *nlguard.Guard) *Listener {
	return &Listener{
		newGuard:  newGuard,
		Links:     dispatch.New[nlevent.LinkEvent](),
		Addresses: dispatch.New[nlevent.AddressEvent](),
		Routes:    dispatch.New[nlevent.RouteEvent](),
		Neighbors: dispatch.New[nlevent.NeighborEvent](),
		Errors:    dispatch.New[nlevent.ErrorEvent](),
	}
}

// Start opens the underlying socket and begins the read loop in a new
// goroutine. Start returns once the socket is open; it does not wait
// for the loop to exit. Calling Start twice without an intervening
// Stop is a no-op. A Guard is closed for good once Stop cancels it, so
// Start after Stop builds a fresh one rather than reusing the old,
// permanently-closed Guard - this is what makes restart produce a
// working listener instead of an immediate ErrClosed.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}
	l.guard = l.newGuard()
	if err := l.guard.EnsureOpen(); err != nil {
		return err
	}
	derived, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		<-derived.Done()
		l.guard.Stop()
	}()

	l.wg.Add(1)
	go l.readLoop()
	return nil
}

// Stop cancels the read loop and waits for it to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	cancel := l.cancel
	l.mu.Unlock()
	cancel()
	l.wg.Wait()
}

// Running reports whether the read loop is currently active.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Listener) readLoop() {
	defer l.wg.Done()
	sock := l.guard.Socket()
	for {
		msgs, err := sock.Receive()
		if err != nil {
			if errors.Is(err, nlsock.ErrAborted) || errors.Is(err, nlsock.ErrClosed) {
				return
			}
			// Any other read error is the caller's concern to observe
			// via the Errors dispatcher or logs; the loop keeps going,
			// matching spec.md's "schedule the next receive" rule.
			log.Println("listener: read error, retrying:", err)
			continue
		}
		for i := range msgs {
			m := &msgs[i]
			l.dispatchOne(uint16(m.Header.Type), m.Data)
		}
	}
}

func (l *Listener) dispatchOne(msgType uint16, body []byte) {
	switch msgType {
	case nlwire.TypeNoop, nlwire.TypeDone, nlwire.TypeOverrun:
		// No event to deliver and no parse failure to count.
		return
	case nlwire.TypeError:
		if ev, ok := nlevent.ParseError(body); ok {
			l.Errors.Emit(ev)
		} else {
			metrics.ParseErrorCount.With(prometheus.Labels{"event": "error"}).Inc()
		}
		return
	}

	ev, ok := nlevent.ParseAny(msgType, body)
	if !ok {
		metrics.ParseErrorCount.With(prometheus.Labels{"event": "unknown"}).Inc()
		return
	}
	switch e := ev.(type) {
	case nlevent.LinkEvent:
		metrics.ListenerEventCounter.With(prometheus.Labels{"event": "link"}).Inc()
		l.Links.Emit(e)
	case nlevent.AddressEvent:
		metrics.ListenerEventCounter.With(prometheus.Labels{"event": "address"}).Inc()
		l.Addresses.Emit(e)
	case nlevent.RouteEvent:
		metrics.ListenerEventCounter.With(prometheus.Labels{"event": "route"}).Inc()
		l.Routes.Emit(e)
	case nlevent.NeighborEvent:
		metrics.ListenerEventCounter.With(prometheus.Labels{"event": "neighbor"}).Inc()
		l.Neighbors.Emit(e)
	}
}
