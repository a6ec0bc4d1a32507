// Package nlguard owns the lifecycle of one nlsock.Conn, serializing
// open/close against concurrent use and supporting idempotent
// shutdown.
//
// A single mutex guards a single nlsock.Conn rather than a set of
// client connections, but the guarding discipline is the same as
// guarding a shared map: the mutex only protects open/close
// transitions, never the Send/Receive calls themselves, so a blocked
// Receive never holds the lock.
package nlguard

import (
	"sync"

	"github.com/m-lab/netlinkctl/metrics"
	"github.com/m-lab/netlinkctl/nlsock"
)

// Guard owns a single nlsock.Conn, opening it lazily and closing it at
// most once.
type Guard struct {
	open func() (nlsock.Conn, error)

	mu     sync.Mutex
	sock   nlsock.Conn
	once   sync.Once
	closed bool
}

// New returns a Guard that will open a real kernel socket subscribed
// to groups when first needed.
func New(groups uint) *Guard {
	return &Guard{open: func() (nlsock.Conn, error) { return nlsock.Open(groups) }}
}

// NewWithOpener returns a Guard that calls open to produce its
// connection instead of dialing a real kernel socket. Tests use this
// to substitute an in-memory fake for package reqtask and package
// listener's end-to-end scenarios.
func NewWithOpener(open func() (nlsock.Conn, error)) *Guard {
	return &Guard{open: open}
}

// EnsureOpen opens the underlying socket if it is not already open.
// It is safe to call concurrently; only one caller will actually open
// the socket.
func (g *Guard) EnsureOpen() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nlsock.ErrClosed
	}
	if g.sock != nil {
		return nil
	}
	sock, err := g.open()
	if err != nil {
		return err
	}
	g.sock = sock
	metrics.GuardReopenCounter.Inc()
	return nil
}

// Socket returns the underlying connection, or nil if EnsureOpen has
// not yet succeeded.
func (g *Guard) Socket() nlsock.Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sock
}

// Stop cancels the underlying socket (unblocking any in-flight
// Receive) and marks the guard closed, so future EnsureOpen calls
// fail instead of silently reopening. Stop is idempotent.
func (g *Guard) Stop() {
	g.once.Do(func() {
		g.mu.Lock()
		g.closed = true
		sock := g.sock
		g.mu.Unlock()
		if sock != nil {
			sock.Cancel()
		}
	})
}
