// Package control implements the active side of this module: a
// blocking and context-aware API for dumping links, addresses,
// routes, and neighbors, and for getting, probing, or flushing a
// single neighbor entry.
//
// All requests issued through one Control are serialized through a
// single worker goroutine reading off a job channel - an explicit
// FIFO queue of waiters, applying the "one goroutine, one channel,
// one job struct" idiom to route-channel requests instead of
// proto-marshaling work.
package control

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m-lab/netlinkctl/metrics"
	"github.com/m-lab/netlinkctl/nlevent"
	"github.com/m-lab/netlinkctl/nlguard"
	"github.com/m-lab/netlinkctl/nlsock"
	"github.com/m-lab/netlinkctl/nltask"
	"github.com/m-lab/netlinkctl/reqtask"
)

// job is one request waiting in the façade's FIFO queue.
type job struct {
	run func(ctx context.Context)
}

// Control is the active, request/reply façade over a single netlink
// socket. Create one with New and call Close when done.
type Control struct {
	guard *nlguard.Guard
	jobs  chan job
	done  chan struct{}
	once  sync.Once
}

// New returns a Control backed by a socket that will be opened lazily
// on the first request. Requests are not associated with any
// multicast group; Control is for request/reply transactions only.
// Use package listener for subscriptions.
func New() *Control {
	return newWithGuard(nlguard.New(0))
}

// NewWithOpener returns a Control backed by a guard built from open
// instead of a real kernel socket. Tests use this to drive the FIFO
// ordering and cancellation contracts over an in-memory fake, the
// same role NewWithOpener plays in package listener.
func NewWithOpener(open func() (nlsock.Conn, error)) *Control {
	return newWithGuard(nlguard.NewWithOpener(open))
}

func newWithGuard(guard *nlguard.Guard) *Control {
	c := &Control{
		guard: guard,
		jobs:  make(chan job),
		done:  make(chan struct{}),
	}
	go c.worker()
	return c
}

func (c *Control) worker() {
	for {
		select {
		case j := <-c.jobs:
			j.run(context.Background())
		case <-c.done:
			return
		}
	}
}

// Close stops accepting new requests, cancels the in-flight one (if
// any) and closes the underlying socket. Close is idempotent.
func (c *Control) Close() {
	c.once.Do(func() {
		close(c.done)
		c.guard.Stop()
	})
}

// submit enqueues fn and blocks until it has run, unless ctx is
// canceled first - in which case the job is not dequeued later (it
// does not consume a turn in the queue once abandoned).
func submit[R any](ctx context.Context, c *Control, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	resultCh := make(chan struct {
		r   R
		err error
	}, 1)
	j := job{run: func(_ context.Context) {
		r, err := fn(ctx)
		resultCh <- struct {
			r   R
			err error
		}{r, err}
	}}
	select {
	case c.jobs <- j:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		return zero, context.Canceled
	}
	select {
	case res := <-resultCh:
		return res.r, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// DumpLinks returns every interface currently known to the kernel.
func (c *Control) DumpLinks() ([]nlevent.LinkEvent, error) {
	return c.DumpLinksCtx(context.Background())
}

// DumpLinksCtx is DumpLinks with caller-supplied cancellation/timeout.
func (c *Control) DumpLinksCtx(ctx context.Context) ([]nlevent.LinkEvent, error) {
	return submit(ctx, c, func(ctx context.Context) ([]nlevent.LinkEvent, error) {
		r, err := reqtask.Run[[]nlevent.LinkEvent](ctx, c.guard, nltask.DumpLinks())
		observeDumpSize("dump-links", err, len(r))
		return r, err
	})
}

// DumpAddresses returns every address currently assigned to any
// interface.
func (c *Control) DumpAddresses() ([]nlevent.AddressEvent, error) {
	return c.DumpAddressesCtx(context.Background())
}

// DumpAddressesCtx is DumpAddresses with caller-supplied
// cancellation/timeout.
func (c *Control) DumpAddressesCtx(ctx context.Context) ([]nlevent.AddressEvent, error) {
	return submit(ctx, c, func(ctx context.Context) ([]nlevent.AddressEvent, error) {
		r, err := reqtask.Run[[]nlevent.AddressEvent](ctx, c.guard, nltask.DumpAddresses())
		observeDumpSize("dump-addresses", err, len(r))
		return r, err
	})
}

// DumpRoutes returns the routes the kernel reports for a dump request
// that names no routing table; results are not filtered by table.
func (c *Control) DumpRoutes() ([]nlevent.RouteEvent, error) {
	return c.DumpRoutesCtx(context.Background())
}

// DumpRoutesCtx is DumpRoutes with caller-supplied
// cancellation/timeout.
func (c *Control) DumpRoutesCtx(ctx context.Context) ([]nlevent.RouteEvent, error) {
	return submit(ctx, c, func(ctx context.Context) ([]nlevent.RouteEvent, error) {
		r, err := reqtask.Run[[]nlevent.RouteEvent](ctx, c.guard, nltask.DumpRoutes())
		observeDumpSize("dump-routes", err, len(r))
		return r, err
	})
}

// DumpNeighbors returns every entry currently in the neighbor table.
func (c *Control) DumpNeighbors() ([]nlevent.NeighborEvent, error) {
	return c.DumpNeighborsCtx(context.Background())
}

// DumpNeighborsCtx is DumpNeighbors with caller-supplied
// cancellation/timeout.
func (c *Control) DumpNeighborsCtx(ctx context.Context) ([]nlevent.NeighborEvent, error) {
	return submit(ctx, c, func(ctx context.Context) ([]nlevent.NeighborEvent, error) {
		r, err := reqtask.Run[[]nlevent.NeighborEvent](ctx, c.guard, nltask.DumpNeighbors())
		observeDumpSize("dump-neighbors", err, len(r))
		return r, err
	})
}

// observeDumpSize records the number of records a successful dump
// task returned; a failed dump has no meaningful size to report.
func observeDumpSize(task string, err error, n int) {
	if err != nil {
		return
	}
	metrics.DumpResultSizeHistogram.With(prometheus.Labels{"task": task}).Observe(float64(n))
}

// GetNeighbor resolves the link-layer address for addr (4 or 16 raw
// bytes) on the given interface index, returning nltask.ErrNotFound if
// the kernel's table has no resolved entry for it.
func (c *Control) GetNeighbor(index int32, family uint8, addr []byte) (nlevent.NeighborEvent, error) {
	return c.GetNeighborCtx(context.Background(), index, family, addr)
}

// GetNeighborCtx is GetNeighbor with caller-supplied
// cancellation/timeout.
func (c *Control) GetNeighborCtx(ctx context.Context, index int32, family uint8, addr []byte) (nlevent.NeighborEvent, error) {
	return submit(ctx, c, func(ctx context.Context) (nlevent.NeighborEvent, error) {
		t := nltask.GetNeighbor(index, family, addr)
		ev, err := reqtask.Run[nlevent.NeighborEvent](ctx, c.guard, t)
		if err == nil && !t.Found() {
			return ev, nltask.ErrNotFound
		}
		return ev, err
	})
}

// ProbeNeighbor asks the kernel to (re)probe the neighbor entry for
// addr on the given interface.
func (c *Control) ProbeNeighbor(index int32, family uint8, addr []byte) error {
	return c.ProbeNeighborCtx(context.Background(), index, family, addr)
}

// ProbeNeighborCtx is ProbeNeighbor with caller-supplied
// cancellation/timeout.
func (c *Control) ProbeNeighborCtx(ctx context.Context, index int32, family uint8, addr []byte) error {
	_, err := submit(ctx, c, func(ctx context.Context) (struct{}, error) {
		return reqtask.Run[struct{}](ctx, c.guard, nltask.ProbeNeighbor(index, family, addr))
	})
	return err
}

// FlushNeighbor deletes the neighbor entry for addr on the given
// interface.
func (c *Control) FlushNeighbor(index int32, family uint8, addr []byte) error {
	return c.FlushNeighborCtx(context.Background(), index, family, addr)
}

// FlushNeighborCtx is FlushNeighbor with caller-supplied
// cancellation/timeout.
func (c *Control) FlushNeighborCtx(ctx context.Context, index int32, family uint8, addr []byte) error {
	_, err := submit(ctx, c, func(ctx context.Context) (struct{}, error) {
		return reqtask.Run[struct{}](ctx, c.guard, nltask.FlushNeighbor(index, family, addr))
	})
	return err
}
