// Package reqtask implements the generic send-then-read-until-
// terminator state machine shared by every request/response
// transaction this module issues over the route channel: dump links,
// dump addresses, dump routes, dump neighbors, get/probe/flush a
// neighbor.
//
// It generalizes the NLMSG_DONE/NLMSG_ERROR/NLM_F_MULTI handling
// common to every request from "always returns
// []*syscall.NetlinkMessage" to "returns whatever R the caller's
// Tasker produces". A sequence/pid mismatch is not fatal: it only
// means the datagram carries a reply to someone else's concurrent
// request (or a multicast event that leaked onto a request-only
// socket), so Run silently skips that one message and keeps reading,
// per the route channel's "ignore, don't abort" demultiplexing
// contract. The state machine follows a prepare-request / send-loop /
// read-loop shape, run as a plain blocking call driven by whatever
// goroutine calls Run.
package reqtask

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/m-lab/netlinkctl/metrics"
	"github.com/m-lab/netlinkctl/nlguard"
)

// ErrBadMessage is returned when an NLMSG_ERROR message is too short
// to contain its errno.
var ErrBadMessage = errors.New("reqtask: malformed error message")

// Tasker is implemented by every concrete request task in package
// nltask. BuildRequest returns the fully formed outgoing request;
// ProcessMessage is called once per message in every datagram
// received in response and returns the result accumulated so far plus
// whether the read loop should keep going.
type Tasker[R any] interface {
	// Name identifies the task for metrics, e.g. "dump-links".
	Name() string
	// BuildRequest constructs the request to send. Called once, after
	// the guard's socket is confirmed open.
	BuildRequest() (*nl.NetlinkRequest, error)
	// ProcessMessage handles one message from a response datagram.
	// cont is false when the task is satisfied and the read loop
	// should stop even if more multi-part messages remain (used by
	// GetNeighbor, which stops at the first matching entry).
	ProcessMessage(h syscall.NlMsghdr, body []byte) (result R, cont bool)
}

// Run drives one complete request/response transaction against guard
// using t, returning t's accumulated result. Run honors ctx
// cancellation both before sending (it will not send once ctx is
// already done) and while blocked in Receive, by canceling the
// underlying socket and translating the resulting error into
// ctx.Err().
func Run[R any](ctx context.Context, guard *nlguard.Guard, t Tasker[R]) (R, error) {
	var zero R
	start := time.Now()
	defer func() {
		metrics.RequestLatencyHistogram.With(prometheus.Labels{"task": t.Name()}).Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := guard.EnsureOpen(); err != nil {
		return zero, err
	}
	sock := guard.Socket()

	req, err := t.BuildRequest()
	if err != nil {
		return zero, err
	}

	cancelDone := make(chan struct{})
	defer close(cancelDone)
	go func() {
		select {
		case <-ctx.Done():
			sock.Cancel()
		case <-cancelDone:
		}
	}()

	if err := sock.Send(req); err != nil {
		return zero, translate(ctx, err)
	}
	pid, err := sock.Pid()
	if err != nil {
		return zero, translate(ctx, err)
	}
	seq := req.Seq

	var result R
	for {
		msgs, err := sock.Receive()
		if err != nil {
			return result, translate(ctx, err)
		}
		for i := range msgs {
			m := &msgs[i]
			if m.Header.Seq != seq || m.Header.Pid != pid {
				// Not a reply to our request (a concurrent task's
				// reply sharing this datagram, or a multicast event
				// leaking onto a request-only socket). Skip it; it
				// is not this task's concern.
				continue
			}
			if m.Header.Type == unix.NLMSG_DONE {
				return result, nil
			}
			if m.Header.Type == unix.NLMSG_ERROR {
				if len(m.Data) < 4 {
					return result, ErrBadMessage
				}
				errno := int32(nl.NativeEndian().Uint32(m.Data[0:4]))
				if errno == 0 {
					return result, nil
				}
				return result, syscall.Errno(-errno)
			}
			var cont bool
			result, cont = t.ProcessMessage(m.Header, m.Data)
			if !cont {
				return result, nil
			}
			if m.Header.Flags&unix.NLM_F_MULTI == 0 {
				return result, nil
			}
		}
	}
}

func translate(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
