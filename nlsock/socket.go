// Package nlsock wraps a single NETLINK_ROUTE datagram socket.
//
// It opens a netlink socket via vishvananda/netlink's nl.Subscribe and
// drives it with Send/Receive/GetPid/Close, adding Cancel as the
// mechanism the rest of this module uses to unblock a goroutine
// parked in Receive.
package nlsock

import (
	"errors"
	"log"
	"sync/atomic"
	"syscall"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// ErrAborted is returned by Receive (and by any in-flight request
// task reading through it) when the socket is canceled while a read
// is outstanding.
var ErrAborted = errors.New("nlsock: operation aborted")

// ErrClosed is returned by Send/Receive after Close.
var ErrClosed = errors.New("nlsock: socket closed")

// Conn is the subset of Socket's behavior that package nlguard and
// package reqtask depend on. It exists so tests can substitute an
// in-memory fake for a real kernel socket, the same way a net.Pipe
// substitutes for a unix socket in transport tests.
type Conn interface {
	Send(req *nl.NetlinkRequest) error
	Receive() ([]syscall.NetlinkMessage, error)
	Pid() (uint32, error)
	Cancel()
	Close()
}

// Socket is a single NETLINK_ROUTE datagram endpoint. It is not safe
// for concurrent use by multiple goroutines except for a concurrent
// call to Cancel or Close, which is the whole point of having them:
// closed is an atomic flag precisely so one goroutine can set it
// while another is parked in Receive.
type Socket struct {
	sock   *nl.NetlinkSocket
	closed int32 // 0/1, accessed only via sync/atomic
}

func (s *Socket) isClosed() bool { return atomic.LoadInt32(&s.closed) != 0 }

// Open creates and binds a new NETLINK_ROUTE socket, subscribed to
// the given multicast group bitmask (0 for none - e.g. a
// request-only socket that will never receive unsolicited events).
func Open(groups uint) (*Socket, error) {
	// nl.Subscribe takes multicast group numbers (bit position plus
	// one), not a bitmask.
	var nums []uint
	for i := uint(0); i < 32; i++ {
		if groups&(1<<i) != 0 {
			nums = append(nums, i+1)
		}
	}
	sock, err := nl.Subscribe(syscall.NETLINK_ROUTE, nums...)
	if err != nil {
		return nil, err
	}
	s := &Socket{sock: sock}
	s.tuneOptions()
	return s, nil
}

// tuneOptions sets socket options that are useful but not required: a
// larger receive buffer, no ENOBUFS reporting on overrun, extended
// ACKs, and strict checking of get requests. Failures here are not
// fatal and are only logged; older kernels may not support them.
func (s *Socket) tuneOptions() {
	fd := int(s.sock.GetFd())
	opts := []struct {
		name            string
		level, opt, val int
	}{
		{"SO_RCVBUFFORCE", unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, 1 << 20},
		{"NETLINK_NO_ENOBUFS", unix.SOL_NETLINK, unix.NETLINK_NO_ENOBUFS, 1},
		{"NETLINK_EXTENDED_ACK", unix.SOL_NETLINK, unix.NETLINK_EXTENDED_ACK, 1},
		{"NETLINK_GET_STRICT_CHK", unix.SOL_NETLINK, unix.NETLINK_GET_STRICT_CHK, 1},
	}
	for _, o := range opts {
		if err := unix.SetsockoptInt(fd, o.level, o.opt, o.val); err != nil {
			log.Println("nlsock: could not set", o.name+":", err)
		}
	}
}

// Send writes a pre-built netlink request to the kernel.
func (s *Socket) Send(req *nl.NetlinkRequest) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.sock.Send(req)
}

// Receive reads the next one or more datagrams waiting on the socket
// and returns the raw syscall messages, exactly as
// vishvananda/netlink's nl.NetlinkSocket.Receive does. Receive blocks
// until data arrives, the socket is canceled, or it is closed.
func (s *Socket) Receive() ([]syscall.NetlinkMessage, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	msgs, err := s.sock.Receive()
	if err != nil {
		if s.isClosed() {
			return nil, ErrAborted
		}
		return nil, err
	}
	return msgs, nil
}

// Pid returns the port ID the kernel assigned this socket, used to
// validate that a response is addressed to us.
func (s *Socket) Pid() (uint32, error) {
	return s.sock.GetPid()
}

// Cancel unblocks any goroutine currently parked in Receive by
// closing the underlying file descriptor. A Receive already in flight
// returns ErrAborted; a Receive started after Cancel returns
// ErrClosed. Cancel is idempotent.
func (s *Socket) Cancel() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	s.sock.Close()
}

// Close releases the socket. It is idempotent and equivalent to
// Cancel for this type, since there is no separate "stop accepting
// new operations but let the in-flight read finish" state.
func (s *Socket) Close() {
	s.Cancel()
}

var _ Conn = (*Socket)(nil)
