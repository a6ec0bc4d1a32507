package reqtask

import (
	"sync"
	"syscall"

	"github.com/vishvananda/netlink/nl"
)

// fakeConn is an in-memory nlsock.Conn: Send records the request it
// was given, and Receive plays back a pre-scripted sequence of
// datagrams, one []syscall.NetlinkMessage per call, then blocks until
// Cancel. It is the harness this package uses instead of a real kernel
// socket, the same role a net.Pipe plays in transport-level tests.
type fakeConn struct {
	pid      uint32
	sent     []*nl.NetlinkRequest
	batches  [][]syscall.NetlinkMessage
	initOnce sync.Once
	stopOnce sync.Once
	canceled chan struct{}
}

func (f *fakeConn) Send(req *nl.NetlinkRequest) error {
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeConn) Receive() ([]syscall.NetlinkMessage, error) {
	select {
	case <-f.cancelCh():
		return nil, errAbortedFake
	default:
	}
	if len(f.batches) == 0 {
		// Nothing left to play back: block like an idle socket.
		<-f.cancelCh()
		return nil, errAbortedFake
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeConn) cancelCh() chan struct{} {
	f.initOnce.Do(func() { f.canceled = make(chan struct{}) })
	return f.canceled
}

func (f *fakeConn) Pid() (uint32, error) { return f.pid, nil }
func (f *fakeConn) Cancel()              { f.stopOnce.Do(func() { close(f.cancelCh()) }) }
func (f *fakeConn) Close()               { f.Cancel() }

var errAbortedFake = fakeErr("aborted")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

// msg builds one syscall.NetlinkMessage for the given seq/pid/type/
// flags/data, the unit fakeConn's scripted batches are made of.
func msg(seq, pid uint32, msgType uint16, flags uint16, data []byte) syscall.NetlinkMessage {
	return syscall.NetlinkMessage{
		Header: syscall.NlMsghdr{
			Len:   uint32(16 + len(data)),
			Type:  msgType,
			Flags: flags,
			Seq:   seq,
			Pid:   pid,
		},
		Data: data,
	}
}
