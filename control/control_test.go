package control

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/vishvananda/netlink/nl"

	"github.com/m-lab/netlinkctl/nlsock"
)

// fakeConn is an in-memory nlsock.Conn driving Control's request/reply
// cycle: Send captures the outgoing request's sequence number and
// replies (unless noReply is set) with one NEW-link message tagged
// with this conn's call count, followed by a terminator, both carrying
// the request's own sequence so reqtask's demultiplexing accepts them.
// Receive blocks on the scripted reply or on Cancel, whichever comes
// first - the same role a net.Pipe plays in transport-level tests.
type fakeConn struct {
	pid      uint32
	noReply  int32 // 0/1, set via atomic before issuing a request
	calls    int32
	ch       chan []syscall.NetlinkMessage
	cancelCh chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{pid: 100, ch: make(chan []syscall.NetlinkMessage, 16), cancelCh: make(chan struct{})}
}

func (f *fakeConn) Send(req *nl.NetlinkRequest) error {
	if atomic.LoadInt32(&f.noReply) != 0 {
		return nil
	}
	call := atomic.AddInt32(&f.calls, 1) // 1-indexed: call N answers with Index N
	seq := uint32(req.Seq)
	link := make([]byte, 16)
	putLE32(link[4:8], uint32(call))
	f.ch <- []syscall.NetlinkMessage{msgHdr(seq, f.pid, 16 /* RTM_NEWLINK */, 0, link)}
	f.ch <- []syscall.NetlinkMessage{msgHdr(seq, f.pid, 3 /* NLMSG_DONE */, 0, nil)}
	return nil
}

func (f *fakeConn) Receive() ([]syscall.NetlinkMessage, error) {
	select {
	case b := <-f.ch:
		return b, nil
	case <-f.cancelCh:
		return nil, nlsock.ErrAborted
	}
}

func (f *fakeConn) Pid() (uint32, error) { return f.pid, nil }
func (f *fakeConn) Cancel()              { f.once.Do(func() { close(f.cancelCh) }) }
func (f *fakeConn) Close()               { f.Cancel() }

func putLE32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func msgHdr(seq, pid uint32, msgType uint16, flags uint16, data []byte) syscall.NetlinkMessage {
	return syscall.NetlinkMessage{
		Header: syscall.NlMsghdr{Len: uint32(16 + len(data)), Type: msgType, Flags: flags, Seq: seq, Pid: pid},
		Data:   data,
	}
}

func newTestControl() (*Control, *fakeConn) {
	conn := newFakeConn()
	c := NewWithOpener(func() (nlsock.Conn, error) { return conn, nil })
	return c, conn
}

func TestControlDumpLinksReturnsScriptedResult(t *testing.T) {
	c, _ := newTestControl()
	defer c.Close()

	links, err := c.DumpLinks()
	if err != nil {
		t.Fatalf("DumpLinks: %v", err)
	}
	if len(links) != 1 || links[0].Index != 1 {
		t.Errorf("links = %+v, want one link with Index 1", links)
	}
}

func TestControlSerializesConcurrentRequestsFIFO(t *testing.T) {
	c, _ := newTestControl()
	defer c.Close()

	const n = 5
	results := make([]int32, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Staggering submission keeps arrival order at the jobs
			// channel deterministic, so each goroutine's result
			// reflects its own position in submission order.
			time.Sleep(time.Duration(i) * 20 * time.Millisecond)
			links, err := c.DumpLinks()
			errs[i] = err
			if err == nil && len(links) == 1 {
				results[i] = links[0].Index
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: DumpLinks error: %v", i, errs[i])
		}
		if want := int32(i + 1); results[i] != want {
			t.Errorf("goroutine %d: got link index %d, want %d (submission order not preserved)", i, results[i], want)
		}
	}
}

func TestControlDumpLinksCtxCancelBeforeDequeue(t *testing.T) {
	c, conn := newTestControl()
	defer c.Close()

	// Occupy the worker with a request that will never get a reply, so
	// the queue is genuinely full: the next submission's "send onto
	// the jobs channel" case cannot be ready, which is what makes the
	// already-canceled ctx.Done() case the only one select can take -
	// without this, a lucky schedule could dequeue the job before
	// observing the cancellation.
	atomic.StoreInt32(&conn.noReply, 1)
	go c.DumpLinks()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already canceled before the job can ever be dequeued

	_, err := c.DumpLinksCtx(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestControlCloseIsIdempotent(t *testing.T) {
	c, _ := newTestControl()
	c.Close()
	c.Close() // must not panic
}

func TestControlCloseAbortsPendingRequest(t *testing.T) {
	c, conn := newTestControl()
	atomic.StoreInt32(&conn.noReply, 1) // Receive will block until Cancel

	errCh := make(chan error, 1)
	go func() {
		_, err := c.DumpLinks()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond) // let the request reach Receive
	c.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error after Close aborted the in-flight request")
		}
	case <-time.After(time.Second):
		t.Fatal("DumpLinks never returned after Close")
	}
}
