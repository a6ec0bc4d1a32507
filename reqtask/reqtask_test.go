package reqtask

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/vishvananda/netlink/nl"

	"github.com/m-lab/netlinkctl/nlguard"
	"github.com/m-lab/netlinkctl/nlsock"
)

// countingTask accumulates the number of messages it has seen; it
// stands in for a real nltask.Tasker so this package's engine can be
// tested without a kernel socket.
type countingTask struct {
	req *nl.NetlinkRequest
	n   int
}

func (t *countingTask) Name() string                         { return "test-task" }
func (t *countingTask) BuildRequest() (*nl.NetlinkRequest, error) { return t.req, nil }
func (t *countingTask) ProcessMessage(h syscall.NlMsghdr, body []byte) (int, bool) {
	t.n++
	return t.n, true
}

func newGuard(conn *fakeConn) *nlguard.Guard {
	return nlguard.NewWithOpener(func() (nlsock.Conn, error) {
		return conn, nil
	})
}

func TestRunTerminatesOnDone(t *testing.T) {
	req := nl.NewNetlinkRequest(22, 0)
	conn := &fakeConn{pid: 100}
	conn.batches = [][]syscall.NetlinkMessage{
		{msg(uint32(req.Seq), 100, 3 /* DONE */, 0, nil)},
	}
	task := &countingTask{req: req}

	result, err := Run[int](context.Background(), newGuard(conn), task)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result != 0 {
		t.Errorf("result = %d, want 0 (DONE with nothing processed first)", result)
	}
}

func TestRunAccumulatesMultiPartMessages(t *testing.T) {
	req := nl.NewNetlinkRequest(22, 0)
	seq := uint32(req.Seq)
	conn := &fakeConn{pid: 100}
	conn.batches = [][]syscall.NetlinkMessage{
		{
			msg(seq, 100, 16, syscall.NLM_F_MULTI, []byte{1}),
			msg(seq, 100, 16, syscall.NLM_F_MULTI, []byte{2}),
		},
		{msg(seq, 100, 3 /* DONE */, syscall.NLM_F_MULTI, nil)},
	}
	task := &countingTask{req: req}

	result, err := Run[int](context.Background(), newGuard(conn), task)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result != 2 {
		t.Errorf("result = %d, want 2 (one per multi-part message)", result)
	}
}

func TestRunSingleMessageNoMultiFlagTerminates(t *testing.T) {
	req := nl.NewNetlinkRequest(22, 0)
	seq := uint32(req.Seq)
	conn := &fakeConn{pid: 100}
	conn.batches = [][]syscall.NetlinkMessage{
		{msg(seq, 100, 16, 0 /* no MULTI */, []byte{9})},
	}
	task := &countingTask{req: req}

	_, err := Run[int](context.Background(), newGuard(conn), task)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunErrorMessageZeroIsSuccess(t *testing.T) {
	req := nl.NewNetlinkRequest(22, 0)
	seq := uint32(req.Seq)
	conn := &fakeConn{pid: 100}
	errnoZero := make([]byte, 4) // native-order 0
	conn.batches = [][]syscall.NetlinkMessage{
		{msg(seq, 100, uint16(2) /* NLMSG_ERROR */, 0, errnoZero)},
	}
	task := &countingTask{req: req}

	_, err := Run[int](context.Background(), newGuard(conn), task)
	if err != nil {
		t.Fatalf("Run returned error for a zero-code ACK: %v", err)
	}
}

func TestRunErrorMessageNonZeroIsError(t *testing.T) {
	req := nl.NewNetlinkRequest(22, 0)
	seq := uint32(req.Seq)
	conn := &fakeConn{pid: 100}
	errno := []byte{244, 255, 255, 255} // little-endian -12 (-ENOMEM)
	conn.batches = [][]syscall.NetlinkMessage{
		{msg(seq, 100, uint16(2), 0, errno)},
	}
	task := &countingTask{req: req}

	_, err := Run[int](context.Background(), newGuard(conn), task)
	if err == nil {
		t.Fatal("expected an error for a non-zero NLMSG_ERROR code")
	}
}

func TestRunIgnoresMismatchedSequenceNumber(t *testing.T) {
	req := nl.NewNetlinkRequest(22, 0)
	seq := uint32(req.Seq)
	conn := &fakeConn{pid: 100}
	conn.batches = [][]syscall.NetlinkMessage{
		{
			msg(seq+1, 100, 16, syscall.NLM_F_MULTI, []byte{1}), // someone else's reply
			msg(seq, 100, 3 /* DONE */, 0, nil),
		},
	}
	task := &countingTask{req: req}

	result, err := Run[int](context.Background(), newGuard(conn), task)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result != 0 {
		t.Errorf("result = %d, want 0 (the mismatched-sequence message must not have been processed)", result)
	}
}

func TestRunIgnoresMismatchedPid(t *testing.T) {
	req := nl.NewNetlinkRequest(22, 0)
	seq := uint32(req.Seq)
	conn := &fakeConn{pid: 100}
	conn.batches = [][]syscall.NetlinkMessage{
		{
			msg(seq, 200, 16, syscall.NLM_F_MULTI, []byte{1}), // addressed to a different socket
			msg(seq, 100, 3 /* DONE */, 0, nil),
		},
	}
	task := &countingTask{req: req}

	result, err := Run[int](context.Background(), newGuard(conn), task)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result != 0 {
		t.Errorf("result = %d, want 0 (the mismatched-pid message must not have been processed)", result)
	}
}

func TestRunCancelViaContext(t *testing.T) {
	req := nl.NewNetlinkRequest(22, 0)
	conn := &fakeConn{pid: 100} // no scripted batches: Receive blocks forever until canceled
	task := &countingTask{req: req}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Run[int](ctx, newGuard(conn), task)
	if err == nil {
		t.Fatal("expected an error after context cancellation")
	}
}
