package nltask

import (
	"fmt"
	"syscall"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/m-lab/netlinkctl/nlevent"
	"github.com/m-lab/netlinkctl/nlwire"
)

// ErrNotFound is returned by GetNeighbor when the dump terminates
// without ever seeing a matching, resolved entry. It wraps unix.ENOENT,
// so errors.Is(err, unix.ENOENT) also holds for it.
var ErrNotFound = fmt.Errorf("nltask: neighbor entry not found: %w", unix.ENOENT)

const (
	ndaDst = 1
)

// getNeighborTask requests a specific interface/address pair and
// returns the first NeighborEvent that both matches the address and
// carries a resolved link-layer address.
type getNeighborTask struct {
	index   int32
	family  uint8
	address []byte
	found   nlevent.NeighborEvent
	ok      bool
}

// GetNeighbor builds a task that resolves the neighbor entry for addr
// (4 or 16 raw bytes) on the given interface index.
func GetNeighbor(index int32, family uint8, addr []byte) *getNeighborTask {
	return &getNeighborTask{index: index, family: family, address: addr}
}

func (t *getNeighborTask) Name() string { return "neighbor-get" }

func (t *getNeighborTask) BuildRequest() (*nl.NetlinkRequest, error) {
	req := nl.NewNetlinkRequest(rtmGetNeigh, unix.NLM_F_REQUEST)
	body := make([]byte, 12) // sizeof(ndmsg)
	body[0] = t.family
	putUint32(body[4:8], uint32(t.index))
	body = nlwire.PutBytesAttr(body, ndaDst, t.address)
	req.AddRawData(body)
	return req, nil
}

func (t *getNeighborTask) ProcessMessage(h syscall.NlMsghdr, body []byte) (nlevent.NeighborEvent, bool) {
	ev, ok := nlevent.ParseNeighbor(uint16(h.Type), body)
	if !ok {
		return t.found, true
	}
	if ev.Index != t.index || !addressMatches(t.family, ev.Address, t.address) {
		return t.found, true
	}
	if !ev.HasLLAddr() {
		return t.found, true
	}
	t.found, t.ok = ev, true
	return t.found, false
}

// Found reports whether GetNeighbor located a resolved entry; when
// false, callers should treat the task's zero result as ErrNotFound.
func (t *getNeighborTask) Found() bool { return t.ok }

func addressMatches(family uint8, text string, raw []byte) bool {
	return text == nlwire.IPString(family, raw)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// probeNeighborTask forces the kernel to (re)probe a neighbor entry by
// issuing a REPLACE|CREATE request with state PROBE. The response is
// a single ACK (errno 0 on success), so the task's result type is
// struct{}.
type probeNeighborTask struct {
	index   int32
	family  uint8
	address []byte
}

// ProbeNeighbor builds a task that requests the kernel re-probe the
// neighbor entry for addr on the given interface.
func ProbeNeighbor(index int32, family uint8, addr []byte) *probeNeighborTask {
	return &probeNeighborTask{index: index, family: family, address: addr}
}

func (t *probeNeighborTask) Name() string { return "neighbor-probe" }

func (t *probeNeighborTask) BuildRequest() (*nl.NetlinkRequest, error) {
	flags := unix.NLM_F_REQUEST | unix.NLM_F_ACK | unix.NLM_F_CREATE | unix.NLM_F_REPLACE
	req := nl.NewNetlinkRequest(rtmNewNeigh, flags)
	body := make([]byte, 12) // sizeof(ndmsg)
	body[0] = t.family
	putUint32(body[4:8], uint32(t.index))
	body[8] = byte(nlevent.NeighProbe)
	body = nlwire.PutBytesAttr(body, ndaDst, t.address)
	req.AddRawData(body)
	return req, nil
}

func (t *probeNeighborTask) ProcessMessage(h syscall.NlMsghdr, body []byte) (struct{}, bool) {
	return struct{}{}, true
}

// flushNeighborTask deletes a neighbor entry. The response is a
// single ACK.
type flushNeighborTask struct {
	index   int32
	family  uint8
	address []byte
}

// FlushNeighbor builds a task that deletes the neighbor entry for addr
// on the given interface.
func FlushNeighbor(index int32, family uint8, addr []byte) *flushNeighborTask {
	return &flushNeighborTask{index: index, family: family, address: addr}
}

func (t *flushNeighborTask) Name() string { return "neighbor-flush" }

func (t *flushNeighborTask) BuildRequest() (*nl.NetlinkRequest, error) {
	flags := unix.NLM_F_REQUEST | unix.NLM_F_ACK
	req := nl.NewNetlinkRequest(rtmDelNeigh, flags)
	body := make([]byte, 12) // sizeof(ndmsg)
	body[0] = t.family
	putUint32(body[4:8], uint32(t.index))
	body = nlwire.PutBytesAttr(body, ndaDst, t.address)
	req.AddRawData(body)
	return req, nil
}

func (t *flushNeighborTask) ProcessMessage(h syscall.NlMsghdr, body []byte) (struct{}, bool) {
	return struct{}{}, true
}
