// Package nltask implements the concrete request tasks offered by the
// control façade: dumping links, addresses, routes, and neighbors,
// and getting, probing, or flushing a single neighbor entry.
//
// Dump requests use a fixed struct plus NLM_F_DUMP|NLM_F_REQUEST
// flags, built with nl.NewNetlinkRequest and AddRawData; the neighbor
// get/probe/flush requests hand-build an ndmsg body with an NDA_DST
// attribute.
package nltask

import (
	"syscall"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/m-lab/netlinkctl/nlevent"
)

// Route-channel request message types (RTM_GET* for dumps).
const (
	rtmGetLink  = 18
	rtmGetAddr  = 22
	rtmGetRoute = 26
	rtmGetNeigh = 30
	rtmNewNeigh = 28
	rtmDelNeigh = 29
)

// maxIfindex is the largest interface index a dump task accepts (the
// 16-bit maximum); anything above it, or the 0 "no interface"
// sentinel, is filtered rather than delivered.
const maxIfindex = 0xffff

// dumpTask is the shared implementation behind DumpLinks, DumpAddresses,
// DumpRoutes, and DumpNeighbors: send a wildcard REQUEST|DUMP message
// of the given type and accumulate every decoded NEW event that passes
// the interface-index filter, until the terminator.
type dumpTask[E any] struct {
	name    string
	msgType uint16
	family  uint8
	fixed   int // size of the family-specific fixed substructure
	parse   func(msgType uint16, body []byte) (E, bool)
	action  func(E) nlevent.Action
	index   func(E) int32 // nil for event kinds with no interface-index filter (routes)
	results []E
}

func (t *dumpTask[E]) Name() string { return t.name }

func (t *dumpTask[E]) BuildRequest() (*nl.NetlinkRequest, error) {
	req := nl.NewNetlinkRequest(int(t.msgType), unix.NLM_F_REQUEST|unix.NLM_F_DUMP)
	body := make([]byte, t.fixed)
	body[0] = t.family
	req.AddRawData(body)
	return req, nil
}

func (t *dumpTask[E]) ProcessMessage(h syscall.NlMsghdr, body []byte) ([]E, bool) {
	ev, ok := t.parse(uint16(h.Type), body)
	if !ok || t.action(ev) != nlevent.New {
		return t.results, true
	}
	if t.index != nil {
		idx := t.index(ev)
		if idx <= 0 || idx > maxIfindex {
			return t.results, true
		}
	}
	t.results = append(t.results, ev)
	return t.results, true
}

// DumpLinks returns a task that dumps every interface.
func DumpLinks() *dumpTask[nlevent.LinkEvent] {
	return &dumpTask[nlevent.LinkEvent]{
		name:    "dump-links",
		msgType: rtmGetLink,
		fixed:   16, // sizeof(ifinfomsg)
		parse:   nlevent.ParseLink,
		action:  func(e nlevent.LinkEvent) nlevent.Action { return e.Action },
		index:   func(e nlevent.LinkEvent) int32 { return e.Index },
	}
}

// DumpAddresses returns a task that dumps every address on every
// interface (family AF_UNSPEC).
func DumpAddresses() *dumpTask[nlevent.AddressEvent] {
	return &dumpTask[nlevent.AddressEvent]{
		name:    "dump-addresses",
		msgType: rtmGetAddr,
		fixed:   8, // sizeof(ifaddrmsg)
		parse:   nlevent.ParseAddress,
		action:  func(e nlevent.AddressEvent) nlevent.Action { return e.Action },
		index:   func(e nlevent.AddressEvent) int32 { return e.Index },
	}
}

// DumpRoutes returns a task that dumps routes; the request names no
// routing table and the results are not filtered by table.
// Routes carry no interface-index filter: a route with no outgoing
// interface (OutIndex == 0), e.g. a blackhole or local route, is
// still a valid dump result.
func DumpRoutes() *dumpTask[nlevent.RouteEvent] {
	return &dumpTask[nlevent.RouteEvent]{
		name:    "dump-routes",
		msgType: rtmGetRoute,
		fixed:   12, // sizeof(rtmsg)
		parse:   nlevent.ParseRoute,
		action:  func(e nlevent.RouteEvent) nlevent.Action { return e.Action },
	}
}

// DumpNeighbors returns a task that dumps every neighbor-table entry.
func DumpNeighbors() *dumpTask[nlevent.NeighborEvent] {
	return &dumpTask[nlevent.NeighborEvent]{
		name:    "dump-neighbors",
		msgType: rtmGetNeigh,
		fixed:   12, // sizeof(ndmsg)
		parse:   nlevent.ParseNeighbor,
		action:  func(e nlevent.NeighborEvent) nlevent.Action { return e.Action },
		index:   func(e nlevent.NeighborEvent) int32 { return e.Index },
	}
}
