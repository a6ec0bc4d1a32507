// Package nlevent defines the typed events this module delivers for
// link, address, route, and neighbor changes, and the parsers that
// turn a raw netlink message into one of them.
//
// Each parser follows the same five-step recipe: validate the message
// is long enough for the fixed family substructure, cast/copy that
// substructure, walk the TLV attributes that follow it, decode the
// ones this event type cares about, and build the exported,
// fully-owned Go value. No returned event retains a reference into
// the original receive buffer.
package nlevent

import (
	"strconv"

	"github.com/m-lab/netlinkctl/nlwire"
)

// fmtHex renders v as a "0x"-prefixed hex string, used by the bitset
// types' MarshalCSV methods.
func fmtHex(v uint32) string {
	return "0x" + strconv.FormatUint(uint64(v), 16)
}

// Action identifies what kind of change a message reports. The zero
// value, Unknown, is never delivered to a caller: every Parse*
// function in this package returns false for it.
type Action int

const (
	Unknown Action = iota
	New
	Delete
)

func (a Action) String() string {
	switch a {
	case New:
		return "NEW"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Route-channel message type constants (RTM_*), reproduced here
// rather than imported from golang.org/x/sys/unix, so that this
// package does not import it directly (package nlwire still does).
const (
	rtmNewLink    = 16
	rtmDelLink    = 17
	rtmNewAddr    = 20
	rtmDelAddr    = 21
	rtmNewRoute   = 24
	rtmDelRoute   = 25
	rtmNewNeigh   = 28
	rtmDelNeigh   = 29
)

func actionOf(msgType uint16) Action {
	switch msgType {
	case rtmNewLink, rtmNewAddr, rtmNewRoute, rtmNewNeigh:
		return New
	case rtmDelLink, rtmDelAddr, rtmDelRoute, rtmDelNeigh:
		return Delete
	default:
		return Unknown
	}
}

// attrDecoder is the shared attribute-walk used by every parser in
// this package, isolating the nlwire.WalkAttributes call site so each
// event file only has to say which attribute types it cares about.
func attrDecoder(body []byte, familySize int, want func(a nlwire.Attribute)) {
	nlwire.WalkAttributes(body, familySize, func(a nlwire.Attribute) bool {
		want(a)
		return true
	})
}
