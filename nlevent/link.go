package nlevent

import "github.com/m-lab/netlinkctl/nlwire"

// LinkFlags is the opaque device-flag bitset carried on an
// ifinfomsg (IFF_UP, IFF_BROADCAST, IFF_RUNNING, ...). Callers compare
// against specific bits with Has rather than treating the value as a
// plain integer.
type LinkFlags uint32

// Has reports whether every bit set in want is also set in f.
func (f LinkFlags) Has(want LinkFlags) bool { return f&want == want }

// Union returns the bitwise OR of f and other.
func (f LinkFlags) Union(other LinkFlags) LinkFlags { return f | other }

// Intersect returns the bitwise AND of f and other.
func (f LinkFlags) Intersect(other LinkFlags) LinkFlags { return f & other }

// MarshalCSV renders f as its raw hex value, so gocsv (used by
// cmd/nlctl-dump) can write it without needing to know it's a
// bitset.
func (f LinkFlags) MarshalCSV() (string, error) {
	return fmtHex(uint32(f)), nil
}

// Common LinkFlags bits, mirroring <linux/if.h>.
const (
	LinkUp      LinkFlags = 1 << 0
	LinkBroadcast LinkFlags = 1 << 1
	LinkRunning LinkFlags = 1 << 6
	LinkLoopback LinkFlags = 1 << 3
)

// LinkEvent reports an interface creation, deletion, or state change.
type LinkEvent struct {
	Action Action
	Index  int32
	Flags  LinkFlags
	Change uint32
	Name   string
}

const ifinfomsgLen = 16

// IFLA_* attribute types this module decodes.
const (
	iflaUnspec = 0
	iflaAddress = 1
	iflaBroadcast = 2
	iflaIfname  = 3
)

// ParseLink decodes a message body shaped like an ifinfomsg followed
// by IFLA_* attributes into a LinkEvent. It returns (zero, false) if
// the body is too short to hold the fixed ifinfomsg, in which case
// the caller drops the message without treating it as an error.
func ParseLink(msgType uint16, body []byte) (LinkEvent, bool) {
	if len(body) < ifinfomsgLen {
		return LinkEvent{}, false
	}
	// struct ifinfomsg { ifi_family u8; _pad u8; ifi_type u16;
	//                     ifi_index i32; ifi_flags u32; ifi_change u32 }
	ev := LinkEvent{
		Action: actionOf(msgType),
		Index:  int32(nlwire.Uint32(body[4:8])),
		Flags:  LinkFlags(nlwire.Uint32(body[8:12])),
		Change: nlwire.Uint32(body[12:16]),
	}
	if ev.Action == Unknown {
		return LinkEvent{}, false
	}
	attrDecoder(body, ifinfomsgLen, func(a nlwire.Attribute) {
		if a.Type == iflaIfname {
			ev.Name = nlwire.CString(a.Value)
		}
	})
	return ev, true
}
