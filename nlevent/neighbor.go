package nlevent

import "github.com/m-lab/netlinkctl/nlwire"

// NeighState is the opaque neighbor-cache-entry state bitset (NUD_*).
// Exactly one of the "stable" states (Incomplete, Reachable, Stale,
// Delay, Probe, Failed, NoARP, Permanent) is normally set, but the
// type still exposes bitset operators since the kernel defines them
// as independent bits and NONE (no bit set) is itself meaningful.
type NeighState uint16

func (s NeighState) Has(want NeighState) bool        { return s&want == want }
func (s NeighState) Union(other NeighState) NeighState    { return s | other }
func (s NeighState) Intersect(other NeighState) NeighState { return s & other }

// MarshalCSV renders s using its String method, so gocsv (used by
// cmd/nlctl-dump) writes "REACHABLE" rather than a raw bitmask.
func (s NeighState) MarshalCSV() (string, error) {
	return s.String(), nil
}

// Neighbor cache states, mirroring <linux/neighbour.h> NUD_*.
const (
	NeighNone       NeighState = 0x00
	NeighIncomplete NeighState = 0x01
	NeighReachable  NeighState = 0x02
	NeighStale      NeighState = 0x04
	NeighDelay      NeighState = 0x08
	NeighProbe      NeighState = 0x10
	NeighFailed     NeighState = 0x20
	NeighNoARP      NeighState = 0x40
	NeighPermanent  NeighState = 0x80
)

// String renders the set bits as a "|"-joined list, e.g.
// "REACHABLE", or "NONE" when no bit is set, matching the original
// implementation's state_to_string().
func (s NeighState) String() string {
	if s == NeighNone {
		return "NONE"
	}
	names := []struct {
		bit  NeighState
		name string
	}{
		{NeighIncomplete, "INCOMPLETE"},
		{NeighReachable, "REACHABLE"},
		{NeighStale, "STALE"},
		{NeighDelay, "DELAY"},
		{NeighProbe, "PROBE"},
		{NeighFailed, "FAILED"},
		{NeighNoARP, "NOARP"},
		{NeighPermanent, "PERMANENT"},
	}
	out := ""
	for _, n := range names {
		if s.Has(n.bit) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "UNKNOWN"
	}
	return out
}

// NeighborEvent reports a change to a neighbor-table (ARP/NDP) entry.
type NeighborEvent struct {
	Action      Action
	Index       int32
	Family      uint8
	State       NeighState
	Flags       uint8
	NeighType   uint8
	Address     string
	LLAddr      string
}

const ndmsgLen = 12

const (
	ndaDst    = 1
	ndaLLAddr = 2
)

// ParseNeighbor decodes a message body shaped like an ndmsg followed
// by NDA_* attributes into a NeighborEvent.
func ParseNeighbor(msgType uint16, body []byte) (NeighborEvent, bool) {
	if len(body) < ndmsgLen {
		return NeighborEvent{}, false
	}
	// struct ndmsg { family u8; pad[3]; ifindex i32; state u16; flags u8; ntype u8 }
	ev := NeighborEvent{
		Action:    actionOf(msgType),
		Family:    body[0],
		Index:     int32(nlwire.Uint32(body[4:8])),
		State:     NeighState(nlwire.Uint16(body[8:10])),
		Flags:     body[10],
		NeighType: body[11],
	}
	if ev.Action == Unknown {
		return NeighborEvent{}, false
	}
	attrDecoder(body, ndmsgLen, func(a nlwire.Attribute) {
		switch a.Type {
		case ndaDst:
			ev.Address = nlwire.IPString(ev.Family, a.Value)
		case ndaLLAddr:
			ev.LLAddr = nlwire.HardwareAddrString(a.Value)
		}
	})
	return ev, true
}

// HasLLAddr reports whether the event carries a resolved link-layer
// address, the signal nltask.GetNeighbor waits for.
func (e NeighborEvent) HasLLAddr() bool {
	return e.LLAddr != ""
}
