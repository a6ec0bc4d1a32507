package nlevent

import (
	"strconv"

	"github.com/m-lab/netlinkctl/nlwire"
)

// RouteEvent reports a route being added to or removed from a
// routing table.
type RouteEvent struct {
	Action   Action
	Family   uint8
	DstLen   uint8
	SrcLen   uint8
	Scope    uint8
	Protocol uint8
	Kind     uint8
	Flags    uint32
	Table    uint8
	Priority uint32
	OutIndex int32
	Dst      string
	Src      string
	Gateway  string
	PrefSrc  string
	OutName  string
}

const rtmsgLen = 12

const (
	rtaDst      = 1
	rtaSrc      = 2
	rtaIif      = 3
	rtaOif      = 4
	rtaGateway  = 5
	rtaPriority = 6
	rtaPrefSrc  = 7
	rtaTable    = 15
)

// ParseRoute decodes a message body shaped like an rtmsg followed by
// RTA_* attributes into a RouteEvent.
func ParseRoute(msgType uint16, body []byte) (RouteEvent, bool) {
	if len(body) < rtmsgLen {
		return RouteEvent{}, false
	}
	// struct rtmsg { family, dst_len, src_len, tos, table, protocol,
	//                scope, type u8; flags u32 }
	ev := RouteEvent{
		Action:   actionOf(msgType),
		Family:   body[0],
		DstLen:   body[1],
		SrcLen:   body[2],
		Table:    body[4],
		Protocol: body[5],
		Scope:    body[6],
		Kind:     body[7],
		Flags:    nlwire.Uint32(body[8:12]),
	}
	if ev.Action == Unknown {
		return RouteEvent{}, false
	}
	attrDecoder(body, rtmsgLen, func(a nlwire.Attribute) {
		switch a.Type {
		case rtaDst:
			ev.Dst = nlwire.IPString(ev.Family, a.Value)
		case rtaSrc:
			ev.Src = nlwire.IPString(ev.Family, a.Value)
		case rtaGateway:
			ev.Gateway = nlwire.IPString(ev.Family, a.Value)
		case rtaPrefSrc:
			ev.PrefSrc = nlwire.IPString(ev.Family, a.Value)
		case rtaOif:
			ev.OutIndex = int32(nlwire.Uint32(a.Value))
		case rtaPriority:
			ev.Priority = nlwire.Uint32(a.Value)
		case rtaTable:
			ev.Table = uint8(nlwire.Uint32(a.Value))
		}
	})
	// The route channel carries no interface-name attribute; the
	// textual form of the outgoing index is the only name available.
	if ev.OutIndex != 0 {
		ev.OutName = strconv.Itoa(int(ev.OutIndex))
	}
	return ev, true
}
