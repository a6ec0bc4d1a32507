package nlevent

// Route-channel message type constants used by ParseAny to route a
// message body to the correct per-kind parser.
const (
	RTMNewLink  = rtmNewLink
	RTMDelLink  = rtmDelLink
	RTMNewAddr  = rtmNewAddr
	RTMDelAddr  = rtmDelAddr
	RTMNewRoute = rtmNewRoute
	RTMDelRoute = rtmDelRoute
	RTMNewNeigh = rtmNewNeigh
	RTMDelNeigh = rtmDelNeigh
)

// ParseAny parses body according to msgType and returns the decoded
// event as one of the values LinkEvent, AddressEvent, RouteEvent, or
// NeighborEvent. It returns (nil, false) for any message type this
// module does not model (including NLMSG_DONE/NLMSG_ERROR, which
// reqtask handles separately before a message ever reaches here) or
// one that fails to parse.
func ParseAny(msgType uint16, body []byte) (interface{}, bool) {
	switch msgType {
	case RTMNewLink, RTMDelLink:
		ev, ok := ParseLink(msgType, body)
		return ev, ok
	case RTMNewAddr, RTMDelAddr:
		ev, ok := ParseAddress(msgType, body)
		return ev, ok
	case RTMNewRoute, RTMDelRoute:
		ev, ok := ParseRoute(msgType, body)
		return ev, ok
	case RTMNewNeigh, RTMDelNeigh:
		ev, ok := ParseNeighbor(msgType, body)
		return ev, ok
	default:
		return nil, false
	}
}
