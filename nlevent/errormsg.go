package nlevent

import "github.com/m-lab/netlinkctl/nlwire"

// ErrorEvent reports a kernel NLMSG_ERROR message: a signed error
// code (0 meaning a positive acknowledgement, not a failure) and the
// header of the request that triggered it, exactly as the route
// channel embeds it in the error message body.
type ErrorEvent struct {
	Code     int32
	Original nlwire.Header
}

// ParseError decodes an NLMSG_ERROR message body: a 4-byte signed
// error code followed by the nlmsghdr of the message that caused the
// failure. It returns (zero, false) if body is too short to contain
// both.
func ParseError(body []byte) (ErrorEvent, bool) {
	if len(body) < 4+nlwire.HeaderLen {
		return ErrorEvent{}, false
	}
	orig, ok := nlwire.ParseHeader(body[4:])
	if !ok {
		return ErrorEvent{}, false
	}
	return ErrorEvent{
		Code:     int32(nlwire.Uint32(body[0:4])),
		Original: orig,
	}, true
}
