// Package nlwire provides low-level encode/decode helpers for the
// NETLINK_ROUTE wire format: the fixed 16-byte message header, the
// family-specific fixed substructures that follow it, and the 4-byte
// aligned TLV attributes that follow those.
//
// Nothing in this package blocks or allocates a socket; it only deals
// with byte slices already in memory, keeping wire parsing separate
// from the code that actually reads a socket.
package nlwire

import (
	"encoding/binary"
	"net"

	"github.com/mdlayher/netlink/nlenc"
	"golang.org/x/sys/unix"
)

// HeaderLen is the size in bytes of the fixed nlmsghdr prefix.
const HeaderLen = 16

// Header is the fixed-size prefix of every netlink message.
type Header struct {
	Length   uint32
	Type     uint16
	Flags    uint16
	Sequence uint32
	PortID   uint32
}

// Header flag bits relevant to request/response demultiplexing.
const (
	FlagRequest = 1 << iota
	FlagMulti
	FlagAck
	FlagEcho
	_ // NLM_F_DUMP_INTR
	_ // NLM_F_DUMP_FILTERED
	_
	_
	FlagRoot
	FlagMatch
	FlagAtomic
)

// FlagDump is the conventional combination used to request a full
// table dump (NLM_F_ROOT|NLM_F_MATCH).
const FlagDump = FlagRoot | FlagMatch

// Header types common across all route-channel message kinds.
const (
	TypeNoop  = 1
	TypeError = 2
	TypeDone  = 3
	TypeOverrun = 4
)

// ParseHeader decodes the fixed header at the start of b. It returns
// false if b is shorter than HeaderLen.
func ParseHeader(b []byte) (Header, bool) {
	if len(b) < HeaderLen {
		return Header{}, false
	}
	return Header{
		Length:   nlenc.Uint32(b[0:4]),
		Type:     nlenc.Uint16(b[4:6]),
		Flags:    nlenc.Uint16(b[6:8]),
		Sequence: nlenc.Uint32(b[8:12]),
		PortID:   nlenc.Uint32(b[12:16]),
	}, true
}

// PutHeader encodes h into the first HeaderLen bytes of b. b must be
// at least HeaderLen bytes long.
func PutHeader(b []byte, h Header) {
	nlenc.PutUint32(b[0:4], h.Length)
	nlenc.PutUint16(b[4:6], h.Type)
	nlenc.PutUint16(b[6:8], h.Flags)
	nlenc.PutUint32(b[8:12], h.Sequence)
	nlenc.PutUint32(b[12:16], h.PortID)
}

// Align rounds n up to the nearest multiple of 4, the alignment the
// route channel uses for both message bodies and attributes
// (RTA_ALIGNTO / NLMSG_ALIGNTO are both 4).
func Align(n int) int {
	return (n + 3) &^ 3
}

// Message is one decoded netlink message: its header and the bytes
// that follow it up to (but not including) any trailing padding.
type Message struct {
	Header Header
	Body   []byte
}

// WalkMessages iterates over the netlink messages packed into b,
// calling fn for each one. It stops at the first malformed header
// (declared length under HeaderLen, or overflowing what remains) or
// when fn returns false: a short buffer ends the walk, it does not
// panic.
func WalkMessages(b []byte, fn func(Message) bool) {
	for len(b) >= HeaderLen {
		h, ok := ParseHeader(b)
		if !ok {
			return
		}
		length := int(h.Length)
		if length < HeaderLen || length > len(b) {
			return
		}
		body := b[HeaderLen:length]
		if !fn(Message{Header: h, Body: body}) {
			return
		}
		b = b[Align(length):]
	}
}

// Attribute is a single decoded TLV: Type is the 16-bit attribute
// type with the NLA_F_NESTED/NLA_F_NET_BYTEORDER bits masked off,
// Value is the raw payload.
type Attribute struct {
	Type  uint16
	Value []byte
}

const attrHeaderLen = 4
const attrTypeMask = 0x3fff

// WalkAttributes iterates over the TLV attributes in b, starting
// after the first skip bytes (the size of the family-specific fixed
// substructure). It stops silently at the first truncated attribute
// header or value, returning what it found so far rather than
// erroring.
func WalkAttributes(b []byte, skip int, fn func(Attribute) bool) {
	if skip > len(b) {
		return
	}
	b = b[skip:]
	for len(b) >= attrHeaderLen {
		attrLen := int(nlenc.Uint16(b[0:2]))
		if attrLen < attrHeaderLen || attrLen > len(b) {
			return
		}
		a := Attribute{
			Type:  nlenc.Uint16(b[2:4]) & attrTypeMask,
			Value: b[attrHeaderLen:attrLen],
		}
		if !fn(a) {
			return
		}
		b = b[Align(attrLen):]
	}
}

// Uint32 decodes a 4-byte host-order unsigned integer attribute value.
func Uint32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return nlenc.Uint32(b)
}

// Uint16 decodes a 2-byte host-order unsigned integer attribute value.
func Uint16(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return nlenc.Uint16(b)
}

// Uint8 decodes a 1-byte attribute value.
func Uint8(b []byte) uint8 {
	if len(b) < 1 {
		return 0
	}
	return b[0]
}

// CString decodes a NUL-terminated string attribute value.
func CString(b []byte) string {
	return nlenc.String(b)
}

// IPString decodes a raw address attribute value into its text form,
// by the declared address family: AF_INET expects 4 bytes, AF_INET6
// expects 16. It returns "" for an unsupported family, a family/length
// mismatch, or any other length.
func IPString(family uint8, b []byte) string {
	switch family {
	case unix.AF_INET:
		if len(b) != net.IPv4len {
			return ""
		}
	case unix.AF_INET6:
		if len(b) != net.IPv6len {
			return ""
		}
	default:
		return ""
	}
	return net.IP(b).String()
}

// HardwareAddrString decodes a raw link-layer address attribute value
// into colon-hex notation, e.g. "aa:bb:cc:dd:ee:ff".
func HardwareAddrString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return net.HardwareAddr(b).String()
}

// PutUint32Attr appends a 4-byte attribute (header + aligned value)
// of the given type to b and returns the extended slice.
func PutUint32Attr(b []byte, attrType uint16, v uint32) []byte {
	start := len(b)
	b = append(b, make([]byte, attrHeaderLen+4)...)
	binary.LittleEndian.PutUint16(b[start:start+2], uint16(attrHeaderLen+4))
	binary.LittleEndian.PutUint16(b[start+2:start+4], attrType)
	nlenc.PutUint32(b[start+attrHeaderLen:start+attrHeaderLen+4], v)
	return b
}

// PutBytesAttr appends a variable-length attribute (header + aligned
// value) of the given type to b and returns the extended slice.
func PutBytesAttr(b []byte, attrType uint16, v []byte) []byte {
	start := len(b)
	total := attrHeaderLen + len(v)
	padded := Align(total)
	b = append(b, make([]byte, padded)...)
	binary.LittleEndian.PutUint16(b[start:start+2], uint16(total))
	binary.LittleEndian.PutUint16(b[start+2:start+4], attrType)
	copy(b[start+attrHeaderLen:start+total], v)
	return b
}
