package nlevent

import "github.com/m-lab/netlinkctl/nlwire"

// AddrFlags is the opaque address-flag bitset carried on an
// ifaddrmsg (IFA_F_SECONDARY, IFA_F_PERMANENT, ...).
type AddrFlags uint32

func (f AddrFlags) Has(want AddrFlags) bool      { return f&want == want }
func (f AddrFlags) Union(other AddrFlags) AddrFlags    { return f | other }
func (f AddrFlags) Intersect(other AddrFlags) AddrFlags { return f & other }

// MarshalCSV renders f as its raw hex value, so gocsv (used by
// cmd/nlctl-dump) can write it without needing to know it's a
// bitset.
func (f AddrFlags) MarshalCSV() (string, error) {
	return fmtHex(uint32(f)), nil
}

const (
	AddrSecondary AddrFlags = 0x01
	AddrPermanent AddrFlags = 0x80
)

// AddressEvent reports an address being added to or removed from an
// interface.
type AddressEvent struct {
	Action    Action
	Index     int32
	Family    uint8
	PrefixLen uint8
	Scope     uint8
	Flags     AddrFlags
	Address   string
	Label     string
}

const ifaddrmsgLen = 8

const (
	ifaAddress = 1
	ifaLocal   = 2
	ifaLabel   = 3
	ifaFlags   = 8
)

// ParseAddress decodes a message body shaped like an ifaddrmsg
// followed by IFA_* attributes into an AddressEvent.
func ParseAddress(msgType uint16, body []byte) (AddressEvent, bool) {
	if len(body) < ifaddrmsgLen {
		return AddressEvent{}, false
	}
	// struct ifaddrmsg { family u8; prefixlen u8; flags u8; scope u8; index u32 }
	ev := AddressEvent{
		Action:    actionOf(msgType),
		Family:    body[0],
		PrefixLen: body[1],
		Scope:     body[3],
		Index:     int32(nlwire.Uint32(body[4:8])),
	}
	if ev.Action == Unknown {
		return AddressEvent{}, false
	}
	haveLocal := false
	attrDecoder(body, ifaddrmsgLen, func(a nlwire.Attribute) {
		switch a.Type {
		case ifaLocal:
			ev.Address = nlwire.IPString(ev.Family, a.Value)
			haveLocal = true
		case ifaAddress:
			if !haveLocal {
				ev.Address = nlwire.IPString(ev.Family, a.Value)
			}
		case ifaLabel:
			ev.Label = nlwire.CString(a.Value)
		case ifaFlags:
			ev.Flags = AddrFlags(nlwire.Uint32(a.Value))
		}
	})
	return ev, true
}
