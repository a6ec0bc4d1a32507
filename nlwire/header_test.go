package nlwire

import (
	"net"
	"testing"

	"golang.org/x/sys/unix"
)

func buildMsg(msgType uint16, flags uint16, seq, pid uint32, body []byte) []byte {
	total := HeaderLen + len(body)
	b := make([]byte, Align(total))
	PutHeader(b, Header{Length: uint32(total), Type: msgType, Flags: flags, Sequence: seq, PortID: pid})
	copy(b[HeaderLen:], body)
	return b
}

func TestWalkMessagesSingle(t *testing.T) {
	body := []byte{1, 2, 3, 4}
	b := buildMsg(16, FlagRequest, 7, 99, body)

	var got []Message
	WalkMessages(b, func(m Message) bool {
		got = append(got, m)
		return true
	})
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	if got[0].Header.Sequence != 7 || got[0].Header.PortID != 99 {
		t.Errorf("unexpected header %+v", got[0].Header)
	}
	if len(got[0].Body) != 4 {
		t.Errorf("body length = %d, want 4", len(got[0].Body))
	}
}

func TestWalkMessagesMulti(t *testing.T) {
	m1 := buildMsg(16, FlagRequest|FlagMulti, 1, 1, []byte{1, 2, 3})
	m2 := buildMsg(3 /* DONE */, FlagMulti, 1, 1, nil)
	b := append(m1, m2...)

	var types []uint16
	WalkMessages(b, func(m Message) bool {
		types = append(types, m.Header.Type)
		return true
	})
	if len(types) != 2 || types[1] != TypeDone {
		t.Fatalf("got types %v, want [16, DONE]", types)
	}
}

func TestWalkMessagesTruncatedHeaderStops(t *testing.T) {
	b := []byte{1, 2, 3} // shorter than HeaderLen
	called := false
	WalkMessages(b, func(m Message) bool {
		called = true
		return true
	})
	if called {
		t.Error("fn should not be called for a truncated header")
	}
}

func TestWalkMessagesBadLengthStops(t *testing.T) {
	b := make([]byte, HeaderLen)
	PutHeader(b, Header{Length: 9999})
	called := false
	WalkMessages(b, func(m Message) bool {
		called = true
		return true
	})
	if called {
		t.Error("fn should not be called when declared length overflows the buffer")
	}
}

func TestWalkAttributes(t *testing.T) {
	var attrs []byte
	attrs = PutUint32Attr(attrs, 5, 42)
	attrs = PutBytesAttr(attrs, 3, []byte("eth0"))

	var got []Attribute
	WalkAttributes(attrs, 0, func(a Attribute) bool {
		got = append(got, a)
		return true
	})
	if len(got) != 2 {
		t.Fatalf("got %d attributes, want 2", len(got))
	}
	if got[0].Type != 5 || Uint32(got[0].Value) != 42 {
		t.Errorf("attr[0] = %+v", got[0])
	}
	if got[1].Type != 3 || CString(got[1].Value) != "eth0" {
		t.Errorf("attr[1] = %+v", got[1])
	}
}

func TestWalkAttributesTruncatedStops(t *testing.T) {
	b := []byte{10, 0, 1, 0} // declares length 10 but only 4 bytes present
	called := false
	WalkAttributes(b, 0, func(a Attribute) bool {
		called = true
		return true
	})
	if called {
		t.Error("fn should not be called for a truncated attribute")
	}
}

func TestAlign(t *testing.T) {
	cases := map[int]int{0: 0, 1: 4, 3: 4, 4: 4, 5: 8, 17: 20}
	for in, want := range cases {
		if got := Align(in); got != want {
			t.Errorf("Align(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestIPString(t *testing.T) {
	v4 := []byte{127, 0, 0, 1}
	if got := IPString(unix.AF_INET, v4); got != "127.0.0.1" {
		t.Errorf("IPString(AF_INET, v4) = %q", got)
	}
	v6 := net.ParseIP("::1").To16()
	if got := IPString(unix.AF_INET6, v6); got != "::1" {
		t.Errorf("IPString(AF_INET6, v6) = %q", got)
	}
	if got := IPString(unix.AF_INET, []byte{1, 2, 3}); got != "" {
		t.Errorf("IPString(bad length) = %q, want empty", got)
	}
	if got := IPString(unix.AF_INET6, v4); got != "" {
		t.Errorf("IPString(family mismatch) = %q, want empty", got)
	}
	if got := IPString(99, v4); got != "" {
		t.Errorf("IPString(unknown family) = %q, want empty", got)
	}
}
