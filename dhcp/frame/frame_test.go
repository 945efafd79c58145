package frame

import (
	"net"
	"testing"
)

func TestHardwareAddrRoundTrip(t *testing.T) {
	mac := net.HardwareAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	hw := HardwareAddrFromBytes(mac)
	if got := net.HardwareAddr(hw.Bytes()); got.String() != mac.String() {
		t.Fatalf("Bytes() round trip = %s, want %s", got, mac)
	}
	if hw.String() != mac.String() {
		t.Fatalf("String() = %s, want %s", hw.String(), mac.String())
	}
}

func TestHardwareAddrFromBytesShort(t *testing.T) {
	hw := HardwareAddrFromBytes([]byte{0x01, 0x02})
	want := HardwareAddr(0x0102)
	if hw != want {
		t.Fatalf("short mac = %#x, want %#x", uint64(hw), uint64(want))
	}
}

func TestIPv4RoundTrip(t *testing.T) {
	ip := net.ParseIP("192.168.1.42")
	v := IPv4FromNetIP(ip)
	if got := v.NetIP().String(); got != "192.168.1.42" {
		t.Fatalf("NetIP() = %s, want 192.168.1.42", got)
	}
	if v.IsZero() {
		t.Fatal("IsZero() = true for non-zero address")
	}
	if IPv4(0).IsZero() != true {
		t.Fatal("IsZero() = false for 0.0.0.0")
	}
}

func TestFrameMessageType(t *testing.T) {
	f := New()
	if got := f.MessageType(); got != 0 {
		t.Fatalf("MessageType() on empty frame = %d, want 0", got)
	}
	f.Options[OptMessageType] = U8Value(MsgDiscover)
	if got := f.MessageType(); got != MsgDiscover {
		t.Fatalf("MessageType() = %d, want %d", got, MsgDiscover)
	}
}

func TestFrameRequestedIP(t *testing.T) {
	f := New()
	if got := f.RequestedIP(); got != 0 {
		t.Fatalf("RequestedIP() on empty frame = %v, want 0", got)
	}
	want := IPv4FromNetIP(net.ParseIP("10.0.0.5"))
	f.Options[OptRequestedIP] = IPListValue(want)
	if got := f.RequestedIP(); got != want {
		t.Fatalf("RequestedIP() = %v, want %v", got, want)
	}
}

func TestFrameParameterRequestList(t *testing.T) {
	f := New()
	f.Options[OptParameterRequestList] = KeyListValue(OptSubnetMask, OptRouter, OptDNS)
	got := f.ParameterRequestList()
	want := []OptionKey{OptSubnetMask, OptRouter, OptDNS}
	if len(got) != len(want) {
		t.Fatalf("ParameterRequestList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ParameterRequestList()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFrameClone(t *testing.T) {
	f := New()
	f.CHAddr = HardwareAddrFromBytes([]byte{1, 2, 3, 4, 5, 6})
	f.Options[OptMessageType] = U8Value(MsgDiscover)

	c := f.Clone()
	if c == f {
		t.Fatal("Clone() returned the same pointer")
	}
	if len(c.Options) != 0 {
		t.Fatalf("Clone() Options = %v, want empty", c.Options)
	}
	if c.CHAddr != f.CHAddr {
		t.Fatalf("Clone() CHAddr = %v, want %v", c.CHAddr, f.CHAddr)
	}
}

func TestFrameIsBroadcast(t *testing.T) {
	f := New()
	if f.IsBroadcast() {
		t.Fatal("IsBroadcast() true on zero flags")
	}
	f.Flags = 0x8000
	if !f.IsBroadcast() {
		t.Fatal("IsBroadcast() false with broadcast flag set")
	}
}
