package codec

import (
	"errors"
	"net"
	"testing"

	"dhcpd/dhcp/frame"
)

func buildDiscover() *frame.Frame {
	f := frame.New()
	f.Op = frame.OpRequest
	f.HType = 1
	f.HLen = 6
	f.XID = 0x1234abcd
	f.CHAddr = frame.HardwareAddrFromBytes([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	f.Options[frame.OptMessageType] = frame.U8Value(frame.MsgDiscover)
	f.Options[frame.OptParameterRequestList] = frame.KeyListValue(frame.OptSubnetMask, frame.OptRouter)
	f.Options[frame.OptRequestedIP] = frame.IPListValue(frame.IPv4FromNetIP(net.ParseIP("192.168.1.50")))
	return f
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	f := buildDiscover()
	f.Options[frame.OptServerIdentifier] = frame.IPListValue(frame.IPv4FromNetIP(net.ParseIP("192.168.1.1")))

	wire, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(wire) < minWireLength {
		t.Fatalf("Encode() produced %d bytes, want at least %d", len(wire), minWireLength)
	}

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.XID != f.XID {
		t.Errorf("XID = %#x, want %#x", decoded.XID, f.XID)
	}
	if decoded.CHAddr != f.CHAddr {
		t.Errorf("CHAddr = %v, want %v", decoded.CHAddr, f.CHAddr)
	}
	if decoded.MessageType() != frame.MsgDiscover {
		t.Errorf("MessageType() = %d, want %d", decoded.MessageType(), frame.MsgDiscover)
	}
	if decoded.RequestedIP() != f.RequestedIP() {
		t.Errorf("RequestedIP() = %v, want %v", decoded.RequestedIP(), f.RequestedIP())
	}
	prl := decoded.ParameterRequestList()
	if len(prl) != 2 || prl[0] != frame.OptSubnetMask || prl[1] != frame.OptRouter {
		t.Errorf("ParameterRequestList() = %v, want [1 3]", prl)
	}
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, err := Decode(make([]byte, 100))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Decode() error = %v, want ErrMalformed", err)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := make([]byte, minFrameLength)
	_, err := Decode(data) // magic cookie bytes are zero, not 0x63825363
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Decode() error = %v, want ErrMalformed", err)
	}
}

func TestEncodeRequiresMessageType(t *testing.T) {
	f := frame.New()
	f.Options[frame.OptServerIdentifier] = frame.IPListValue(0)
	_, err := Encode(f)
	if !errors.Is(err, ErrMissingRequiredOption) {
		t.Fatalf("Encode() error = %v, want ErrMissingRequiredOption", err)
	}
}

func TestEncodeRequiresServerIdentifier(t *testing.T) {
	f := frame.New()
	f.Options[frame.OptMessageType] = frame.U8Value(frame.MsgOffer)
	_, err := Encode(f)
	if !errors.Is(err, ErrMissingRequiredOption) {
		t.Fatalf("Encode() error = %v, want ErrMissingRequiredOption", err)
	}
}

func TestDecodeLenientOnMissingEnd(t *testing.T) {
	f := buildDiscover()
	f.Options[frame.OptServerIdentifier] = frame.IPListValue(frame.IPv4FromNetIP(net.ParseIP("192.168.1.1")))
	wire, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Truncate right after the options area starts, before the End marker,
	// simulating a datagram cut short of its declared options.
	truncated := wire[:optionsOffset+4]
	decoded, err := Decode(truncated)
	if err != nil {
		t.Fatalf("Decode() on truncated options error = %v, want nil", err)
	}
	_ = decoded
}
