// Package codec decodes and encodes BOOTP/DHCP frames on the wire, grounded
// in the teacher's dhcp/protocol byte-layout conventions and generalised to
// the typed option set in dhcp/frame.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"dhcpd/dhcp/frame"
)

// ErrMalformed is the sentinel wrapped by every decode failure.
var ErrMalformed = errors.New("malformed bootp frame")

// ErrMissingRequiredOption is wrapped by encode failures when option 53 or
// 54 is absent from the frame being serialised.
var ErrMissingRequiredOption = errors.New("missing required dhcp option")

const (
	minFrameLength = 240 // 236-byte BOOTP header + 4-byte magic cookie
	minWireLength  = 300 // encode pads up to this minimum
	chaddrOffset   = 28
	chaddrLen      = 16
	snameOffset    = 44
	snameLen       = 64
	fileOffset     = 108
	fileLen        = 128
	magicOffset    = 236
	optionsOffset  = 240
)

// optionFamily maps each option key the core recognises to the OptionKind
// its payload is decoded as; the width of a numeric kind follows from the
// kind itself.
var optionFamily = map[frame.OptionKey]frame.OptionKind{
	frame.OptSubnetMask:           frame.KindIPList,
	frame.OptRouter:               frame.KindIPList,
	frame.OptDNS:                  frame.KindIPList,
	frame.OptBroadcast:            frame.KindIPList,
	frame.OptRequestedIP:          frame.KindIPList,
	frame.OptIPLeaseTime:          frame.KindU32,
	frame.OptMessageType:          frame.KindU8,
	frame.OptServerIdentifier:     frame.KindIPList,
	frame.OptParameterRequestList: frame.KindKeyList,
	frame.OptRenewalTime:          frame.KindU32,
	frame.OptRebindingTime:        frame.KindU32,
}

// Decode parses a received datagram into a Frame. Decoding is lenient about
// a missing End terminator (the caller is expected to check MessageType()
// before trusting the result) but strict about the fixed-length header and
// the magic cookie.
func Decode(data []byte) (*frame.Frame, error) {
	if len(data) < minFrameLength {
		return nil, fmt.Errorf("%w: frame is %d bytes, need at least %d", ErrMalformed, len(data), minFrameLength)
	}

	magic := binary.BigEndian.Uint32(data[magicOffset : magicOffset+4])
	if magic != frame.MagicCookie {
		return nil, fmt.Errorf("%w: bad magic cookie %#x", ErrMalformed, magic)
	}

	f := frame.New()
	f.Op = data[0]
	f.HType = data[1]
	f.HLen = data[2]
	f.Hops = data[3]
	f.XID = binary.BigEndian.Uint32(data[4:8])
	f.Secs = binary.BigEndian.Uint16(data[8:10])
	f.Flags = binary.BigEndian.Uint16(data[10:12])
	f.CIAddr = frame.IPv4(binary.BigEndian.Uint32(data[12:16]))
	f.YIAddr = frame.IPv4(binary.BigEndian.Uint32(data[16:20]))
	f.SIAddr = frame.IPv4(binary.BigEndian.Uint32(data[20:24]))
	f.GIAddr = frame.IPv4(binary.BigEndian.Uint32(data[24:28]))

	hlen := int(f.HLen)
	if hlen > 6 {
		hlen = 6
	}
	f.CHAddr = frame.HardwareAddrFromBytes(data[chaddrOffset : chaddrOffset+hlen])

	opts, err := decodeOptions(data[optionsOffset:])
	if err != nil {
		return nil, err
	}
	f.Options = opts
	return f, nil
}

func decodeOptions(buf []byte) (map[frame.OptionKey]frame.OptionValue, error) {
	opts := make(map[frame.OptionKey]frame.OptionValue)
	i := 0
	for i < len(buf) {
		key := frame.OptionKey(buf[i])
		if key == frame.OptPad {
			i++
			continue
		}
		if key == frame.OptEnd {
			break
		}
		if i+1 >= len(buf) {
			break // lenient: truncated trailing option, stop gathering
		}
		length := int(buf[i+1])
		start := i + 2
		end := start + length
		if end > len(buf) {
			break
		}
		value := buf[start:end]

		if key == frame.OptMessageType && length != 1 {
			return nil, fmt.Errorf("%w: option 53 has length %d, want 1", ErrMalformed, length)
		}

		opts[key] = decodeOptionValue(key, value)
		i = end
	}
	return opts, nil
}

func decodeOptionValue(key frame.OptionKey, value []byte) frame.OptionValue {
	if key == frame.OptParameterRequestList {
		keys := make([]frame.OptionKey, len(value))
		for i, b := range value {
			keys[i] = frame.OptionKey(b)
		}
		return frame.KeyListValue(keys...)
	}

	switch optionFamily[key] {
	case frame.KindU8:
		if len(value) == 1 {
			return frame.U8Value(value[0])
		}
	case frame.KindU16:
		if len(value) == 2 {
			return frame.U16Value(binary.BigEndian.Uint16(value))
		}
	case frame.KindU32:
		if len(value) == 4 {
			return frame.U32Value(binary.BigEndian.Uint32(value))
		}
	case frame.KindIPList:
		if len(value)%4 == 0 {
			ips := make([]frame.IPv4, 0, len(value)/4)
			for i := 0; i+4 <= len(value); i += 4 {
				ips = append(ips, frame.IPv4(binary.BigEndian.Uint32(value[i:i+4])))
			}
			return frame.IPListValue(ips...)
		}
	}
	return frame.RawValue(value)
}

// Encode serialises f into a byte slice padded to at least 300 bytes.
// Option 53 (MessageType) and 54 (ServerIdentifier) are written first, in
// that order, followed by every other option in map-iteration order, then
// the End terminator. Absence of 53 or 54 is a serialisation failure — the
// caller drops the frame rather than send a non-conformant reply.
func Encode(f *frame.Frame) ([]byte, error) {
	if _, ok := f.Options[frame.OptMessageType]; !ok {
		return nil, fmt.Errorf("%w: option 53 (message type)", ErrMissingRequiredOption)
	}
	if _, ok := f.Options[frame.OptServerIdentifier]; !ok {
		return nil, fmt.Errorf("%w: option 54 (server identifier)", ErrMissingRequiredOption)
	}

	data := make([]byte, optionsOffset, minWireLength)
	data[0] = f.Op
	data[1] = f.HType
	data[2] = f.HLen
	data[3] = f.Hops
	binary.BigEndian.PutUint32(data[4:8], f.XID)
	binary.BigEndian.PutUint16(data[8:10], f.Secs)
	binary.BigEndian.PutUint16(data[10:12], f.Flags)
	binary.BigEndian.PutUint32(data[12:16], uint32(f.CIAddr))
	binary.BigEndian.PutUint32(data[16:20], uint32(f.YIAddr))
	binary.BigEndian.PutUint32(data[20:24], uint32(f.SIAddr))
	binary.BigEndian.PutUint32(data[24:28], uint32(f.GIAddr))
	copy(data[chaddrOffset:chaddrOffset+6], f.CHAddr.Bytes())
	// remaining 10 bytes of chaddr, all of sname (snameOffset..+snameLen)
	// and file (fileOffset..+fileLen), stay zero.
	binary.BigEndian.PutUint32(data[magicOffset:magicOffset+4], frame.MagicCookie)

	data = appendOption(data, frame.OptMessageType, f.Options[frame.OptMessageType])
	data = appendOption(data, frame.OptServerIdentifier, f.Options[frame.OptServerIdentifier])
	for key, val := range f.Options {
		if key == frame.OptMessageType || key == frame.OptServerIdentifier {
			continue
		}
		data = appendOption(data, key, val)
	}
	data = append(data, byte(frame.OptEnd))

	if len(data) < minWireLength {
		data = append(data, make([]byte, minWireLength-len(data))...)
	}
	return data, nil
}

func appendOption(data []byte, key frame.OptionKey, v frame.OptionValue) []byte {
	payload := encodeOptionValue(v)
	data = append(data, byte(key), byte(len(payload)))
	return append(data, payload...)
}

func encodeOptionValue(v frame.OptionValue) []byte {
	switch v.Kind {
	case frame.KindU8:
		return []byte{v.U8}
	case frame.KindU16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, v.U16)
		return b
	case frame.KindU32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v.U32)
		return b
	case frame.KindIPList:
		b := make([]byte, 0, len(v.IPList)*4)
		for _, ip := range v.IPList {
			ipb := make([]byte, 4)
			binary.BigEndian.PutUint32(ipb, uint32(ip))
			b = append(b, ipb...)
		}
		return b
	case frame.KindKeyList:
		b := make([]byte, len(v.KeyList))
		for i, k := range v.KeyList {
			b[i] = byte(k)
		}
		return b
	default:
		return v.RawBytes
	}
}
