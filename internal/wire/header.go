package wire

// FixedHeader is the one-byte type+flags field plus the remaining-length
// field present at the start of every MQTT control packet.
type FixedHeader struct {
	Type            PacketType
	Flags           uint8
	RemainingLength int
}

// AppendFixedHeader appends the encoded fixed header (type/flags byte plus
// the 1-4 byte remaining-length field) to dst.
func AppendFixedHeader(dst []byte, t PacketType, flags uint8, remainingLength int) []byte {
	dst = append(dst, byte(t)<<4|(flags&0x0F))
	return appendVarInt(dst, remainingLength)
}

// DecodeFixedHeader parses a fixed header from the start of buf.
//
// ok is false (consumed==0, err==nil) when buf does not yet contain the
// full fixed header, mirroring the restartable contract of the rest of
// this package. maxMessage caps RemainingLength; a header whose remaining
// length exceeds it fails with ErrBadResponse.
func DecodeFixedHeader(buf []byte, maxMessage int) (h FixedHeader, consumed int, ok bool, err error) {
	if len(buf) < 1 {
		return FixedHeader{}, 0, false, nil
	}
	first := buf[0]
	t := PacketType(first >> 4)
	flags := first & 0x0F

	remLen, n, varOK, verr := decodeVarInt(buf[1:])
	if verr != nil {
		return FixedHeader{}, 0, false, verr
	}
	if !varOK {
		return FixedHeader{}, 0, false, nil
	}
	if remLen > maxMessage {
		return FixedHeader{}, 0, false, ErrBadResponse
	}
	if err := validateInboundHeader(t, flags); err != nil {
		return FixedHeader{}, 0, false, err
	}
	return FixedHeader{Type: t, Flags: flags, RemainingLength: remLen}, 1 + n, true, nil
}

// FrameLen returns the total on-wire length (fixed header + remaining
// length field + body) for a packet whose body is bodyLen bytes.
func FrameLen(bodyLen int) int {
	return 1 + varIntSize(bodyLen) + bodyLen
}
