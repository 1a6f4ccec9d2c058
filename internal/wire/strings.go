package wire

import "github.com/cockroachdb/errors"

// ErrBadArgs signals a packable value that violates an encoding constraint
// (e.g. a string longer than 65535 bytes).
var ErrBadArgs = errors.New("bad-args")

// appendString appends a 2-byte big-endian length prefix followed by s.
// It fails with ErrBadArgs if s is longer than 65535 bytes; callers are
// expected to check this before committing bytes to a packet buffer.
func appendString(dst []byte, s string) ([]byte, error) {
	if len(s) > 0xFFFF {
		return dst, errors.Wrapf(ErrBadArgs, "string of %d bytes exceeds 65535-byte limit", len(s))
	}
	dst = append(dst, byte(len(s)>>8), byte(len(s)))
	return append(dst, s...), nil
}

// appendBytes appends a 2-byte big-endian length prefix followed by raw bytes.
func appendBytes(dst []byte, b []byte) ([]byte, error) {
	if len(b) > 0xFFFF {
		return dst, errors.Wrapf(ErrBadArgs, "binary field of %d bytes exceeds 65535-byte limit", len(b))
	}
	dst = append(dst, byte(len(b)>>8), byte(len(b)))
	return append(dst, b...), nil
}

// decodeString reads a length-prefixed UTF-8 string from buf[0:].
// ok is false when buf does not yet hold the complete field.
func decodeString(buf []byte) (s string, consumed int, ok bool) {
	if len(buf) < 2 {
		return "", 0, false
	}
	n := int(buf[0])<<8 | int(buf[1])
	if len(buf) < 2+n {
		return "", 0, false
	}
	return string(buf[2 : 2+n]), 2 + n, true
}

// decodeBytes reads length-prefixed raw bytes from buf[0:]. The returned
// slice aliases buf; callers that need to retain it past the lifetime of
// the receive buffer must copy.
func decodeBytes(buf []byte) (b []byte, consumed int, ok bool) {
	if len(buf) < 2 {
		return nil, 0, false
	}
	n := int(buf[0])<<8 | int(buf[1])
	if len(buf) < 2+n {
		return nil, 0, false
	}
	return buf[2 : 2+n], 2 + n, true
}

// appendUint16 appends a 16-bit big-endian integer.
func appendUint16(dst []byte, v uint16) []byte {
	return append(dst, byte(v>>8), byte(v))
}

// decodeUint16 reads a 16-bit big-endian integer from buf[0:2].
func decodeUint16(buf []byte) (v uint16, ok bool) {
	if len(buf) < 2 {
		return 0, false
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), true
}
