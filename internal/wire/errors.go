package wire

import "github.com/cockroachdb/errors"

// ErrBadResponse signals a syntactically well-formed but semantically
// invalid inbound frame: a remaining-length above maxMessage, or a body
// that cannot be decoded per its declared type.
var ErrBadResponse = errors.New("bad-response")

// ErrWontFit signals that encoding a packet would exceed maxMessage.
var ErrWontFit = errors.New("wont-fit")
