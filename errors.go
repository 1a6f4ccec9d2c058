package mqtt

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorKind classifies every error the engine can return: local
// non-protocol errors leave Session state untouched; protocol and
// network errors are fatal and close the transport.
type ErrorKind int

const (
	// ErrBadArgs: an argument violates a documented constraint (bad QoS,
	// oversized string, malformed filter).
	ErrBadArgs ErrorKind = iota
	// ErrBadNull: a required argument was nil/empty where that is disallowed.
	ErrBadNull
	// ErrBadState: a received fixed header has a type or flag bits
	// outside the header table.
	ErrBadState
	// ErrBadMessage: a received frame violates wire-format rules (e.g. a
	// 5-byte remaining-length).
	ErrBadMessage
	// ErrBadResponse: a received frame is well-formed but its declared
	// size or content is invalid (oversized remaining length, bad body).
	ErrBadResponse
	// ErrBadAck: an ack referenced a packet identifier or packet type the
	// engine did not expect.
	ErrBadAck
	// ErrBadSession: CONNECT was attempted with an empty client-id and
	// clean-session unset.
	ErrBadSession
	// ErrWontFit: encoding a packet would exceed the configured maxMessage.
	ErrWontFit
	// ErrMemory: a buffer allocation failed.
	ErrMemory
	// ErrNetwork: the transport reported a read/write failure.
	ErrNetwork
	// ErrNotConnected: the operation requires a connected Session.
	ErrNotConnected
	// ErrCantConnect: the broker refused CONNECT (CONNACK return code != 0,
	// other than identifier-rejected).
	ErrCantConnect
	// ErrCantComplete: an operation could not be completed (SUBACK
	// failure, packet-id exhaustion, CONNACK identifier-rejected).
	ErrCantComplete
	// ErrCantWrite: on-demand attach was required but no ATTACH handler
	// supplied a transport.
	ErrCantWrite
)

func (k ErrorKind) String() string {
	switch k {
	case ErrBadArgs:
		return "bad-args"
	case ErrBadNull:
		return "bad-null"
	case ErrBadState:
		return "bad-state"
	case ErrBadMessage:
		return "bad-message"
	case ErrBadResponse:
		return "bad-response"
	case ErrBadAck:
		return "bad-ack"
	case ErrBadSession:
		return "bad-session"
	case ErrWontFit:
		return "wont-fit"
	case ErrMemory:
		return "memory"
	case ErrNetwork:
		return "network"
	case ErrNotConnected:
		return "not-connected"
	case ErrCantConnect:
		return "cant-connect"
	case ErrCantComplete:
		return "cant-complete"
	case ErrCantWrite:
		return "cant-write"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every Session operation.
// Message carries the human-readable detail the design calls for; the
// zero value of Message falls back to Kind.String().
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets callers write errors.Is(err, mqtt.ErrNotConnected) by comparing
// Kind rather than pointer identity.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// newErr builds a plain *Error of the given kind with a formatted message.
func newErr(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapErr builds a fatal *Error that preserves cause for unwrapping and
// logging with github.com/cockroachdb/errors, which captures a stack
// trace at the wrap site.
func wrapErr(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		cause:   errors.Wrapf(cause, "%s", kind),
	}
}

// Sentinel kind errors for use with errors.Is(err, mqtt.ErrNotConnected)
// style checks without allocating an *Error (the *Error.Is method above
// is what actually makes these comparisons work; these vars just give
// callers a stable target to pass).
var (
	ErrorNotConnected = &Error{Kind: ErrNotConnected}
	ErrorCantConnect  = &Error{Kind: ErrCantConnect}
	ErrorCantComplete = &Error{Kind: ErrCantComplete}
	ErrorBadSession   = &Error{Kind: ErrBadSession}
)
