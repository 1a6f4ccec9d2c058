package mqtt

import (
	"time"

	"github.com/embedthis/mqtt/internal/wire"
)

// msgState is a Message's position in its send/receive lifecycle.
type msgState int

const (
	stateUnsent msgState = iota
	stateAwaitingAck
	stateComplete
)

// message is one in-flight protocol message: a serialized frame plus the
// bookkeeping the state machine and queue need around it.
type message struct {
	typ   wire.PacketType
	id    uint16 // 0 if not applicable
	qos   QoS
	frame []byte // full serialized frame: fixed header + body
	cursor int   // write cursor into frame for partial-write resume

	state    msgState
	waitMask msgState // resume waiter on first transition to this state
	hold     bool     // waiter outstanding: don't free on dequeue
	sentAt   time.Time
	waiter   *waiter

	// topic/filters retained for logging and for matching acks back to
	// requests where the wire ack alone is ambiguous (SUBACK to a
	// multi-filter SUBSCRIBE is not split per-filter by this engine,
	// which issues one filter per SUBSCRIBE call).
	filters []string

	prev, next *message // queue links
}

// isDup reports whether this message is a QoS>0 PUBLISH, the only type
// retransmission sets the DUP bit on.
func (m *message) isDup() bool {
	return m.typ == wire.PUBLISH && m.qos != QoS0
}

// setDupBit flips the DUP flag (bit 3 of the fixed header's first byte)
// in the serialized frame. Safe to call repeatedly; idempotent.
func (m *message) setDupBit() {
	if len(m.frame) > 0 {
		m.frame[0] |= 0x08
	}
}

// resetCursor rewinds the write cursor to the start of the frame, as
// required before a retransmission pass.
func (m *message) resetCursor() {
	m.cursor = 0
}

// remaining returns the unwritten tail of the frame.
func (m *message) remaining() []byte {
	return m.frame[m.cursor:]
}

// advance records n freshly written bytes.
func (m *message) advance(n int) {
	m.cursor += n
}

// fullyWritten reports whether the entire frame has been put on the wire.
func (m *message) fullyWritten() bool {
	return m.cursor >= len(m.frame)
}

// resolve transitions the message to state and, if state matches its
// waitMask (or the message is being torn down with a non-nil forced
// error), resumes its waiter exactly once.
func (m *message) resolve(state msgState, err error) {
	m.state = state
	if m.waiter != nil && (state == m.waitMask || err != nil) {
		m.waiter.resume(err)
		m.waiter = nil
		m.hold = false
	}
}
