package mqtt

import "github.com/embedthis/mqtt/internal/wire"

// queueKey identifies a message for ack lookup. Messages with no packet
// identifier (CONNECT, PINGREQ, DISCONNECT) key on type alone with id 0;
// lookupType is used for those instead of lookup.
type queueKey struct {
	typ wire.PacketType
	id  uint16
}

// queue is a circular doubly-linked list of in-flight messages with a
// sentinel head: any ordered collection with O(1) removal-by-reference
// would serve equally, and a side index makes ack lookup
// by (type, id) O(1) instead of an O(n) scan.
type queue struct {
	head  message // sentinel; head.next is the front, head.prev is the back
	index map[queueKey]*message
	size  int
}

func newQueue() *queue {
	q := &queue{index: make(map[queueKey]*message)}
	q.head.next = &q.head
	q.head.prev = &q.head
	return q
}

// pushBack enqueues m at the tail, preserving enqueue order.
func (q *queue) pushBack(m *message) {
	last := q.head.prev
	last.next = m
	m.prev = last
	m.next = &q.head
	q.head.prev = m
	q.size++
	if m.id != 0 || m.typ == wire.PINGREQ || m.typ == wire.CONNECT || m.typ == wire.DISCONNECT {
		q.index[queueKey{m.typ, m.id}] = m
	}
}

// remove unlinks m from the queue. Safe to call on an already-removed
// message (no-op).
func (q *queue) remove(m *message) {
	if m.next == nil || m.prev == nil {
		return
	}
	m.prev.next = m.next
	m.next.prev = m.prev
	m.prev = nil
	m.next = nil
	q.size--
	key := queueKey{m.typ, m.id}
	if cur, ok := q.index[key]; ok && cur == m {
		delete(q.index, key)
	}
}

// lookup finds the in-flight message for (typ, id), the ack-matching
// operation every receive-side handler performs.
func (q *queue) lookup(typ wire.PacketType, id uint16) (*message, bool) {
	m, ok := q.index[queueKey{typ, id}]
	return m, ok
}

// lookupType returns the most recently enqueued message of typ, used for
// the PINGRESP-matches-most-recent-PINGREQ rule (there is at most one
// PINGREQ in flight in practice, since Ping() is idempotent in effect).
func (q *queue) lookupType(typ wire.PacketType) (*message, bool) {
	for m := q.head.prev; m != &q.head; m = m.prev {
		if m.typ == typ {
			return m, true
		}
	}
	return nil, false
}

// hasInFlightQoS2Publish reports whether an outbound QoS-2 exchange is
// still open: a QoS-2 PUBLISH awaiting PUBREC, or the PUBREL that
// replaced it awaiting PUBCOMP. This enforces the "at most one QoS-2
// PUBLISH on the wire" invariant until the prior exchange completes.
func (q *queue) hasInFlightQoS2Publish() bool {
	for m := q.head.next; m != &q.head; m = m.next {
		if (m.typ == wire.PUBLISH && m.qos == QoS2 && m.state == stateAwaitingAck) || m.typ == wire.PUBREL {
			return true
		}
	}
	return false
}

// forEach walks the queue in enqueue order. fn may remove the message it
// is given; if fn also unlinks the next message (a teardown drains the
// whole queue), the walk stops there.
func (q *queue) forEach(fn func(*message)) {
	for m := q.head.next; m != &q.head; {
		next := m.next
		fn(m)
		if next.next == nil {
			return
		}
		m = next
	}
}

// len returns the number of enqueued (not-yet-complete) messages.
func (q *queue) len() int { return q.size }

// drainAll removes every message, resolving each with err. Used on fatal
// disconnect: all waiters resume with not-connected.
func (q *queue) drainAll(err error) {
	for m := q.head.next; m != &q.head; {
		next := m.next
		q.remove(m)
		m.resolve(stateComplete, err)
		m = next
	}
}

// allocID returns an unused packet identifier in [1, 65535], skipping ids
// currently occupying the queue. next is the counter to advance,
// modulo 65536 skipping zero. Fails with ErrCantComplete after a full
// cycle finds no free id.
func (q *queue) allocID(next *uint16) (uint16, error) {
	for i := 0; i < 65535; i++ {
		*next++
		if *next == 0 {
			*next = 1
		}
		if !q.idInUseAnyType(*next) {
			return *next, nil
		}
	}
	return 0, newErr(ErrCantComplete, "no free packet identifier")
}

// idInUseAnyType scans for id across all in-flight message types, since
// the side index keys on (type, id) but identifiers are a single
// namespace: packet identifiers of in-flight messages must be pairwise
// distinct and nonzero.
func (q *queue) idInUseAnyType(id uint16) bool {
	for m := q.head.next; m != &q.head; m = m.next {
		if m.id == id {
			return true
		}
	}
	return false
}
