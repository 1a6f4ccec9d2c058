package mqtt

import (
	"context"
	"time"

	"github.com/embedthis/mqtt/internal/wire"
)

// Publish sends a PUBLISH with RETAIN clear. See PublishRetained
// for the retained form. qos must be 0, 1, or 2; payload size, once
// framed, must not exceed the Session's configured maximum message size.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte, qos QoS) error {
	return s.publish(ctx, topic, payload, qos, false)
}

// PublishRetained sends a PUBLISH with RETAIN set, asking the broker to
// hold this message as the topic's retained value.
func (s *Session) PublishRetained(ctx context.Context, topic string, payload []byte, qos QoS) error {
	return s.publish(ctx, topic, payload, qos, true)
}

func (s *Session) publish(ctx context.Context, topic string, payload []byte, qos QoS, retain bool) error {
	ctx = withTimeout(ctx)
	if !qos.Valid() {
		return newErr(ErrBadArgs, "qos %d is invalid", qos)
	}

	s.mu.Lock()

	if err := s.ensureAttached(); err != nil {
		s.mu.Unlock()
		return err
	}

	var id uint16
	var err error
	if qos != QoS0 {
		id, err = s.q.allocID(&s.nextPacketID)
		if err != nil {
			s.mu.Unlock()
			return err
		}
	}

	pkt := &wire.Publish{
		QoS:      qosToWire(qos),
		Retain:   retain,
		Topic:    topic,
		PacketID: id,
		Payload:  payload,
	}
	frame, werr := pkt.Append(nil, s.opts.maxMessage)
	if werr != nil {
		s.mu.Unlock()
		return mapWireErr(werr)
	}

	delay := s.throttle.currentDelay()
	s.throttle.decay(time.Now())
	if s.metrics != nil {
		s.metrics.observeThrottleDelay(s.throttle.currentDelay().Seconds())
	}

	m := &message{typ: wire.PUBLISH, id: id, qos: qos, frame: frame, waitMask: stateComplete}

	w := newWaiter()
	m.waiter = w
	m.hold = true

	s.q.pushBack(m)
	s.recomputeReadyMaskLocked()
	if s.metrics != nil {
		s.metrics.observePublish(qos)
	}
	s.mu.Unlock()

	if delay > 0 {
		s.logger().Debug("mqtt: publish paying throttle delay", "delay", delay, "topic", topic)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	return w.wait(ctx)
}

// handlePublish processes an inbound PUBLISH of any QoS:
//   - QoS 0: dispatch immediately, no ack.
//   - QoS 1: dispatch, then send PUBACK.
//   - QoS 2: send PUBREC; dispatch happens now and is suppressed on a
//     retransmitted duplicate (a PUBREC already sent for this id without
//     a matching PUBREL), which only re-sends PUBREC.
func (s *Session) handlePublish(pkt *wire.Publish) {
	switch pkt.QoS {
	case QoS0:
		s.dispatchLocked(pkt)
	case QoS1:
		s.dispatchLocked(pkt)
		s.enqueueLocked(&message{typ: wire.PUBACK, frame: (&wire.Puback{PacketID: pkt.PacketID}).Append(nil)})
	case QoS2:
		if _, dup := s.qos2InFlight[pkt.PacketID]; dup {
			s.enqueueLocked(&message{typ: wire.PUBREC, frame: (&wire.Pubrec{PacketID: pkt.PacketID}).Append(nil)})
			return
		}
		s.qos2InFlight[pkt.PacketID] = struct{}{}
		s.dispatchLocked(pkt)
		s.enqueueLocked(&message{typ: wire.PUBREC, frame: (&wire.Pubrec{PacketID: pkt.PacketID}).Append(nil)})
	}
}

// handlePubrel completes the QoS 2 receive sequence: forget the pending
// id and send PUBCOMP.
func (s *Session) handlePubrel(pkt *wire.Pubrel) {
	delete(s.qos2InFlight, pkt.PacketID)
	s.enqueueLocked(&message{typ: wire.PUBCOMP, frame: (&wire.Pubcomp{PacketID: pkt.PacketID}).Append(nil)})
}

// handlePuback resolves the matching QoS-1 PUBLISH; an id with no
// in-flight message is a fatal protocol error.
func (s *Session) handlePuback(pkt *wire.Puback) {
	m, ok := s.q.lookup(wire.PUBLISH, pkt.PacketID)
	if !ok {
		s.teardownLocked(newErr(ErrBadAck, "PUBACK for unknown id %d", pkt.PacketID))
		return
	}
	s.q.remove(m)
	m.resolve(stateComplete, nil)
}

// handlePubrec advances a QoS-2 PUBLISH to its PUBREL step: the
// original PUBLISH message is removed from the queue and a PUBREL
// carrying the same id is enqueued at the tail for transmission. The waiter from the original
// Publish call carries over so it resolves only once PUBCOMP arrives.
func (s *Session) handlePubrec(pkt *wire.Pubrec) {
	m, ok := s.q.lookup(wire.PUBLISH, pkt.PacketID)
	if !ok {
		s.teardownLocked(newErr(ErrBadAck, "PUBREC for unknown id %d", pkt.PacketID))
		return
	}
	s.q.remove(m)
	rel := &message{
		typ:      wire.PUBREL,
		id:       pkt.PacketID,
		qos:      m.qos,
		frame:    (&wire.Pubrel{PacketID: pkt.PacketID}).Append(nil),
		waitMask: m.waitMask,
		waiter:   m.waiter,
		hold:     m.hold,
	}
	s.q.pushBack(rel)
	s.recomputeReadyMaskLocked()
}

// handlePubcomp completes a QoS-2 PUBLISH.
func (s *Session) handlePubcomp(pkt *wire.Pubcomp) {
	m, ok := s.q.lookup(wire.PUBREL, pkt.PacketID)
	if !ok {
		s.teardownLocked(newErr(ErrBadAck, "PUBCOMP for unknown id %d", pkt.PacketID))
		return
	}
	s.q.remove(m)
	m.resolve(stateComplete, nil)
}

// dispatchLocked resolves the subscription for pkt.Topic and runs its
// handler. Fast subscriptions run synchronously with a view into
// the receive buffer; ordinary subscriptions get a copy and their own
// goroutine so a slow handler cannot stall the I/O loop.
func (s *Session) dispatchLocked(pkt *wire.Publish) {
	sub, ok := s.subs.dispatchTarget(pkt.Topic)
	if !ok {
		return
	}
	view := MessageView{
		Topic:   pkt.Topic,
		Payload: pkt.Payload,
		ID:      pkt.PacketID,
		QoS:     qosFromWire(pkt.QoS),
		Retain:  pkt.Retain,
		Dup:     pkt.Dup,
	}
	if sub.Fast {
		sub.Handler(s, view)
		return
	}
	payload := make([]byte, len(pkt.Payload)+1) // trailing NUL not counted in len
	copy(payload, pkt.Payload)
	view.Payload = payload[:len(pkt.Payload)]
	handler := sub.Handler
	spawn(func() { handler(s, view) })
}
