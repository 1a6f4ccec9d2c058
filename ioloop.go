package mqtt

import (
	stderrors "errors"
	"time"

	"github.com/embedthis/mqtt/internal/wire"
)

// mapWireErr translates a wire-package sentinel (bare or wrapped) into the
// Session's public error taxonomy.
func mapWireErr(err error) error {
	switch {
	case stderrors.Is(err, wire.ErrWontFit):
		return newErr(ErrWontFit, "frame exceeds configured maximum message size")
	case stderrors.Is(err, wire.ErrBadArgs):
		return wrapErr(ErrBadArgs, err, "value cannot be encoded")
	case stderrors.Is(err, wire.ErrBadResponse):
		return wrapErr(ErrBadResponse, err, "malformed inbound frame")
	case stderrors.Is(err, wire.ErrBadState):
		return wrapErr(ErrBadState, err, "invalid fixed header")
	default:
		return wrapErr(ErrBadMessage, err, "wire error")
	}
}

// enqueueLocked appends m to the outbound queue and re-arms readiness.
func (s *Session) enqueueLocked(m *message) {
	s.q.pushBack(m)
	s.recomputeReadyMaskLocked()
}

// recomputeReadyMaskLocked re-registers interest with the transport:
// readable is always armed while attached; writable only while messages
// are queued to send.
func (s *Session) recomputeReadyMaskLocked() {
	if s.transport == nil || s.transport.IsClosed() {
		return
	}
	mask := ReadyReadable
	if s.hasUnsentLocked() {
		mask |= ReadyWritable
	}
	s.armMaskLocked(mask)
}

func (s *Session) armReadinessLocked() {
	s.recomputeReadyMaskLocked()
}

func (s *Session) armMaskLocked(mask ReadyMask) {
	transport := s.transport
	transport.RegisterReady(mask, time.Time{}, func(ready ReadyMask) {
		s.onReady(ready)
	})
}

// hasUnsentLocked reports whether any queued message still has bytes to
// write.
func (s *Session) hasUnsentLocked() bool {
	found := false
	s.q.forEach(func(m *message) {
		if m.state == stateUnsent {
			found = true
		}
	})
	return found
}

// onReady is the transport's readiness callback. It reacquires the
// Session's lock, meaning every callback-driven effect is serialized with
// application-goroutine calls the same way a cooperative event loop
// would serialize them.
func (s *Session) onReady(ready ReadyMask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freed || s.transport == nil {
		return
	}
	if ready&ReadyReadable != 0 {
		s.drainReadableLocked()
	}
	if s.transport == nil {
		return
	}
	if s.transport.IsClosed() {
		s.teardownLocked(wrapErr(ErrNetwork, s.transport.LastError(), "transport closed"))
		return
	}
	if ready&ReadyWritable != 0 {
		s.drainWritableLocked()
	}
	if s.transport != nil {
		s.recomputeReadyMaskLocked()
	}
}

// drainReadableLocked reads everything currently available and parses as
// many complete packets as the buffer holds. The buffer grows to
// accommodate a packet larger than its current capacity, up to
// maxMessage; after each pass any unparsed tail is moved to the front.
func (s *Session) drainReadableLocked() {
	for {
		if s.rxEnd == len(s.rxBuf) {
			s.growRxBufLocked()
		}
		n, err := s.transport.Read(s.rxBuf[s.rxEnd:])
		if n > 0 {
			s.rxEnd += n
			s.lastActivity = time.Now()
			s.stats.BytesReceived += uint64(n)
		}
		if err != nil {
			s.teardownLocked(wrapErr(ErrNetwork, err, "transport read failed"))
			return
		}
		if n == 0 {
			break
		}
		s.parsePendingLocked()
		if s.transport == nil {
			return
		}
	}
	s.parsePendingLocked()
	s.compactRxBufLocked()
}

func (s *Session) growRxBufLocked() {
	newCap := len(s.rxBuf) * 2
	if newCap == 0 {
		newCap = 4096
	}
	if newCap > s.opts.maxMessage+16 {
		newCap = s.opts.maxMessage + 16
	}
	grown := make([]byte, newCap)
	copy(grown, s.rxBuf[s.rxStart:s.rxEnd])
	s.rxEnd -= s.rxStart
	s.rxStart = 0
	s.rxBuf = grown
}

func (s *Session) compactRxBufLocked() {
	if s.rxStart == 0 {
		return
	}
	copy(s.rxBuf, s.rxBuf[s.rxStart:s.rxEnd])
	s.rxEnd -= s.rxStart
	s.rxStart = 0
}

// parsePendingLocked decodes as many complete packets as are buffered,
// dispatching each to its receive-side handler.
func (s *Session) parsePendingLocked() {
	for {
		buf := s.rxBuf[s.rxStart:s.rxEnd]
		pkt, consumed, ok, err := wire.Decode(buf, s.opts.maxMessage)
		if err != nil {
			s.teardownLocked(mapWireErr(err))
			return
		}
		if !ok {
			return
		}
		s.rxStart += consumed
		s.stats.PacketsReceived++
		s.handlePacketLocked(pkt)
		if s.transport == nil {
			return
		}
	}
}

// handlePacketLocked dispatches a decoded inbound packet to its handler
//. Any packet type not valid inbound for a client was already
// rejected by wire.Decode's header validation.
func (s *Session) handlePacketLocked(pkt wire.Packet) {
	switch p := pkt.(type) {
	case *wire.Connack:
		s.handleConnack(p)
	case *wire.Publish:
		s.handlePublish(p)
	case *wire.Puback:
		s.handlePuback(p)
	case *wire.Pubrec:
		s.handlePubrec(p)
	case *wire.Pubrel:
		s.handlePubrel(p)
	case *wire.Pubcomp:
		s.handlePubcomp(p)
	case *wire.Suback:
		s.handleSuback(p)
	case *wire.Unsuback:
		s.handleUnsuback(p)
	case *wire.Pingresp:
		s.handlePingresp(p)
	default:
		s.teardownLocked(newErr(ErrBadAck, "unexpected inbound packet"))
	}
}

// drainWritableLocked writes every unsent message's remaining bytes until
// the transport reports a partial write or the queue is empty.
// A message that expects an ack transitions to awaiting-ack once fully
// written; one that doesn't (PUBACK/PUBREC/PUBCOMP/DISCONNECT/QoS-0
// PUBLISH) completes and is removed immediately.
func (s *Session) drainWritableLocked() {
	blocked := false
	s.q.forEach(func(m *message) {
		if blocked || s.transport == nil || m.state != stateUnsent {
			return
		}
		if m.typ == wire.PUBLISH && m.qos == QoS2 && s.q.hasInFlightQoS2Publish() {
			return // at most one QoS-2 PUBLISH on the wire at a time
		}
		for !m.fullyWritten() {
			n, err := s.transport.Write(m.remaining())
			if n > 0 {
				m.advance(n)
				s.lastActivity = time.Now()
				s.stats.BytesSent += uint64(n)
			}
			if err != nil {
				s.teardownLocked(wrapErr(ErrNetwork, err, "transport write failed"))
				return
			}
			if n == 0 {
				blocked = true
				return // would block; wait for the next writable callback
			}
		}
		s.stats.PacketsSent++
		s.finishWriteLocked(m)
	})
}

// finishWriteLocked transitions m once its frame is fully on the wire.
func (s *Session) finishWriteLocked(m *message) {
	switch m.typ {
	case wire.CONNECT, wire.SUBSCRIBE, wire.UNSUBSCRIBE, wire.PINGREQ, wire.PUBREL:
		m.state = stateAwaitingAck
		m.sentAt = time.Now()
	case wire.PUBLISH:
		if m.qos == QoS0 {
			s.q.remove(m)
			m.resolve(stateComplete, nil)
			return
		}
		m.state = stateAwaitingAck
		m.sentAt = time.Now()
	default: // PUBACK, PUBREC, PUBCOMP, DISCONNECT
		s.q.remove(m)
		m.resolve(stateComplete, nil)
	}
}

// scheduleIdleTimerLocked (re)arms the combined keep-alive/idle-timeout
// and retransmission check. It fires at most once per
// min(keepAlive, idleTimeout) - elapsed, floored at one second.
func (s *Session) scheduleIdleTimerLocked() {
	interval := s.opts.keepAlive
	if s.opts.idleTimeout > 0 && s.opts.idleTimeout < interval {
		interval = s.opts.idleTimeout
	}
	if interval <= 0 {
		return
	}
	s.timer.After(interval, func() { s.onTimerFire() })
}

// onTimerFire runs the periodic liveness/retransmission check: a quiet connection beyond idleTimeout raises EventTimeout; one
// beyond keepAlive (but within idleTimeout) sends PINGREQ; either way,
// any awaiting-ack message older than msgTimeout is retransmitted (with
// the DUP bit set on QoS>0 PUBLISH frames), and the timer reschedules
// itself.
func (s *Session) onTimerFire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freed || s.transport == nil {
		return
	}

	now := time.Now()
	elapsed := now.Sub(s.lastActivity)

	if s.opts.idleTimeout > 0 && elapsed >= s.opts.idleTimeout {
		s.emitEventLocked(EventTimeout)
	} else if elapsed >= s.opts.keepAlive {
		s.enqueueLocked(&message{typ: wire.PINGREQ, frame: wire.AppendPingreq(nil), waitMask: stateComplete})
	}

	s.checkRetransmitsLocked(now)

	interval := s.opts.keepAlive
	if s.opts.idleTimeout > 0 && s.opts.idleTimeout < interval {
		interval = s.opts.idleTimeout
	}
	remaining := interval - elapsed
	if remaining < time.Second {
		remaining = time.Second
	}
	if s.transport != nil {
		s.timer.After(remaining, func() { s.onTimerFire() })
	}
}

// checkRetransmitsLocked resends any awaiting-ack message older than
// msgTimeout, setting its DUP bit for QoS>0 PUBLISH frames.
func (s *Session) checkRetransmitsLocked(now time.Time) {
	var stale []*message
	s.q.forEach(func(m *message) {
		if m.state == stateAwaitingAck && now.Sub(m.sentAt) >= s.opts.msgTimeout {
			stale = append(stale, m)
		}
	})
	for _, m := range stale {
		m.resetCursor()
		if m.isDup() {
			m.setDupBit()
		}
		m.state = stateUnsent
		s.logger().Debug("mqtt: retransmitting message", "type", m.typ, "id", m.id)
		if s.metrics != nil {
			s.metrics.observeRetransmit()
		}
	}
	if len(stale) > 0 {
		s.recomputeReadyMaskLocked()
	}
}
