package mqtt

import (
	"context"
	"time"

	"github.com/embedthis/mqtt/internal/wire"
)

// Connect sends CONNECT over transport and always blocks until CONNACK
// arrives or ctx is cancelled; it has no fire-and-forget mode. A Session
// whose ClientID is empty and CleanSession is false is
// rejected locally with bad-session before anything is sent, since no
// broker response could make that combination valid.
func (s *Session) Connect(ctx context.Context, transport Transport) error {
	ctx = withTimeout(ctx)

	s.mu.Lock()
	if s.opts.clientID == "" && !s.opts.cleanSession {
		s.mu.Unlock()
		return newErr(ErrBadSession, "empty client id requires clean session")
	}
	if s.opts.will != nil && !s.opts.will.qos.Valid() {
		s.mu.Unlock()
		return newErr(ErrBadArgs, "will qos %d is invalid", s.opts.will.qos)
	}

	s.attachLocked(transport)

	pkt := &wire.Connect{
		ClientID:     s.opts.clientID,
		CleanSession: s.opts.cleanSession,
		KeepAlive:    keepAliveSeconds(s.opts.keepAlive),
	}
	if w := s.opts.will; w != nil {
		pkt.WillFlag = true
		pkt.WillTopic = w.topic
		pkt.WillPayload = w.payload
		pkt.WillQoS = qosToWire(w.qos)
		pkt.WillRetain = w.retain
	}
	if s.opts.hasAuth {
		pkt.UsernameFlag = true
		pkt.Username = s.opts.username
		if s.opts.password != "" {
			pkt.PasswordFlag = true
			pkt.Password = s.opts.password
		}
	}

	frame, err := pkt.Append(nil, s.opts.maxMessage)
	if err != nil {
		s.mu.Unlock()
		return mapWireErr(err)
	}

	m := &message{typ: wire.CONNECT, frame: frame, waitMask: stateComplete}
	w := newWaiter()
	m.waiter = w
	m.hold = true
	s.q.pushBack(m)
	s.recomputeReadyMaskLocked()
	s.mu.Unlock()

	if err := w.wait(ctx); err != nil {
		return err
	}
	return nil
}

// keepAliveSeconds clamps a Duration to the 16-bit seconds field CONNECT
// carries; values above 65535s saturate rather than overflow.
func keepAliveSeconds(d time.Duration) uint16 {
	secs := int64(d / time.Second)
	if secs < 0 {
		return 0
	}
	if secs > 65535 {
		return 65535
	}
	return uint16(secs)
}

// handleConnack processes an inbound CONNACK: the CONNECT message
// resolves, reporting cant-connect on any non-zero return code except
// identifier-rejected, which resolves cant-complete instead since a
// retry with a different ClientID could still succeed; on success the
// Session becomes connected, the idle/keep-alive timer starts, and
// EventConnected fires.
func (s *Session) handleConnack(pkt *wire.Connack) {
	m, ok := s.q.lookupType(wire.CONNECT)
	if !ok {
		s.teardownLocked(newErr(ErrBadAck, "unexpected CONNACK"))
		return
	}
	s.q.remove(m)

	if pkt.ReturnCode != ConnAccepted {
		kind := ErrCantConnect
		if pkt.ReturnCode == ConnRefusedIdentifierRejected {
			kind = ErrCantComplete
		}
		err := wrapErr(kind, nil, "broker refused connection: code %d", pkt.ReturnCode)
		m.resolve(stateComplete, err)
		s.teardownLocked(err)
		return
	}

	m.resolve(stateComplete, nil)
	s.connected = true
	s.lastActivity = time.Now()
	s.scheduleIdleTimerLocked()
	s.emitEventLocked(EventConnected)
}

// Disconnect sends DISCONNECT. Per the protocol, the client
// leaves the transport for the peer to close; Disconnect does not call
// Transport.Close itself. Use Close to tear down locally instead.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return newErr(ErrNotConnected, "not connected")
	}
	frame := wire.AppendDisconnect(nil)
	m := &message{typ: wire.DISCONNECT, frame: frame, waitMask: stateComplete}
	s.q.pushBack(m)
	s.connected = false
	s.timer.Stop()
	s.recomputeReadyMaskLocked()
	return nil
}
