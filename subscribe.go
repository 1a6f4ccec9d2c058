package mqtt

import (
	"context"

	"github.com/embedthis/mqtt/internal/wire"
)

// Subscribe registers handler for filter and sends SUBSCRIBE, blocking
// until SUBACK arrives. If filter falls under a previously
// registered master-subscription prefix (SubscribeMaster), no SUBSCRIBE
// is sent, since the broker already has authority to deliver it, and
// the handler is registered immediately.
func (s *Session) Subscribe(ctx context.Context, filter string, maxQoS QoS, handler Handler) error {
	ctx = withTimeout(ctx)
	if err := validateFilter(filter); err != nil {
		return err
	}
	if !maxQoS.Valid() {
		return newErr(ErrBadArgs, "qos %d is invalid", maxQoS)
	}

	s.mu.Lock()

	if prefix, ok := underMasterPrefix(filter, s.subs.masterPrefixes); ok {
		sub := &Subscription{Filter: filter, MaxQoS: maxQoS, Handler: handler}
		s.subs.add(sub)
		// Place it ahead of the master handler for prefix, if any, so that
		// handler only receives what this subscription does not claim.
		subs := s.subs.subs
		for i, existing := range subs[:len(subs)-1] {
			if existing.Filter == prefix+"/#" {
				copy(subs[i+1:], subs[i:len(subs)-1])
				subs[i] = sub
				break
			}
		}
		s.mu.Unlock()
		return nil
	}

	if err := s.ensureAttached(); err != nil {
		s.mu.Unlock()
		return err
	}
	id, err := s.q.allocID(&s.nextPacketID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	pkt := &wire.Subscribe{PacketID: id, Subs: []wire.Subscription{{Filter: filter, MaxQoS: qosToWire(maxQoS)}}}
	frame, werr := pkt.Append(nil, s.opts.maxMessage)
	if werr != nil {
		s.mu.Unlock()
		return mapWireErr(werr)
	}

	m := &message{typ: wire.SUBSCRIBE, id: id, frame: frame, waitMask: stateComplete, filters: []string{filter}}
	w := newWaiter()
	m.waiter = w
	m.hold = true
	s.q.pushBack(m)
	s.subs.add(&Subscription{Filter: filter, MaxQoS: maxQoS, Handler: handler})
	s.recomputeReadyMaskLocked()
	s.mu.Unlock()

	return w.wait(ctx)
}

// SubscribeMaster registers a master subscription for prefix: a single broker-level SUBSCRIBE to prefix+"/#" that subsequent
// Subscribe calls for filters under prefix ride on without sending their
// own SUBSCRIBE. handler, if non-nil, receives anything published under
// prefix that no more specific Subscribe call claims.
func (s *Session) SubscribeMaster(ctx context.Context, prefix string, maxQoS QoS, handler Handler) error {
	ctx = withTimeout(ctx)
	if !maxQoS.Valid() {
		return newErr(ErrBadArgs, "qos %d is invalid", maxQoS)
	}
	masterFilter := prefix + "/#"
	if err := validateFilter(masterFilter); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.ensureAttached(); err != nil {
		s.mu.Unlock()
		return err
	}
	id, err := s.q.allocID(&s.nextPacketID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	pkt := &wire.Subscribe{PacketID: id, Subs: []wire.Subscription{{Filter: masterFilter, MaxQoS: qosToWire(maxQoS)}}}
	frame, werr := pkt.Append(nil, s.opts.maxMessage)
	if werr != nil {
		s.mu.Unlock()
		return mapWireErr(werr)
	}
	m := &message{typ: wire.SUBSCRIBE, id: id, frame: frame, waitMask: stateComplete, filters: []string{masterFilter}}
	w := newWaiter()
	m.waiter = w
	m.hold = true
	s.q.pushBack(m)
	s.subs.addMasterPrefix(prefix)
	if handler != nil {
		s.subs.add(&Subscription{Filter: masterFilter, MaxQoS: maxQoS, Handler: handler})
	}
	s.recomputeReadyMaskLocked()
	s.mu.Unlock()

	return w.wait(ctx)
}

// Unsubscribe sends UNSUBSCRIBE and, once UNSUBACK arrives, removes every
// local subscription registered against filter, master or ordinary
//.
func (s *Session) Unsubscribe(ctx context.Context, filter string) error {
	ctx = withTimeout(ctx)
	s.mu.Lock()
	if err := s.ensureAttached(); err != nil {
		s.mu.Unlock()
		return err
	}
	id, err := s.q.allocID(&s.nextPacketID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	pkt := &wire.Unsubscribe{PacketID: id, Filters: []string{filter}}
	frame, werr := pkt.Append(nil, s.opts.maxMessage)
	if werr != nil {
		s.mu.Unlock()
		return mapWireErr(werr)
	}
	m := &message{typ: wire.UNSUBSCRIBE, id: id, frame: frame, waitMask: stateComplete, filters: []string{filter}}
	w := newWaiter()
	m.waiter = w
	m.hold = true
	s.q.pushBack(m)
	s.recomputeReadyMaskLocked()
	s.mu.Unlock()

	return w.wait(ctx)
}

// Ping sends PINGREQ to keep the connection alive. The
// engine also sends PINGREQ on its own when the keep-alive interval
// elapses; applications rarely need to call this directly.
func (s *Session) Ping(ctx context.Context) error {
	ctx = withTimeout(ctx)
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return newErr(ErrNotConnected, "not connected")
	}
	m := &message{typ: wire.PINGREQ, frame: wire.AppendPingreq(nil), waitMask: stateComplete}
	w := newWaiter()
	m.waiter = w
	m.hold = true
	s.q.pushBack(m)
	s.recomputeReadyMaskLocked()
	s.mu.Unlock()

	return w.wait(ctx)
}

// handleSuback resolves the matching SUBSCRIBE. A SUBACK return
// code of 0x80 for a requested filter fails that subscribe with
// cant-complete and the Session removes the tentative registration.
func (s *Session) handleSuback(pkt *wire.Suback) {
	m, ok := s.q.lookup(wire.SUBSCRIBE, pkt.PacketID)
	if !ok {
		s.teardownLocked(newErr(ErrBadAck, "SUBACK for unknown id %d", pkt.PacketID))
		return
	}
	s.q.remove(m)

	var failed string
	for i, code := range pkt.ReturnCodes {
		if code == SubackFailure && i < len(m.filters) {
			failed = m.filters[i]
			s.subs.removeFilter(failed)
		}
	}
	if failed != "" {
		m.resolve(stateComplete, newErr(ErrCantComplete, "broker rejected subscription %q", failed))
		return
	}
	m.resolve(stateComplete, nil)
}

// handleUnsuback resolves the matching UNSUBSCRIBE and drops the local
// subscription registrations for its filter.
func (s *Session) handleUnsuback(pkt *wire.Unsuback) {
	m, ok := s.q.lookup(wire.UNSUBSCRIBE, pkt.PacketID)
	if !ok {
		s.teardownLocked(newErr(ErrBadAck, "UNSUBACK for unknown id %d", pkt.PacketID))
		return
	}
	s.q.remove(m)
	for _, f := range m.filters {
		s.subs.removeFilter(f)
	}
	m.resolve(stateComplete, nil)
}

// handlePingresp resolves the outstanding PINGREQ, if any. A
// PINGRESP with no matching PINGREQ is tolerated rather than treated as
// fatal, since keep-alive pings racing a client-initiated Ping is benign.
func (s *Session) handlePingresp(*wire.Pingresp) {
	m, ok := s.q.lookupType(wire.PINGREQ)
	if !ok {
		return
	}
	s.q.remove(m)
	m.resolve(stateComplete, nil)
}
