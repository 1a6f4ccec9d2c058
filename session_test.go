package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/embedthis/mqtt/internal/wire"
)

func TestPublishRejectsInvalidQoS(t *testing.T) {
	s := NewSession()
	err := s.Publish(context.Background(), "t", nil, QoS(3))
	require.Error(t, err)
}

func TestConnectRejectsEmptyClientIDWithoutCleanSession(t *testing.T) {
	s := NewSession(WithClientID(""), WithCleanSession(false))
	err := s.Connect(context.Background(), &fakeTransport{})
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, ErrBadSession, merr.Kind)
}

func TestHandleConnackSuccessTransitionsToConnected(t *testing.T) {
	s := NewSession(WithKeepAlive(time.Hour))
	ft := &fakeTransport{}
	ftimer := &fakeTimer{}
	s.mu.Lock()
	s.timer = ftimer
	s.attachLocked(ft)
	m := &message{typ: wire.CONNECT, frame: []byte{}, waitMask: stateComplete}
	w := newWaiter()
	m.waiter = w
	s.q.pushBack(m)
	s.handleConnack(&wire.Connack{ReturnCode: wire.ConnAccepted})
	s.mu.Unlock()

	<-w.done
	require.NoError(t, w.err)
	require.True(t, s.IsConnected())
}

func TestHandleConnackRefusedTearsDown(t *testing.T) {
	s := NewSession()
	ft := &fakeTransport{}
	s.mu.Lock()
	s.attachLocked(ft)
	m := &message{typ: wire.CONNECT, frame: []byte{}, waitMask: stateComplete}
	w := newWaiter()
	m.waiter = w
	s.q.pushBack(m)
	s.handleConnack(&wire.Connack{ReturnCode: wire.ConnRefusedNotAuthorized})
	s.mu.Unlock()

	<-w.done
	require.Error(t, w.err)
	require.False(t, s.IsConnected())
}

func TestHandleConnackIdentifierRejectedResolvesCantComplete(t *testing.T) {
	s := NewSession()
	ft := &fakeTransport{}
	s.mu.Lock()
	s.attachLocked(ft)
	m := &message{typ: wire.CONNECT, frame: []byte{}, waitMask: stateComplete}
	w := newWaiter()
	m.waiter = w
	s.q.pushBack(m)
	s.handleConnack(&wire.Connack{ReturnCode: wire.ConnRefusedIdentifierRejected})
	s.mu.Unlock()

	<-w.done
	require.Error(t, w.err)
	var merr *Error
	require.ErrorAs(t, w.err, &merr)
	require.Equal(t, ErrCantComplete, merr.Kind)
	require.False(t, s.IsConnected())
}

func TestQoS1PublishAndPubackRoundTrip(t *testing.T) {
	s := NewSession()
	ft := &fakeTransport{}
	s.mu.Lock()
	s.attachLocked(ft)
	s.connected = true

	pkt := &wire.Publish{QoS: wire.QoS1, Topic: "a/b", PacketID: 1, Payload: []byte("hi")}
	frame, err := pkt.Append(nil, s.opts.maxMessage)
	require.NoError(t, err)
	m := &message{typ: wire.PUBLISH, id: 1, qos: QoS1, frame: frame, waitMask: stateComplete}
	w := newWaiter()
	m.waiter = w
	m.hold = true
	s.q.pushBack(m)
	s.recomputeReadyMaskLocked()
	s.mu.Unlock()

	s.onReady(ReadyWritable)
	require.NotEmpty(t, ft.writtenBytes())

	s.mu.Lock()
	mm, ok := s.q.lookup(wire.PUBLISH, 1)
	require.True(t, ok)
	require.Equal(t, stateAwaitingAck, mm.state)
	s.mu.Unlock()

	ft.feed((&wire.Puback{PacketID: 1}).Append(nil))
	s.onReady(ReadyReadable)

	<-w.done
	require.NoError(t, w.err)
	require.Equal(t, 0, s.MsgsToSend())
}

func TestQoS2PublishFullHandshake(t *testing.T) {
	s := NewSession()
	ft := &fakeTransport{}
	s.mu.Lock()
	s.attachLocked(ft)
	s.connected = true

	pkt := &wire.Publish{QoS: wire.QoS2, Topic: "a/b", PacketID: 3, Payload: []byte("hi")}
	frame, err := pkt.Append(nil, s.opts.maxMessage)
	require.NoError(t, err)
	m := &message{typ: wire.PUBLISH, id: 3, qos: QoS2, frame: frame, waitMask: stateComplete}
	w := newWaiter()
	m.waiter = w
	m.hold = true
	s.q.pushBack(m)
	s.recomputeReadyMaskLocked()
	s.mu.Unlock()

	s.onReady(ReadyWritable) // PUBLISH on the wire

	ft.feed((&wire.Pubrec{PacketID: 3}).Append(nil))
	s.onReady(ReadyReadable) // PUBREC received, PUBREL message swapped in

	s.mu.Lock()
	_, stillPublish := s.q.lookup(wire.PUBLISH, 3)
	rel, hasRel := s.q.lookup(wire.PUBREL, 3)
	require.False(t, stillPublish)
	require.True(t, hasRel)
	require.Equal(t, stateUnsent, rel.state)
	s.mu.Unlock()

	s.onReady(ReadyWritable) // PUBREL on the wire

	ft.feed((&wire.Pubcomp{PacketID: 3}).Append(nil))
	s.onReady(ReadyReadable) // PUBCOMP received, handshake complete

	<-w.done
	require.NoError(t, w.err)
	require.Equal(t, 0, s.MsgsToSend())
}

func TestQoS2PublishesSerializeOneAtATimeOnTheWire(t *testing.T) {
	s := NewSession()
	ft := &fakeTransport{}
	s.mu.Lock()
	s.attachLocked(ft)
	s.connected = true

	pkt1 := &wire.Publish{QoS: wire.QoS2, Topic: "a/b", PacketID: 11, Payload: []byte("x")}
	frame1, err := pkt1.Append(nil, s.opts.maxMessage)
	require.NoError(t, err)
	m1 := &message{typ: wire.PUBLISH, id: 11, qos: QoS2, frame: frame1, waitMask: stateComplete}
	w1 := newWaiter()
	m1.waiter = w1
	m1.hold = true
	s.q.pushBack(m1)

	pkt2 := &wire.Publish{QoS: wire.QoS2, Topic: "a/b", PacketID: 12, Payload: []byte("y")}
	frame2, err := pkt2.Append(nil, s.opts.maxMessage)
	require.NoError(t, err)
	m2 := &message{typ: wire.PUBLISH, id: 12, qos: QoS2, frame: frame2, waitMask: stateComplete}
	w2 := newWaiter()
	m2.waiter = w2
	m2.hold = true
	s.q.pushBack(m2)

	s.recomputeReadyMaskLocked()
	s.mu.Unlock()

	s.onReady(ReadyWritable)

	s.mu.Lock()
	require.Equal(t, stateAwaitingAck, m1.state)
	require.Equal(t, stateUnsent, m2.state, "a second QoS-2 PUBLISH must not hit the wire while one is in flight")
	s.mu.Unlock()

	ft.feed((&wire.Pubrec{PacketID: 11}).Append(nil))
	s.onReady(ReadyReadable)
	s.onReady(ReadyWritable) // PUBREL for id 11 goes out
	ft.feed((&wire.Pubcomp{PacketID: 11}).Append(nil))
	s.onReady(ReadyReadable)

	<-w1.done
	require.NoError(t, w1.err)

	s.onReady(ReadyWritable) // id 12 is now free to go
	s.mu.Lock()
	require.Equal(t, stateAwaitingAck, m2.state)
	s.mu.Unlock()
}

func TestInboundQoS2DuplicateDoesNotRedispatch(t *testing.T) {
	s := NewSession()
	ft := &fakeTransport{}

	var dispatchCount int
	s.mu.Lock()
	s.attachLocked(ft)
	s.connected = true
	s.subs.add(&Subscription{Filter: "a/b", MaxQoS: QoS2, Handler: func(*Session, MessageView) { dispatchCount++ }, Fast: true})

	in := &wire.Publish{QoS: wire.QoS2, Topic: "a/b", PacketID: 9, Payload: []byte("x")}
	s.handlePublish(in)
	s.handlePublish(in) // duplicate before PUBREL arrives
	s.mu.Unlock()

	require.Equal(t, 1, dispatchCount)
}

// encodeSuback builds a raw SUBACK frame using only the exported wire
// helpers, since Suback has no Append method (broker-to-client only).
func encodeSuback(id uint16, codes ...byte) []byte {
	body := append([]byte{byte(id >> 8), byte(id)}, codes...)
	return append(wire.AppendFixedHeader(nil, wire.SUBACK, 0, len(body)), body...)
}

func TestSubscribeMasterSendsOneWireSubscribeAndFollowupFiltersSkipIt(t *testing.T) {
	s := NewSession()
	ft := &fakeTransport{}
	s.Attach(ft)
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.SubscribeMaster(context.Background(), "sensor", QoS0, nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(ft.writtenBytes()) == 0 {
		s.onReady(ReadyWritable)
		time.Sleep(time.Millisecond)
	}
	require.NotEmpty(t, ft.writtenBytes())

	s.mu.Lock()
	m, ok := s.q.lookupType(wire.SUBSCRIBE)
	require.True(t, ok)
	id := m.id
	s.mu.Unlock()

	ft.feed(encodeSuback(id, wire.SubackMaxQoS0))
	s.onReady(ReadyReadable)

	require.NoError(t, <-done)

	before := len(ft.writtenBytes())
	err := s.Subscribe(context.Background(), "sensor/temp", QoS0, func(*Session, MessageView) {})
	require.NoError(t, err)
	require.Equal(t, before, len(ft.writtenBytes()))
}

func TestSubscribeUnderMasterPrefixSkipsWire(t *testing.T) {
	s := NewSession()
	ft := &fakeTransport{}
	s.Attach(ft)
	s.mu.Lock()
	s.subs.addMasterPrefix("devices/d1")
	s.mu.Unlock()

	var got MessageView
	err := s.Subscribe(context.Background(), "devices/d1/status", QoS0, func(_ *Session, m MessageView) { got = m })
	require.NoError(t, err)
	require.Empty(t, ft.writtenBytes())

	sub, ok := s.subs.dispatchTarget("devices/d1/status")
	require.True(t, ok)
	sub.Handler(s, MessageView{Topic: "devices/d1/status"})
	require.Equal(t, "devices/d1/status", got.Topic)
}

func TestRetransmitSetsDupAndRearmsWrite(t *testing.T) {
	s := NewSession(WithMsgTimeout(10 * time.Millisecond))
	ft := &fakeTransport{}
	s.mu.Lock()
	s.attachLocked(ft)
	s.connected = true
	pkt := &wire.Publish{QoS: wire.QoS1, Topic: "t", PacketID: 5, Payload: []byte("x")}
	frame, err := pkt.Append(nil, s.opts.maxMessage)
	require.NoError(t, err)
	m := &message{typ: wire.PUBLISH, id: 5, qos: QoS1, frame: frame, state: stateAwaitingAck, sentAt: time.Now().Add(-time.Minute)}
	s.q.pushBack(m)
	s.checkRetransmitsLocked(time.Now())
	s.mu.Unlock()

	require.Equal(t, stateUnsent, m.state)
	require.NotZero(t, m.frame[0]&0x08)
	require.Zero(t, m.cursor)
}

func TestIdleTimeoutFiresEvent(t *testing.T) {
	var events []EventType
	s := NewSession(WithIdleTimeout(time.Millisecond), WithKeepAlive(time.Hour),
		WithEventCallback(func(_ *Session, e EventType) { events = append(events, e) }))
	ft := &fakeTransport{}
	ftimer := &fakeTimer{}
	s.mu.Lock()
	s.timer = ftimer
	s.attachLocked(ft)
	s.connected = true
	s.lastActivity = time.Now().Add(-time.Hour)
	s.scheduleIdleTimerLocked()
	s.mu.Unlock()

	ftimer.fire()

	require.Contains(t, events, EventTimeout)
}

func TestKeepAliveSendsPingWhenQuiet(t *testing.T) {
	s := NewSession(WithKeepAlive(time.Millisecond), WithIdleTimeout(0))
	ft := &fakeTransport{}
	ftimer := &fakeTimer{}
	s.mu.Lock()
	s.timer = ftimer
	s.attachLocked(ft)
	s.connected = true
	s.lastActivity = time.Now().Add(-time.Hour)
	s.scheduleIdleTimerLocked()
	s.mu.Unlock()

	ftimer.fire()

	require.Equal(t, 1, s.MsgsToSend())
}

func TestPublishExactlyAtMaxMessageBoundary(t *testing.T) {
	const maxMessage = 32
	s := NewSession(WithMaxMessageSize(maxMessage))
	ft := &fakeTransport{}
	s.Attach(ft)
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	probe := &wire.Publish{QoS: wire.QoS0, Topic: "t", Payload: []byte{}}
	base, err := probe.Append(nil, 1<<20)
	require.NoError(t, err)
	payload := make([]byte, maxMessage-len(base))

	done := make(chan error, 1)
	go func() { done <- s.Publish(context.Background(), "t", payload, QoS0) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-done:
			require.NoError(t, err)
			goto sentOK
		default:
		}
		s.onReady(ReadyWritable)
		time.Sleep(time.Millisecond)
	}
	t.Fatal("publish at boundary never completed")
sentOK:

	tooBig := make([]byte, maxMessage-len(base)+1)
	err = s.Publish(context.Background(), "t", tooBig, QoS0)
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, ErrWontFit, merr.Kind)
}
