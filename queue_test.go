package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedthis/mqtt/internal/wire"
)

func TestQueuePushBackRemoveOrder(t *testing.T) {
	q := newQueue()
	m1 := &message{typ: wire.PUBLISH, id: 1}
	m2 := &message{typ: wire.PUBLISH, id: 2}
	q.pushBack(m1)
	q.pushBack(m2)
	require.Equal(t, 2, q.len())

	var order []uint16
	q.forEach(func(m *message) { order = append(order, m.id) })
	require.Equal(t, []uint16{1, 2}, order)

	q.remove(m1)
	require.Equal(t, 1, q.len())
	_, ok := q.lookup(wire.PUBLISH, 1)
	require.False(t, ok)
}

func TestQueueLookupByTypeAndID(t *testing.T) {
	q := newQueue()
	m := &message{typ: wire.SUBSCRIBE, id: 9}
	q.pushBack(m)
	got, ok := q.lookup(wire.SUBSCRIBE, 9)
	require.True(t, ok)
	require.Same(t, m, got)
}

func TestQueueAllocIDSkipsInUse(t *testing.T) {
	q := newQueue()
	var next uint16
	first, err := q.allocID(&next)
	require.NoError(t, err)
	require.Equal(t, uint16(1), first)

	q.pushBack(&message{typ: wire.PUBLISH, id: first})

	second, err := q.allocID(&next)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestQueueAllocIDSkipsZero(t *testing.T) {
	q := newQueue()
	next := uint16(0xFFFF)
	id, err := q.allocID(&next)
	require.NoError(t, err)
	require.NotZero(t, id)
}

func TestQueueDrainAllResolvesWaiters(t *testing.T) {
	q := newQueue()
	m := &message{typ: wire.PUBLISH, id: 1, waitMask: stateComplete}
	w := newWaiter()
	m.waiter = w
	q.pushBack(m)

	wantErr := newErr(ErrNotConnected, "gone")
	q.drainAll(wantErr)

	require.Equal(t, 0, q.len())
	require.ErrorIs(t, w.err, wantErr)
}

func TestQueueHasInFlightQoS2Publish(t *testing.T) {
	q := newQueue()
	require.False(t, q.hasInFlightQoS2Publish())
	m := &message{typ: wire.PUBLISH, qos: QoS2, state: stateAwaitingAck}
	q.pushBack(m)
	require.True(t, q.hasInFlightQoS2Publish())
}
