package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	for _, v := range []int{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, MaxVarIntValue} {
		dst := appendVarInt(nil, v)
		require.LessOrEqual(t, len(dst), 4)
		got, n, ok, err := decodeVarInt(dst)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, len(dst), n)
		require.Equal(t, v, got)
	}
}

func TestDecodeVarIntIncomplete(t *testing.T) {
	// Two continuation bytes with no terminator: not yet complete.
	_, n, ok, err := decodeVarInt([]byte{0x80, 0x80})
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, n)
}

func TestDecodeVarIntFifthByte(t *testing.T) {
	_, _, _, err := decodeVarInt([]byte{0x80, 0x80, 0x80, 0x80, 0x01})
	require.ErrorIs(t, err, ErrBadMessage)
}

func TestFixedHeaderRestartable(t *testing.T) {
	full := AppendFixedHeader(nil, PUBLISH, 0x02, 10)
	for i := 0; i < len(full); i++ {
		_, consumed, ok, err := DecodeFixedHeader(full[:i], 1<<20)
		require.NoError(t, err)
		require.False(t, ok, "prefix of length %d should be incomplete", i)
		require.Zero(t, consumed)
	}
	h, consumed, ok, err := DecodeFixedHeader(full, 1<<20)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(full), consumed)
	require.Equal(t, PUBLISH, h.Type)
	require.Equal(t, 10, h.RemainingLength)
}

func TestPublishRoundTrip(t *testing.T) {
	for _, qos := range []QoS{QoS0, QoS1, QoS2} {
		p := &Publish{
			QoS:      qos,
			Topic:    "a/b/c",
			PacketID: 7,
			Payload:  []byte("hello"),
			Retain:   true,
		}
		buf, err := p.Append(nil, 1<<20)
		require.NoError(t, err)

		got, consumed, ok, err := Decode(buf, 1<<20)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, len(buf), consumed)

		gp := got.(*Publish)
		require.Equal(t, p.Topic, gp.Topic)
		require.Equal(t, p.Payload, gp.Payload)
		require.Equal(t, p.QoS, gp.QoS)
		require.Equal(t, p.Retain, gp.Retain)
		if qos != QoS0 {
			require.Equal(t, p.PacketID, gp.PacketID)
		}
	}
}

func TestAckPacketRoundTrips(t *testing.T) {
	buf := (&Puback{PacketID: 42}).Append(nil)
	got, consumed, ok, err := Decode(buf, 1<<20)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, len(buf), consumed)
	require.Equal(t, uint16(42), got.(*Puback).PacketID)

	buf = (&Pubrel{PacketID: 99}).Append(nil)
	require.Equal(t, uint8(0x62), buf[0])
}

func TestSubackFailureCode(t *testing.T) {
	sa, err := decodeSuback(append(appendUint16(nil, 5), SubackFailure))
	require.NoError(t, err)
	require.Equal(t, uint16(5), sa.PacketID)
	require.Equal(t, []uint8{SubackFailure}, sa.ReturnCodes)
}

func TestConnectEncodesFlags(t *testing.T) {
	c := &Connect{
		ClientID:     "dev-1",
		CleanSession: true,
		KeepAlive:    60,
		WillFlag:     true,
		WillTopic:    "status/dev-1",
		WillPayload:  []byte("offline"),
		WillQoS:      QoS1,
		UsernameFlag: true,
		Username:     "u",
		PasswordFlag: true,
		Password:     "p",
	}
	buf, err := c.Append(nil, 1<<20)
	require.NoError(t, err)
	require.Equal(t, byte(CONNECT)<<4, buf[0])
	// buf[1] is the 1-byte remaining length (46); the connect flags byte
	// follows the 6-byte protocol name and the level byte:
	// username 0x80 | password 0x40 | will QoS 1 0x08 | will 0x04 | clean 0x02.
	require.Equal(t, byte(0xCE), buf[9])
}

func TestRemainingLengthOverMaxMessage(t *testing.T) {
	big := make([]byte, 100)
	p := &Publish{Topic: "t", Payload: big}
	_, err := p.Append(nil, 50)
	require.ErrorIs(t, err, ErrWontFit)
}
