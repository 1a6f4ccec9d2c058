package wire

// Decode attempts to parse one complete packet from the start of buf.
//
// ok is false (consumed==0, err==nil) when buf does not yet hold a full
// packet; the caller should read more bytes from the transport and call
// Decode again. maxMessage caps both the remaining-length field and the
// decoded payload size.
func Decode(buf []byte, maxMessage int) (pkt Packet, consumed int, ok bool, err error) {
	h, headerLen, ok, err := DecodeFixedHeader(buf, maxMessage)
	if err != nil || !ok {
		return nil, 0, false, err
	}
	total := headerLen + h.RemainingLength
	if len(buf) < total {
		return nil, 0, false, nil
	}
	body := buf[headerLen:total]

	switch h.Type {
	case CONNACK:
		pkt, err = decodeConnack(body)
	case PUBLISH:
		pkt, err = decodePublish(body, h.Flags)
	case PUBACK:
		var id uint16
		id, err = decodeIDPacket(body)
		pkt = &Puback{PacketID: id}
	case PUBREC:
		var id uint16
		id, err = decodeIDPacket(body)
		pkt = &Pubrec{PacketID: id}
	case PUBREL:
		var id uint16
		id, err = decodeIDPacket(body)
		pkt = &Pubrel{PacketID: id}
	case PUBCOMP:
		var id uint16
		id, err = decodeIDPacket(body)
		pkt = &Pubcomp{PacketID: id}
	case SUBACK:
		pkt, err = decodeSuback(body)
	case UNSUBACK:
		var id uint16
		id, err = decodeIDPacket(body)
		pkt = &Unsuback{PacketID: id}
	case PINGRESP:
		pkt = &Pingresp{}
	default:
		err = ErrBadState
	}
	if err != nil {
		return nil, 0, false, err
	}
	return pkt, total, true, nil
}
