package wire

// Packet is implemented by every decoded/encodable MQTT control packet.
type Packet interface {
	Type() PacketType
}

// Connect is the CONNECT packet (client to broker only).
type Connect struct {
	ClientID     string
	CleanSession bool
	KeepAlive    uint16

	WillFlag    bool
	WillTopic   string
	WillPayload []byte
	WillQoS     QoS
	WillRetain  bool

	UsernameFlag bool
	Username     string
	PasswordFlag bool
	Password     string
}

func (*Connect) Type() PacketType { return CONNECT }

// Append encodes c and appends it to dst. Fails with ErrWontFit if the
// resulting frame would exceed maxMessage.
func (c *Connect) Append(dst []byte, maxMessage int) ([]byte, error) {
	var body []byte
	var err error

	body, err = appendString(body, "MQTT")
	if err != nil {
		return dst, err
	}
	body = append(body, 4) // protocol level

	var flags uint8
	if c.CleanSession {
		flags |= 0x02
	}
	if c.WillFlag {
		flags |= 0x04
		flags |= uint8(c.WillQoS&0x03) << 3
		if c.WillRetain {
			flags |= 0x20
		}
	}
	if c.UsernameFlag {
		flags |= 0x80
	}
	if c.PasswordFlag {
		flags |= 0x40
	}
	body = append(body, flags)
	body = appendUint16(body, c.KeepAlive)

	body, err = appendString(body, c.ClientID)
	if err != nil {
		return dst, err
	}
	if c.WillFlag {
		body, err = appendString(body, c.WillTopic)
		if err != nil {
			return dst, err
		}
		body, err = appendBytes(body, c.WillPayload)
		if err != nil {
			return dst, err
		}
	}
	if c.UsernameFlag {
		body, err = appendString(body, c.Username)
		if err != nil {
			return dst, err
		}
	}
	if c.PasswordFlag {
		body, err = appendString(body, c.Password)
		if err != nil {
			return dst, err
		}
	}

	if FrameLen(len(body)) > maxMessage {
		return dst, ErrWontFit
	}
	dst = AppendFixedHeader(dst, CONNECT, 0, len(body))
	return append(dst, body...), nil
}

// Connack is the CONNACK packet (broker to client only).
type Connack struct {
	SessionPresent bool
	ReturnCode     uint8
}

func (*Connack) Type() PacketType { return CONNACK }

func decodeConnack(body []byte) (*Connack, error) {
	if len(body) < 2 {
		return nil, ErrBadResponse
	}
	return &Connack{
		SessionPresent: body[0]&0x01 != 0,
		ReturnCode:     body[1],
	}, nil
}

// Publish is the PUBLISH packet (bidirectional).
type Publish struct {
	Dup      bool
	QoS      QoS
	Retain   bool
	Topic    string
	PacketID uint16 // present only when QoS > 0
	Payload  []byte
}

func (*Publish) Type() PacketType { return PUBLISH }

// Append encodes p. PacketID is ignored when QoS==0, matching the wire
// format (no identifier field for QoS 0 PUBLISH).
func (p *Publish) Append(dst []byte, maxMessage int) ([]byte, error) {
	var body []byte
	var err error
	body, err = appendString(body, p.Topic)
	if err != nil {
		return dst, err
	}
	if p.QoS != QoS0 {
		body = appendUint16(body, p.PacketID)
	}
	body = append(body, p.Payload...)

	if FrameLen(len(body)) > maxMessage {
		return dst, ErrWontFit
	}

	var flags uint8
	if p.Dup {
		flags |= 0x08
	}
	flags |= uint8(p.QoS&0x03) << 1
	if p.Retain {
		flags |= 0x01
	}
	dst = AppendFixedHeader(dst, PUBLISH, flags, len(body))
	return append(dst, body...), nil
}

func decodePublish(body []byte, flags uint8) (*Publish, error) {
	p := &Publish{
		Dup:    flags&0x08 != 0,
		QoS:    QoS((flags >> 1) & 0x03),
		Retain: flags&0x01 != 0,
	}
	if !p.QoS.Valid() {
		return nil, ErrBadResponse
	}
	topic, n, ok := decodeString(body)
	if !ok {
		return nil, ErrBadResponse
	}
	p.Topic = topic
	body = body[n:]

	if p.QoS != QoS0 {
		id, ok := decodeUint16(body)
		if !ok {
			return nil, ErrBadResponse
		}
		p.PacketID = id
		body = body[2:]
	}
	// Payload aliases buf (capacity clipped); callers that keep it past
	// the receive buffer's lifetime must copy.
	p.Payload = body[:len(body):len(body)]
	return p, nil
}

// idPacket encodes/decodes the four ack packets whose body is only a
// packet identifier: PUBACK, PUBREC, PUBREL, PUBCOMP, plus UNSUBACK in
// its v3.1.1 form.
type idPacket struct {
	t        PacketType
	flags    uint8
	PacketID uint16
}

func appendIDPacket(dst []byte, t PacketType, flags uint8, id uint16) []byte {
	dst = AppendFixedHeader(dst, t, flags, 2)
	return appendUint16(dst, id)
}

func decodeIDPacket(body []byte) (uint16, error) {
	id, ok := decodeUint16(body)
	if !ok {
		return 0, ErrBadResponse
	}
	return id, nil
}

// Puback is the PUBACK packet (QoS 1 acknowledgement).
type Puback struct{ PacketID uint16 }

func (*Puback) Type() PacketType { return PUBACK }
func (p *Puback) Append(dst []byte) []byte {
	return appendIDPacket(dst, PUBACK, 0, p.PacketID)
}

// Pubrec is the PUBREC packet (QoS 2, step 1).
type Pubrec struct{ PacketID uint16 }

func (*Pubrec) Type() PacketType { return PUBREC }
func (p *Pubrec) Append(dst []byte) []byte {
	return appendIDPacket(dst, PUBREC, 0, p.PacketID)
}

// Pubrel is the PUBREL packet (QoS 2, step 2). Its flags must be 0b0010.
type Pubrel struct{ PacketID uint16 }

func (*Pubrel) Type() PacketType { return PUBREL }
func (p *Pubrel) Append(dst []byte) []byte {
	return appendIDPacket(dst, PUBREL, 2, p.PacketID)
}

// Pubcomp is the PUBCOMP packet (QoS 2, step 3).
type Pubcomp struct{ PacketID uint16 }

func (*Pubcomp) Type() PacketType { return PUBCOMP }
func (p *Pubcomp) Append(dst []byte) []byte {
	return appendIDPacket(dst, PUBCOMP, 0, p.PacketID)
}

// Subscription is one (filter, requested max QoS) pair in a SUBSCRIBE
// packet's payload.
type Subscription struct {
	Filter string
	MaxQoS QoS
}

// Subscribe is the SUBSCRIBE packet (client to broker only). Its flags
// must be 0b0010.
type Subscribe struct {
	PacketID uint16
	Subs     []Subscription
}

func (*Subscribe) Type() PacketType { return SUBSCRIBE }

func (s *Subscribe) Append(dst []byte, maxMessage int) ([]byte, error) {
	var body []byte
	var err error
	body = appendUint16(body, s.PacketID)
	for _, sub := range s.Subs {
		body, err = appendString(body, sub.Filter)
		if err != nil {
			return dst, err
		}
		body = append(body, uint8(sub.MaxQoS))
	}
	if FrameLen(len(body)) > maxMessage {
		return dst, ErrWontFit
	}
	dst = AppendFixedHeader(dst, SUBSCRIBE, 2, len(body))
	return append(dst, body...), nil
}

// Suback is the SUBACK packet (broker to client only).
type Suback struct {
	PacketID    uint16
	ReturnCodes []uint8
}

func (*Suback) Type() PacketType { return SUBACK }

func decodeSuback(body []byte) (*Suback, error) {
	id, ok := decodeUint16(body)
	if !ok || len(body) < 3 {
		return nil, ErrBadResponse
	}
	codes := append([]uint8(nil), body[2:]...)
	return &Suback{PacketID: id, ReturnCodes: codes}, nil
}

// Unsubscribe is the UNSUBSCRIBE packet (client to broker only). Its
// flags must be 0b0010.
type Unsubscribe struct {
	PacketID uint16
	Filters  []string
}

func (*Unsubscribe) Type() PacketType { return UNSUBSCRIBE }

func (u *Unsubscribe) Append(dst []byte, maxMessage int) ([]byte, error) {
	var body []byte
	var err error
	body = appendUint16(body, u.PacketID)
	for _, f := range u.Filters {
		body, err = appendString(body, f)
		if err != nil {
			return dst, err
		}
	}
	if FrameLen(len(body)) > maxMessage {
		return dst, ErrWontFit
	}
	dst = AppendFixedHeader(dst, UNSUBSCRIBE, 2, len(body))
	return append(dst, body...), nil
}

// Unsuback is the UNSUBACK packet (broker to client only).
type Unsuback struct{ PacketID uint16 }

func (*Unsuback) Type() PacketType { return UNSUBACK }

// Pingreq is the PINGREQ packet (client to broker only).
type Pingreq struct{}

func (*Pingreq) Type() PacketType { return PINGREQ }
func AppendPingreq(dst []byte) []byte {
	return AppendFixedHeader(dst, PINGREQ, 0, 0)
}

// Pingresp is the PINGRESP packet (broker to client only).
type Pingresp struct{}

func (*Pingresp) Type() PacketType { return PINGRESP }

// Disconnect is the DISCONNECT packet (client to broker only).
type Disconnect struct{}

func (*Disconnect) Type() PacketType { return DISCONNECT }
func AppendDisconnect(dst []byte) []byte {
	return AppendFixedHeader(dst, DISCONNECT, 0, 0)
}
