package mqtt

// MessageView is the transient read-only view of a just-parsed PUBLISH
// handed to subscription callbacks. It is built only for PUBLISH; it
// carries no CONNACK return code, session-present flag or SUBACK return
// codes. For a "fast" subscription the view
// references the engine's receive buffer directly and is valid only for
// the duration of the callback; for the default asynchronous dispatch the
// engine copies Topic and Payload before spawning the callback's task, so
// the copy in that case owns its storage and outlives the call.
type MessageView struct {
	Topic   string
	Payload []byte // for asynchronous dispatch, NUL-terminated without counting the NUL in len()
	ID      uint16
	QoS     QoS
	Retain  bool
	Dup     bool
}

// Handler is invoked for a PUBLISH matching a Subscription's filter.
type Handler func(s *Session, msg MessageView)
