package mqtt

// EventType enumerates the events the engine reports to an EventCallback
//.
type EventType int

const (
	// EventAttach is emitted when an API call needs a transport and none
	// is attached (on-demand attach). The callback must synchronously
	// install one via Session.Attach before returning, or the triggering
	// call fails with ErrCantWrite.
	EventAttach EventType = iota
	// EventConnected is emitted once CONNACK=accepted has been processed.
	EventConnected
	// EventDisconnect is emitted whenever the Session returns to
	// unattached, whether by a fatal protocol/network error or a
	// deliberate Disconnect-then-transport-closed sequence.
	EventDisconnect
	// EventTimeout is emitted by the idle-check timer when the connection
	// has been quiet for at least idleTimeout. The application
	// decides what to do; the engine takes no action on its own.
	EventTimeout
)

func (e EventType) String() string {
	switch e {
	case EventAttach:
		return "attach"
	case EventConnected:
		return "connected"
	case EventDisconnect:
		return "disconnect"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// EventCallback receives engine lifecycle events. It runs on the loop
// goroutine and must not block; EventAttach in particular must complete
// its transport installation before returning.
type EventCallback func(s *Session, event EventType)
