package mqtt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/embedthis/mqtt/internal/wire"
)

// Session is the per-client MQTT engine. It owns a transport, a
// receive buffer, the in-flight message queue, subscriptions, will and
// credentials configuration, liveness timers and throttle state.
//
// All mutation of Session state happens with mu held; mu is the stand-in
// for a single event-loop task: whichever goroutine holds it is, for
// that critical section, "the loop". Transport readiness callbacks, the
// idle timer, and every public method acquire mu before touching engine
// state, so effects are always serialized without a hand-rolled
// scheduler.
type Session struct {
	mu sync.Mutex

	opts      *sessionOptions
	transport Transport
	timer     Timer
	metrics   *metricsCollector

	rxBuf        []byte
	rxStart      int
	rxEnd        int
	q            *queue
	subs         *subscriptionTable
	nextPacketID uint16

	connected  bool
	attaching  bool
	freed      bool
	qos2InFlight map[uint16]struct{} // inbound QoS2 ids with a PUBREC already sent

	throttle     throttleState
	lastActivity time.Time
	lastErr      error

	stats Stats
}

// Stats reports basic connection counters: useful embedded-device
// diagnostics, none of which survive a process restart.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	Reconnects      uint64
}

// NewSession constructs an unattached Session. Call Attach (or let an
// API call trigger on-demand attach via WithOnAttach) before using it.
func NewSession(opts ...Option) *Session {
	o := defaultSessionOptions()
	for _, opt := range opts {
		opt(o)
	}
	s := &Session{
		opts:         o,
		timer:        NewRealTimer(),
		q:            newQueue(),
		subs:         newSubscriptionTable(),
		nextPacketID: 0,
		qos2InFlight: make(map[uint16]struct{}),
		rxBuf:        make([]byte, 4096),
	}
	return s
}

// WithMetrics attaches a Prometheus collector to the Session (SPEC_FULL
// domain stack addition; optional, nil-safe if never called).
func (s *Session) WithMetrics(m *metricsCollector) *Session {
	s.metrics = m
	return s
}

// Attach installs transport as the Session's transport, moving it from
// *unattached* to *attached but not connected*. Any previously
// attached transport is closed first.
func (s *Session) Attach(transport Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachLocked(transport)
}

func (s *Session) attachLocked(transport Transport) {
	if s.transport != nil {
		_ = s.transport.Close()
	}
	s.transport = transport
	s.rxStart, s.rxEnd = 0, 0
	s.lastActivity = time.Now()
	s.armReadinessLocked()
}

// ensureAttached triggers on-demand attach.
func (s *Session) ensureAttached() error {
	if s.transport != nil {
		return nil
	}
	s.emitEventLocked(EventAttach)
	if s.transport != nil {
		return nil
	}
	if s.opts.onAttach != nil {
		s.mu.Unlock()
		err := s.opts.onAttach(s)
		s.mu.Lock()
		if err == nil && s.transport != nil {
			return nil
		}
	}
	return newErr(ErrCantWrite, "no transport attached")
}

// emitEventLocked is called with mu held and releases it for the duration
// of the configured EventCallback, so the callback can call back into the
// Session (EventAttach must synchronously install a transport via Attach
// before returning). mu is held again when it returns.
func (s *Session) emitEventLocked(ev EventType) {
	if s.opts.onEvent == nil {
		return
	}
	s.mu.Unlock()
	s.opts.onEvent(s, ev)
	s.mu.Lock()
}

// IsConnected reports whether CONNACK=accepted has been processed and no
// fatal error has since returned the Session to unattached.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// GetError returns the most recent fatal error's message, or "" if none.
func (s *Session) GetError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return ""
	}
	return s.lastErr.Error()
}

// GetLastActivity returns the timestamp of the last successful read or
// write on the transport.
func (s *Session) GetLastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// MsgsToSend reports the number of messages currently enqueued.
func (s *Session) MsgsToSend() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.len()
}

// Stats returns a snapshot of the connection counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close frees the Session: every outstanding waiter resumes with
// not-connected, the idle timer stops, and the transport closes. Close is idempotent and safe against double-free
// via the freed-sentinel flag.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freed {
		return
	}
	s.teardownLocked(newErr(ErrNotConnected, "session closed"))
	s.freed = true
}

// teardownLocked implements the fatal-error handling common to every
// protocol violation and transport failure: record the error, close the
// transport, drain all waiters with not-connected, stop the idle timer,
// fire DISCONNECT, and return to unattached.
func (s *Session) teardownLocked(err error) {
	s.logger().Warn("mqtt: session teardown", "err", err)
	s.timer.Stop()
	s.connected = false
	s.lastErr = err
	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
	}
	s.q.drainAll(newErr(ErrNotConnected, "connection reset"))
	s.emitEventLocked(EventDisconnect)
}

func (s *Session) logger() *slog.Logger { return s.opts.logger }

// withTimeout substitutes context.Background (no deadline) when the
// caller passes a nil context; exported API methods accept
// context.Context so embedding applications can bound waits with their
// own policy.
func withTimeout(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func qosFromWire(q wire.QoS) QoS { return QoS(q) }
func qosToWire(q QoS) wire.QoS   { return wire.QoS(q) }
