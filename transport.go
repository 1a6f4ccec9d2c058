package mqtt

import (
	"context"
	"net"
	"time"
)

// ReadyMask describes which directions a Transport should report
// readiness for; Session recomputes this after every I/O pass:
// readable is always armed, writable only while some queued message
// still has unsent bytes.
type ReadyMask uint8

const (
	ReadyReadable ReadyMask = 1 << iota
	ReadyWritable
)

// Transport is the external collaborator the engine never blocks in:
// a byte-oriented stream with a readiness-registration hook. The engine
// reads/writes synchronously but only when the
// transport has already told it which directions are ready; if a real
// transport would block, the caller's RegisterReady implementation is
// expected to suspend instead (e.g. an epoll/kqueue wait, or a goroutine
// blocked in a Read call, as NetTransport below does).
type Transport interface {
	// Read returns 0, nil on orderly EOF; a negative count is never
	// used in the Go binding, I/O errors are returned via err instead.
	Read(p []byte) (n int, err error)

	// Write may return a partial count; the caller resumes from there.
	Write(p []byte) (n int, err error)

	// IsClosed reports whether the transport has already been closed,
	// either by the peer or by a prior fatal error.
	IsClosed() bool

	// Close releases the transport. The engine never calls Close except
	// when it is reacting to a fatal error or Session shutdown; graceful
	// MQTT disconnects leave the transport for the peer to close.
	Close() error

	// RegisterReady asks the transport to invoke cb once it can satisfy
	// one of the directions in mask, or once deadline elapses (a zero
	// deadline means no timeout). cb is invoked with the mask of
	// directions that actually became ready (ReadyReadable may be
	// reported even if not requested, to accommodate anticipated server
	// READ pushes in poll-based implementations; callers should reread
	// RegisterReady's mask argument if they care).
	RegisterReady(mask ReadyMask, deadline time.Time, cb func(ready ReadyMask))

	// LastError returns the most recent transport-level error, if any.
	LastError() error
}

// NetTransport adapts a net.Conn (or anything satisfying the same
// interface, e.g. a tls.Conn with TLS already negotiated by the caller,
// per the "TLS is out of scope" non-goal) to the Transport contract.
//
// Because net.Conn has no native readiness-registration API, NetTransport
// runs one background goroutine that blocks in Read and reports
// readability by buffering the bytes it receives; Write is attempted
// inline and reported ready immediately (TCP write buffers rarely apply
// backpressure at MQTT control-packet sizes). This keeps the engine
// itself free of goroutines while still honoring the Transport contract
// on a standard Go runtime.
type NetTransport struct {
	conn   net.Conn
	rx     chan []byte
	// pending holds the unconsumed tail of a chunk Read only partially
	// copied out; only Read touches it.
	pending []byte
	notify  chan struct{}
	closed  chan struct{}
	last    error
}

// NewNetTransport wraps conn and starts its background reader.
func NewNetTransport(conn net.Conn) *NetTransport {
	t := &NetTransport{
		conn:   conn,
		rx:     make(chan []byte, 64),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// DialNetTransport dials addr (e.g. "tcp", "broker:1883") and wraps the
// resulting connection.
func DialNetTransport(ctx context.Context, network, addr string) (*NetTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return NewNetTransport(conn), nil
}

func (t *NetTransport) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case t.rx <- chunk:
				select {
				case t.notify <- struct{}{}:
				default:
				}
			case <-t.closed:
				return
			}
		}
		if err != nil {
			t.last = err
			close(t.closed)
			return
		}
	}
}

func (t *NetTransport) Read(p []byte) (int, error) {
	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}
	select {
	case chunk, ok := <-t.rx:
		if !ok {
			return 0, nil
		}
		n := copy(p, chunk)
		if n < len(chunk) {
			// Keep what didn't fit; the next Read returns it before any
			// later chunk.
			t.pending = chunk[n:]
		}
		return n, nil
	default:
		return 0, nil
	}
}

func (t *NetTransport) Write(p []byte) (int, error) { return t.conn.Write(p) }

func (t *NetTransport) IsClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *NetTransport) Close() error {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	return t.conn.Close()
}

func (t *NetTransport) RegisterReady(mask ReadyMask, deadline time.Time, cb func(ready ReadyMask)) {
	go func() {
		var timer *time.Timer
		var timeoutCh <-chan time.Time
		if !deadline.IsZero() {
			timer = time.NewTimer(time.Until(deadline))
			timeoutCh = timer.C
			defer timer.Stop()
		}
		if mask&ReadyWritable != 0 {
			cb(ReadyWritable)
			return
		}
		select {
		case <-t.notify:
			cb(ReadyReadable)
		case <-t.closed:
			cb(ReadyReadable)
		case <-timeoutCh:
			cb(0)
		}
	}()
}

func (t *NetTransport) LastError() error { return t.last }
