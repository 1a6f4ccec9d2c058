package mqtt

import (
	"context"
	"time"

	"nhooyr.io/websocket"
)

// WSTransport adapts a WebSocket connection to the Transport contract,
// for brokers that only expose an MQTT-over-WebSocket listener. It
// mirrors NetTransport's background-reader strategy, since nhooyr.io/websocket
// likewise exposes a blocking Read rather than a readiness callback.
type WSTransport struct {
	conn   *websocket.Conn
	rx     chan []byte
	// pending holds the unconsumed tail of a chunk Read only partially
	// copied out; Read alone ever touches it, so it needs no lock (the
	// engine never calls Read from more than one goroutine at a time).
	pending []byte
	notify  chan struct{}
	closed  chan struct{}
	last    error
}

// DialWS connects to a ws:// or wss:// URL and wraps it as a Transport.
// TLS, if wss://, is negotiated by the underlying http.Client the caller
// supplies via opts; this module does not configure TLS itself.
func DialWS(ctx context.Context, url string, opts *websocket.DialOptions) (*WSTransport, error) {
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(-1)
	t := &WSTransport{
		conn:   conn,
		rx:     make(chan []byte, 64),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *WSTransport) readLoop() {
	ctx := context.Background()
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			t.last = err
			close(t.closed)
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		select {
		case t.rx <- data:
			select {
			case t.notify <- struct{}{}:
			default:
			}
		case <-t.closed:
			return
		}
	}
}

func (t *WSTransport) Read(p []byte) (int, error) {
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
			t.pending = chunk[n:]
		}
		return n, nil
	default:
		return 0, nil
	}
}

func (t *WSTransport) Write(p []byte) (int, error) {
	if err := t.conn.Write(context.Background(), websocket.MessageBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *WSTransport) IsClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *WSTransport) Close() error {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

func (t *WSTransport) RegisterReady(mask ReadyMask, deadline time.Time, cb func(ready ReadyMask)) {
	go func() {
		var timeoutCh <-chan time.Time
		if !deadline.IsZero() {
			timer := time.NewTimer(time.Until(deadline))
			defer timer.Stop()
			timeoutCh = timer.C
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

func (t *WSTransport) LastError() error { return t.last }
