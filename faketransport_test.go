package mqtt

import (
	"bytes"
	"sync"
	"time"
)

// fakeTransport is an in-memory Transport double for engine tests:
// writes land in an outbox buffer a test can inspect, and a test feeds
// inbound bytes via feed. RegisterReady never calls back automatically;
// tests drive the engine explicitly by calling Session.onReady, which
// mirrors driving a cooperative task by hand instead of waiting on a real
// reactor.
type fakeTransport struct {
	mu     sync.Mutex
	in     bytes.Buffer
	out    bytes.Buffer
	closed bool
	last   error
}

func (f *fakeTransport) feed(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in.Write(b)
}

func (f *fakeTransport) writtenBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.out.Bytes()...)
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.in.Len() == 0 {
		return 0, nil
	}
	return f.in.Read(p)
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Write(p)
}

func (f *fakeTransport) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) RegisterReady(mask ReadyMask, deadline time.Time, cb func(ready ReadyMask)) {
	// Intentionally inert; tests call Session.onReady directly.
}

func (f *fakeTransport) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// fakeTimer is a Timer double a test fires explicitly, instead of waiting
// on a real clock.
type fakeTimer struct {
	cb func()
}

func (f *fakeTimer) After(delay time.Duration, cb func()) { f.cb = cb }
func (f *fakeTimer) Stop()                                { f.cb = nil }
func (f *fakeTimer) fire() {
	if f.cb != nil {
		cb := f.cb
		cb()
	}
}
