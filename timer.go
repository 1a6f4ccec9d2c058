package mqtt

import "time"

// Timer is a one-shot delayed-callback collaborator: register a
// function to run after delay, cancellable before it fires. The engine
// uses exactly one Timer per Session for the combined keep-alive/idle
// check.
type Timer interface {
	// After schedules cb to run once, delay from now. It replaces any
	// previously scheduled callback on this Timer.
	After(delay time.Duration, cb func())
	// Stop cancels a pending callback, if any.
	Stop()
}

// realTimer is the default Timer, backed by time.AfterFunc.
type realTimer struct {
	t *time.Timer
}

// NewRealTimer returns a Timer backed by the Go runtime's timer wheel.
func NewRealTimer() Timer { return &realTimer{} }

func (r *realTimer) After(delay time.Duration, cb func()) {
	r.Stop()
	r.t = time.AfterFunc(delay, cb)
}

func (r *realTimer) Stop() {
	if r.t != nil {
		r.t.Stop()
	}
}
