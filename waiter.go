package mqtt

import (
	"context"
	"sync"
)

// waiter is the explicit completion a Message's wait mask resolves: a
// caller task suspends on Wait while the loop goroutine continues
// processing other work, then Resume wakes it with the result of the
// awaited state transition. This is the Go rendering of a "suspend a
// task and resume it with a result value" cooperative-task contract,
// realized with a channel instead of a scheduler primitive, since the
// loop goroutine and the caller are already separate goroutines
// communicating only through Session's channels.
//
// Resume may be called at most once; later calls are no-ops, matching
// the invariant that a Message's waiter is resumed exactly once.
type waiter struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

// resume completes the waiter with err. Safe to call from the loop
// goroutine; safe to call more than once (only the first call counts).
func (w *waiter) resume(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
	})
}

// wait blocks the calling goroutine until resume is called or ctx is
// cancelled, whichever comes first.
func (w *waiter) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn runs fn as an independent task, used for asynchronous subscription
// dispatch: each callback gets its own goroutine so a slow or
// blocking handler never stalls the loop goroutine.
func spawn(fn func()) {
	go fn()
}
