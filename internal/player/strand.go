// Package player implements the local PulseAudio-backed playback pipeline:
// Queue[Track] -> Transcoder (pulling) -> RingBuffer[bytes] -> Sink. State
// mutation happens on a single run-loop goroutine draining a channel of
// closures, the same shape as internal/api/listenparty's hub.run loop.
package player

import "context"

// Executor runs submitted funcs one at a time, in submission order, on a
// single goroutine (a "strand"). Every Player state
// mutation is required to happen here so sink callbacks arriving on the
// sink's own mainloop thread never race the player's own Play/Pause/Stop/
// Seek calls.
type Executor struct {
	tasks chan func()
	done  chan struct{}
}

// NewExecutor starts the strand's run loop. Call Close when the executor
// is no longer needed.
func NewExecutor() *Executor {
	e := &Executor{
		tasks: make(chan func(), 32),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	for {
		select {
		case <-e.done:
			return
		case fn := <-e.tasks:
			fn()
		}
	}
}

// Go submits fn to run on the strand without waiting for it to complete.
func (e *Executor) Go(fn func()) {
	select {
	case e.tasks <- fn:
	case <-e.done:
	}
}

// Call submits fn and blocks until it has run, returning its error.
func (e *Executor) Call(ctx context.Context, fn func() error) error {
	resultCh := make(chan error, 1)
	e.Go(func() { resultCh <- fn() })
	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the run loop. Pending tasks are dropped.
func (e *Executor) Close() { close(e.done) }
