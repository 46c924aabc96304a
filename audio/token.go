package audio

import (
	"context"
	"sync"
	"sync/atomic"
)

// CancelToken is a cooperative cancellation flag shared by the stages of one run.
// Cancel is idempotent; Done is closed on the first Cancel.
type CancelToken struct {
	set  atomic.Bool
	mu   sync.Mutex
	done chan struct{}
}

func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

func (t *CancelToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.set.Swap(true) {
		return
	}
	close(t.done)
}

func (t *CancelToken) Cancelled() bool {
	return t.set.Load()
}

// Done returns the channel for the current generation of the token.
func (t *CancelToken) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Reset clears the flag so the token can be reused by the next run.
func (t *CancelToken) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.set.Load() {
		return
	}
	t.done = make(chan struct{})
	t.set.Store(false)
}

// Context derives a context that is cancelled together with the token.
// The returned stop func releases the watcher goroutine.
func (t *CancelToken) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	done := t.Done()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
