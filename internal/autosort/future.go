package autosort

import (
	"context"
	"sync"
)

// Future is a value that settles exactly once.
//
// Every Future created by this package is settled on every code path, so
// waiting on one without a deadline cannot hang.
type Future[T any] struct {
	done chan struct{}
	val  T
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// settledFuture returns a Future that already holds v.
func settledFuture[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.settle(v)
	return f
}

// settle stores v and wakes all waiters. Must be called exactly once.
func (f *Future[T]) settle(v T) {
	f.val = v
	close(f.done)
}

// Done returns a channel closed once the Future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the Future settles or ctx is done.
// Giving up on ctx does not affect the pending operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the value without blocking. ok is false while pending.
func (f *Future[T]) Peek() (v T, ok bool) {
	select {
	case <-f.done:
		return f.val, true
	default:
		var zero T
		return zero, false
	}
}

// value blocks until settled. Only used inside chains, where the previous
// link is guaranteed to settle.
func (f *Future[T]) value() T {
	<-f.done
	return f.val
}

// chain hands out FIFO slots. Reserving a slot makes the new Future the
// current one immediately, so a later caller queues behind it even if the
// earlier caller has not started its work yet.
//
// Thread-safety: next and head are safe for concurrent use. The order of
// slots is the order in which next acquires the mutex.
type chain[T any] struct {
	mu      sync.Mutex
	current *Future[T]
}

func newChain[T any](initial T) *chain[T] {
	return &chain[T]{current: settledFuture(initial)}
}

// next reserves the next slot. The caller must wait on prev before doing
// its work and must settle slot when done.
func (c *chain[T]) next() (prev, slot *Future[T]) {
	slot = newFuture[T]()
	c.mu.Lock()
	prev = c.current
	c.current = slot
	c.mu.Unlock()
	return prev, slot
}

// head returns the most recently reserved slot.
func (c *chain[T]) head() *Future[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
