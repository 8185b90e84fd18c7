package chat

import (
	"context"
	"sync/atomic"
)

// operation is a one-shot completion shared by every caller waiting on the same attach,
// detach or release.
type operation struct {
	done     chan struct{}
	err      error
	resolved atomic.Bool
}

func newOperation() *operation {
	return &operation{done: make(chan struct{})}
}

// resolve completes the operation. Resolving twice means the state machine lost track of
// its in-flight operations, which cannot be recovered from.
func (op *operation) resolve(err error) {
	if !op.resolved.CompareAndSwap(false, true) {
		panic("chat: room lifecycle operation resolved twice")
	}
	op.err = err
	close(op.done)
}

// wait blocks until the operation resolves or ctx ends. Giving up on ctx does not affect
// the operation or other waiters.
func (op *operation) wait(ctx context.Context) error {
	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
