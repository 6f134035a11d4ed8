package step

import (
	"context"
)

// CancelToken is the one place a step's cancellation is decided. Its context is threaded through the transport and
// every wait.
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCancelToken(parent context.Context) *CancelToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{ctx: ctx, cancel: cancel}
}

func (t *CancelToken) Context() context.Context {
	return t.ctx
}

// Cancel is safe to call more than once and from any goroutine
func (t *CancelToken) Cancel() {
	t.cancel()
}

func (t *CancelToken) Cancelled() bool {
	return t.ctx.Err() != nil
}
