package streams

import (
	"context"
	"io"

	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/reactor"
)

// MsgWriteAfterEnd is the message of the error returned by writes to an
// ended [Writable].
const MsgWriteAfterEnd = `Cannot write after end`

// ReadOpener opens the source of a [Readable]. It runs off the loop
// goroutine. Errors that are an *bridge.Error are delivered as-is.
type ReadOpener func(ctx context.Context) (io.ReadCloser, error)

// WriteOpener opens the destination of a [Writable], see [ReadOpener].
type WriteOpener func(ctx context.Context) (io.WriteCloser, error)

func checkLoop(b *bridge.Bridge) error {
	switch b.Loop().State() {
	case reactor.StateTerminating, reactor.StateTerminated:
		return reactor.ErrLoopTerminated
	}
	return nil
}

// prefixed returns a copy of e with prefix prepended to its message.
func prefixed(prefix string, e *bridge.Error) *bridge.Error {
	return &bridge.Error{
		Kind:    e.Kind,
		Message: prefix + e.Message,
		Details: e.Details,
		Cause:   e.Cause,
	}
}

// release closes c once any in-flight operation has finished with it.
func release(b *bridge.Bridge, inflight *bridge.Handle, c io.Closer) {
	if inflight != nil && !inflight.Done() {
		inflight.Own(c)
		return
	}
	if err := c.Close(); err != nil {
		b.Logger().Debug().Err(err).Log(`streams: close failed`)
	}
}

func emit(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}

func emitError(b *bridge.Bridge, listeners []func(*bridge.Error), e *bridge.Error) {
	if len(listeners) == 0 {
		b.ReportUncaught(e)
		return
	}
	for _, fn := range listeners {
		fn(e)
	}
}
