package bridge

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/dop251/goja"
)

// OpKind identifies the kind of native operation a [Handle] tracks.
type OpKind uint8

const (
	OpTimer OpKind = iota + 1
	OpOpen
	OpRead
	OpWrite
	OpStat
	OpResolve
	OpConnect
	OpListen
	OpClose
	OpRequest
)

func (k OpKind) String() string {
	switch k {
	case OpTimer:
		return `timer`
	case OpOpen:
		return `open`
	case OpRead:
		return `read`
	case OpWrite:
		return `write`
	case OpStat:
		return `stat`
	case OpResolve:
		return `resolve`
	case OpConnect:
		return `connect`
	case OpListen:
		return `listen`
	case OpClose:
		return `close`
	case OpRequest:
		return `request`
	default:
		return `unknown`
	}
}

// writeLike operations complete with callback(err) only.
func (k OpKind) writeLike() bool {
	return k == OpWrite || k == OpClose
}

// defaultKind is the error kind used for failures that cannot be classified
// more precisely.
func (k OpKind) defaultKind() Kind {
	switch k {
	case OpResolve, OpConnect, OpListen, OpRequest:
		return KindNetwork
	case OpTimer:
		return KindInvalidState
	default:
		return KindFileIO
	}
}

type handleState uint8

const (
	statePending handleState = iota
	stateCanceled
	stateCompleted
)

// NativeFunc receives the result of a handle issued by
// [Bridge.IssueNative]. Exactly one of data or err is meaningful.
type NativeFunc func(data any, err *Error)

// Handle is the bookkeeping record for one in-flight native operation. It is
// owned by its completion chain, and must only be used on the loop
// goroutine.
type Handle struct {
	bridge    *Bridge
	callback  goja.Callable
	deferred  *Deferred
	native    NativeFunc
	resources []io.Closer
	id        uint64
	kind      OpKind
	state     handleState
}

// ID returns an identifier unique within the issuing bridge.
func (h *Handle) ID() uint64 { return h.id }

// Kind returns the operation kind.
func (h *Handle) Kind() OpKind { return h.kind }

// Canceled reports whether [Handle.Cancel] was called before completion.
func (h *Handle) Canceled() bool { return h.state == stateCanceled }

// Done reports whether the handle has completed, and released everything it
// held.
func (h *Handle) Done() bool { return h.state == stateCompleted }

// Deferred returns the promise bridge of handles issued by
// [Bridge.IssueDeferred], or nil.
func (h *Handle) Deferred() *Deferred { return h.deferred }

// Own transfers ownership of c to the handle, which will close it on
// completion. If the handle has already completed, c is closed immediately.
func (h *Handle) Own(c io.Closer) {
	if c == nil {
		return
	}
	if h.state == stateCompleted {
		h.bridge.closeResource(h, c)
		return
	}
	h.resources = append(h.resources, c)
}

// Disown removes c from the resources owned by the handle, returning false
// if it was not owned. The caller becomes responsible for closing it.
func (h *Handle) Disown(c io.Closer) bool {
	for i, r := range h.resources {
		if r == c {
			h.resources = append(h.resources[:i], h.resources[i+1:]...)
			return true
		}
	}
	return false
}

// Cancel marks a pending handle as canceled. Its completion will release
// resources without calling script. Returns false if the handle had already
// completed or been canceled.
func (h *Handle) Cancel() bool {
	if h.state != statePending {
		return false
	}
	h.state = stateCanceled
	return true
}

// release drops retained script references and closes owned resources. It
// must run exactly once per handle.
func (h *Handle) release() {
	h.callback = nil
	h.native = nil
	if h.deferred != nil {
		h.deferred.settle()
		h.deferred = nil
	}
	resources := h.resources
	h.resources = nil
	for _, c := range resources {
		h.bridge.closeResource(h, c)
	}
	delete(h.bridge.live, h.id)
}

func (b *Bridge) closeResource(h *Handle, c io.Closer) {
	if err := c.Close(); err != nil && !isClosedError(err) {
		b.logger.Warning().
			Str(`op`, h.kind.String()).
			Uint64(`handle`, h.id).
			Err(err).
			Log(`bridge: failed to close resource`)
	}
}

func isClosedError(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed)
}
