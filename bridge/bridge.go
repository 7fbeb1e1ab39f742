package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-ragtime/internal/logging"
	"github.com/joeycumines/go-ragtime/reactor"
)

// Bridge binds a goja runtime to a reactor loop. It must only be used on the
// loop goroutine, except where noted.
type Bridge struct {
	runtime  *goja.Runtime
	loop     *reactor.Loop
	logger   logging.Logger
	stderr   io.Writer
	uncaught goja.Callable
	live     map[uint64]*Handle
	tracked  map[uint64]io.Closer
	nextID   uint64
	dropped  uint64
	exitCode int
	exited   bool
}

// New constructs a Bridge. The runtime must not be used from any goroutine
// other than the one running loop.
func New(runtime *goja.Runtime, loop *reactor.Loop, opts ...Option) (*Bridge, error) {
	if runtime == nil {
		return nil, errors.New("bridge: runtime cannot be nil")
	}
	if loop == nil {
		return nil, errors.New("bridge: loop cannot be nil")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		runtime: runtime,
		loop:    loop,
		logger:  cfg.logger,
		stderr:  cfg.stderr,
		live:    make(map[uint64]*Handle),
		tracked: make(map[uint64]io.Closer),
	}, nil
}

// Runtime returns the script runtime.
func (b *Bridge) Runtime() *goja.Runtime { return b.runtime }

// Loop returns the loop that completions are delivered on.
func (b *Bridge) Loop() *reactor.Loop { return b.loop }

// Logger returns the configured logger, which may be nil.
func (b *Bridge) Logger() logging.Logger { return b.logger }

// Live returns the number of issued handles that have not completed.
func (b *Bridge) Live() int { return len(b.live) }

// Dropped returns the number of completions dropped for invalid handles.
func (b *Bridge) Dropped() uint64 { return b.dropped }

// Issue starts tracking an operation whose result will be delivered to
// callback. It returns an InvalidArguments error if callback is not a
// function, which callers should throw synchronously.
func (b *Bridge) Issue(kind OpKind, callback goja.Value) (*Handle, error) {
	fn, ok := goja.AssertFunction(callback)
	if !ok {
		return nil, Errorf(KindInvalidArguments, MsgCallbackNotFunction)
	}
	h := b.issue(kind)
	h.callback = fn
	return h, nil
}

// IssueDeferred starts tracking an operation whose result will settle the
// returned promise.
func (b *Bridge) IssueDeferred(kind OpKind) (*Handle, *goja.Promise) {
	h := b.issue(kind)
	h.deferred = NewDeferred(b.runtime)
	return h, h.deferred.Promise()
}

// IssueNative starts tracking an operation whose result is consumed by Go
// code, e.g. a stream's internal reads.
func (b *Bridge) IssueNative(kind OpKind, fn NativeFunc) *Handle {
	h := b.issue(kind)
	h.native = fn
	return h
}

func (b *Bridge) issue(kind OpKind) *Handle {
	b.nextID++
	h := &Handle{
		bridge: b,
		id:     b.nextID,
		kind:   kind,
	}
	b.live[h.id] = h
	return h
}

// Go runs work on a helper goroutine, then completes h with its result on the
// loop goroutine. If the loop has terminated, h is completed immediately with
// the error, and that error is also returned.
func (b *Bridge) Go(h *Handle, work func(ctx context.Context) (any, error)) error {
	err := b.loop.Await(func(ctx context.Context) reactor.Task {
		data, err := work(ctx)
		return func() { b.Complete(h, data, err) }
	})
	if err != nil {
		b.Complete(h, nil, err)
	}
	return err
}

// Complete is the terminal path of a handle, see the package documentation.
// Invalid handles (nil, foreign, or already completed) are logged and
// dropped.
func (b *Bridge) Complete(h *Handle, data any, err error) {
	if h == nil || h.bridge != b || h.state == stateCompleted {
		b.dropped++
		e := b.logger.Warning().Limit()
		if h != nil {
			e = e.Str(`op`, h.kind.String()).Uint64(`handle`, h.id)
		}
		e.Log(`bridge: dropped completion for invalid handle`)
		return
	}

	canceled := h.state == stateCanceled
	h.state = stateCompleted
	callback, deferred, native, kind := h.callback, h.deferred, h.native, h.kind
	defer h.release()

	if canceled {
		return
	}

	result := AsError(err, kind.defaultKind())

	switch {
	case native != nil:
		b.guard(func() { native(data, result) })

	case deferred != nil:
		b.guard(func() {
			if result != nil {
				deferred.Reject(b.ErrorValue(result))
			} else {
				deferred.Resolve(b.toValue(data))
			}
		})

	case callback != nil:
		args := make([]goja.Value, 1, 2)
		if result != nil {
			args[0] = b.ErrorValue(result)
		} else {
			args[0] = goja.Null()
			if !kind.writeLike() {
				args = append(args, b.toValue(data))
			}
		}
		b.Call(callback, args...)
	}
}

// Call invokes fn on the loop goroutine, routing any exception it throws to
// [Bridge.ReportUncaught].
func (b *Bridge) Call(fn goja.Callable, args ...goja.Value) {
	b.guard(func() {
		if _, err := fn(goja.Undefined(), args...); err != nil {
			b.ReportUncaught(err)
		}
	})
}

// guard runs fn, converting Go panics into uncaught errors.
func (b *Bridge) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", r)
			}
			b.ReportUncaught(err)
		}
	}()
	fn()
}

// Track registers a long-lived resource, such as an open stream source,
// that no handle owns between operations. It is closed by [Bridge.Close]
// unless untrack is called first. Untrack reports whether c was still
// tracked, in which case the caller is responsible for closing it.
func (b *Bridge) Track(c io.Closer) (untrack func() bool) {
	if c == nil {
		return func() bool { return false }
	}
	b.nextID++
	id := b.nextID
	b.tracked[id] = c
	return func() bool {
		if _, ok := b.tracked[id]; !ok {
			return false
		}
		delete(b.tracked, id)
		return true
	}
}

// Tracked returns the number of resources registered by [Bridge.Track].
func (b *Bridge) Tracked() int { return len(b.tracked) }

// Close releases every live handle without calling script, then closes
// every tracked resource. It is used when the runtime shuts down with
// operations still in flight.
func (b *Bridge) Close() {
	for _, h := range b.live {
		h.state = stateCompleted
		h.release()
	}
	tracked := b.tracked
	b.tracked = make(map[uint64]io.Closer)
	for _, c := range tracked {
		if err := c.Close(); err != nil && !isClosedError(err) {
			b.logger.Warning().Err(err).Log(`bridge: failed to close tracked resource`)
		}
	}
}
