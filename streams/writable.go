package streams

import (
	"context"
	"errors"
	"io"

	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/chunkqueue"
)

// WritableState is the lifecycle state of a [Writable].
type WritableState uint8

const (
	WritableIdle WritableState = iota
	WritableOpening
	WritableOpen
	WritableEnding
	WritableFinished
	WritableErrored
	WritableDestroyed
)

func (s WritableState) String() string {
	switch s {
	case WritableIdle:
		return `idle`
	case WritableOpening:
		return `opening`
	case WritableOpen:
		return `open`
	case WritableEnding:
		return `ending`
	case WritableFinished:
		return `finished`
	case WritableErrored:
		return `errored`
	case WritableDestroyed:
		return `destroyed`
	default:
		return `unknown`
	}
}

// Writable is a queued byte sink, see the package documentation.
type Writable struct {
	bridge        *bridge.Bridge
	dst           io.WriteCloser
	untrack       func() bool
	queue         *chunkqueue.Queue
	write         *bridge.Handle
	onDrain       []func()
	onFinish      []func()
	onError       []func(*bridge.Error)
	onOpen        []func()
	onClose       []func()
	inflight      int
	highWatermark int
	state         WritableState
	ending        bool
	needDrain     bool
}

// NewWritable starts opening a destination. Writes made before it is open
// are queued.
func NewWritable(b *bridge.Bridge, open WriteOpener, opts ...Option) (*Writable, error) {
	if b == nil {
		return nil, errors.New("streams: bridge must not be nil")
	}
	if open == nil {
		return nil, errors.New("streams: opener must not be nil")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := checkLoop(b); err != nil {
		return nil, err
	}
	w := &Writable{
		bridge:        b,
		queue:         chunkqueue.New(),
		highWatermark: cfg.highWatermark,
		state:         WritableOpening,
	}
	h := b.IssueNative(bridge.OpOpen, w.opened)
	_ = b.Go(h, func(ctx context.Context) (any, error) {
		dst, err := open(ctx)
		if err != nil {
			return nil, err
		}
		return dst, nil
	})
	return w, nil
}

// State returns the current state.
func (w *Writable) State() WritableState { return w.state }

// Buffered returns the number of bytes queued or being written.
func (w *Writable) Buffered() int { return w.queue.Size() + w.inflight }

// HighWatermark returns the buffered byte count at which Write starts
// returning false.
func (w *Writable) HighWatermark() int { return w.highWatermark }

// OnDrain registers a listener called once per backpressure episode, after
// the buffered byte count falls back under the high watermark.
func (w *Writable) OnDrain(fn func()) { w.onDrain = append(w.onDrain, fn) }

// OnFinish registers a listener called after the stream was ended and the
// last queued chunk has been written.
func (w *Writable) OnFinish(fn func()) { w.onFinish = append(w.onFinish, fn) }

// OnError registers a listener for open and write failures. Without one,
// failures go to the uncaught error policy.
func (w *Writable) OnError(fn func(*bridge.Error)) { w.onError = append(w.onError, fn) }

// OnOpen registers a listener called once the destination is open.
func (w *Writable) OnOpen(fn func()) { w.onOpen = append(w.onOpen, fn) }

// OnClose registers a listener called once the destination has been
// released, after finish, error, or destroy.
func (w *Writable) OnClose(fn func()) { w.onClose = append(w.onClose, fn) }

// Write queues chunk, which must not be modified afterwards. It returns
// false once the buffered byte count reaches the high watermark, in which
// case a drain event will follow.
func (w *Writable) Write(chunk []byte) (bool, error) {
	switch {
	case w.ending || w.state == WritableFinished:
		return false, bridge.Errorf(bridge.KindInvalidState, MsgWriteAfterEnd)
	case w.state >= WritableErrored:
		return false, bridge.Errorf(bridge.KindInvalidState, bridge.MsgInvalidStreamState)
	}
	if len(chunk) != 0 {
		w.queue.Enqueue(chunk)
	}
	ok := w.Buffered() < w.highWatermark
	if !ok {
		w.needDrain = true
	}
	w.pump()
	return ok, nil
}

// End finishes the stream once every queued chunk has been written. Ending
// an ended, failed or destroyed stream is a no-op.
func (w *Writable) End() {
	if w.ending || w.state >= WritableFinished {
		return
	}
	w.ending = true
	if w.state == WritableOpen {
		w.state = WritableEnding
		w.pump()
	}
}

// EndWith writes a final chunk, then ends the stream.
func (w *Writable) EndWith(chunk []byte) error {
	if len(chunk) != 0 {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	w.End()
	return nil
}

// Destroy discards queued data, and releases the destination without
// emitting finish or error. The chunk being written, if any, completes.
func (w *Writable) Destroy() {
	if w.state >= WritableFinished {
		return
	}
	w.state = WritableDestroyed
	w.queue.Clear()
	w.needDrain = false
	if w.write != nil {
		w.write.Cancel()
	}
	w.closeDestination()
	emit(w.onClose)
}

func (w *Writable) opened(data any, err *bridge.Error) {
	if err != nil {
		if w.state == WritableOpening {
			w.fail(err)
		}
		return
	}
	dst := data.(io.WriteCloser)
	if w.state != WritableOpening {
		release(w.bridge, nil, dst)
		return
	}
	w.dst = dst
	w.untrack = w.bridge.Track(dst)
	w.state = WritableOpen
	emit(w.onOpen)
	if w.ending && w.state == WritableOpen {
		w.state = WritableEnding
	}
	w.pump()
}

// pump starts writing the next chunk, or finishes an ending stream once
// there is nothing left.
func (w *Writable) pump() {
	if w.write != nil || (w.state != WritableOpen && w.state != WritableEnding) {
		return
	}
	chunk, ok := w.queue.Dequeue()
	if !ok {
		if w.state == WritableEnding {
			w.finish()
		}
		return
	}
	dst := w.dst
	w.inflight = len(chunk)
	w.write = w.bridge.IssueNative(bridge.OpWrite, w.written)
	_ = w.bridge.Go(w.write, func(context.Context) (any, error) {
		n, err := dst.Write(chunk)
		if err == nil && n < len(chunk) {
			err = io.ErrShortWrite
		}
		return n, err
	})
}

func (w *Writable) written(_ any, err *bridge.Error) {
	w.write = nil
	w.inflight = 0
	if w.state != WritableOpen && w.state != WritableEnding {
		return
	}
	if err != nil {
		w.fail(prefixed(`Stream write error: `, err))
		return
	}
	if w.needDrain && w.Buffered() < w.highWatermark {
		w.needDrain = false
		emit(w.onDrain)
	}
	w.pump()
}

func (w *Writable) finish() {
	w.state = WritableFinished
	w.closeDestination()
	emit(w.onFinish)
	emit(w.onClose)
}

func (w *Writable) fail(e *bridge.Error) {
	w.state = WritableErrored
	w.queue.Clear()
	w.needDrain = false
	w.closeDestination()
	emitError(w.bridge, w.onError, e)
	emit(w.onClose)
}

func (w *Writable) closeDestination() {
	if w.dst == nil {
		return
	}
	dst := w.dst
	w.dst = nil
	owned := w.untrack()
	w.untrack = nil
	// not owned once the bridge has shut down
	if owned {
		release(w.bridge, w.write, dst)
	}
}
