package streams

import (
	"context"
	"errors"
	"io"

	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/chunkqueue"
)

// ReadableState is the lifecycle state of a [Readable].
type ReadableState uint8

const (
	ReadableIdle ReadableState = iota
	ReadableOpening
	ReadableFlowing
	ReadablePaused
	ReadableEnded
	ReadableErrored
	ReadableDestroyed
)

func (s ReadableState) String() string {
	switch s {
	case ReadableIdle:
		return `idle`
	case ReadableOpening:
		return `opening`
	case ReadableFlowing:
		return `flowing`
	case ReadablePaused:
		return `paused`
	case ReadableEnded:
		return `ended`
	case ReadableErrored:
		return `errored`
	case ReadableDestroyed:
		return `destroyed`
	default:
		return `unknown`
	}
}

// readable lifecycle, flowing is tracked separately
const (
	rsOpening uint8 = iota
	rsOpen
	rsEnded
	rsErrored
	rsDestroyed
)

// Readable is a pull based byte source, see the package documentation.
type Readable struct {
	bridge        *bridge.Bridge
	src           io.ReadCloser
	untrack       func() bool
	queue         *chunkqueue.Queue
	read          *bridge.Handle
	onData        []func([]byte)
	onEnd         []func()
	onError       []func(*bridge.Error)
	onOpen        []func()
	onClose       []func()
	chunkSize     int
	highWatermark int
	state         uint8
	flowing       bool
	eof           bool
}

// NewReadable starts opening a source. The stream starts out paused.
func NewReadable(b *bridge.Bridge, open ReadOpener, opts ...Option) (*Readable, error) {
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
	r := &Readable{
		bridge:        b,
		queue:         chunkqueue.New(),
		chunkSize:     cfg.chunkSize,
		highWatermark: cfg.highWatermark,
	}
	h := b.IssueNative(bridge.OpOpen, r.opened)
	_ = b.Go(h, func(ctx context.Context) (any, error) {
		src, err := open(ctx)
		if err != nil {
			return nil, err
		}
		return src, nil
	})
	return r, nil
}

// State returns the current state.
func (r *Readable) State() ReadableState {
	switch r.state {
	case rsOpening:
		return ReadableOpening
	case rsOpen:
		if r.flowing {
			return ReadableFlowing
		}
		return ReadablePaused
	case rsEnded:
		return ReadableEnded
	case rsErrored:
		return ReadableErrored
	default:
		return ReadableDestroyed
	}
}

// Buffered returns the number of bytes read but not yet delivered.
func (r *Readable) Buffered() int { return r.queue.Size() }

// HighWatermark returns the advisory buffer limit.
func (r *Readable) HighWatermark() int { return r.highWatermark }

// IsPaused reports whether data events are suspended.
func (r *Readable) IsPaused() bool { return !r.flowing }

// Consumed reports whether a data listener has been registered.
func (r *Readable) Consumed() bool { return len(r.onData) != 0 }

// OnData registers a data listener, and switches the stream to flowing.
func (r *Readable) OnData(fn func(chunk []byte)) {
	r.onData = append(r.onData, fn)
	r.Resume()
}

// OnEnd registers a listener called once the source is exhausted and every
// buffered chunk has been delivered.
func (r *Readable) OnEnd(fn func()) { r.onEnd = append(r.onEnd, fn) }

// OnError registers a listener for open and read failures. Without one,
// failures go to the uncaught error policy.
func (r *Readable) OnError(fn func(*bridge.Error)) { r.onError = append(r.onError, fn) }

// OnOpen registers a listener called once the source is open.
func (r *Readable) OnOpen(fn func()) { r.onOpen = append(r.onOpen, fn) }

// OnClose registers a listener called once the source has been released,
// after end, error, or destroy.
func (r *Readable) OnClose(fn func()) { r.onClose = append(r.onClose, fn) }

// Pause stops data events. Reads already in flight are buffered.
func (r *Readable) Pause() { r.flowing = false }

// Resume delivers any buffered chunks, then resumes reading.
func (r *Readable) Resume() {
	if r.state > rsOpen {
		return
	}
	r.flowing = true
	if r.state == rsOpen {
		r.flush()
		r.pull()
	}
}

// Pipe writes everything read to dst, pausing while dst is above its high
// watermark. dst is ended when the source ends or fails. Returns dst.
func (r *Readable) Pipe(dst *Writable) *Writable {
	// only pauses applied here are undone by drain
	var backpressure bool
	r.OnEnd(dst.End)
	r.OnError(func(*bridge.Error) { dst.End() })
	dst.OnDrain(func() {
		if backpressure {
			backpressure = false
			r.Resume()
		}
	})
	r.OnData(func(chunk []byte) {
		// chunks are not reused, see readDone
		if ok, err := dst.Write(chunk); err != nil || !ok {
			backpressure = true
			r.Pause()
		}
	})
	return dst
}

// Destroy releases the source without emitting end or error. Buffered data
// is discarded. It is a no-op once the stream has ended or failed.
func (r *Readable) Destroy() {
	if r.state > rsOpen {
		return
	}
	r.state = rsDestroyed
	r.queue.Clear()
	if r.read != nil {
		r.read.Cancel()
	}
	r.closeSource()
	emit(r.onClose)
}

func (r *Readable) opened(data any, err *bridge.Error) {
	if err != nil {
		if r.state == rsOpening {
			r.fail(err)
		}
		return
	}
	src := data.(io.ReadCloser)
	if r.state != rsOpening {
		release(r.bridge, nil, src)
		return
	}
	r.src = src
	r.untrack = r.bridge.Track(src)
	r.state = rsOpen
	emit(r.onOpen)
	r.flush()
	r.pull()
}

// flush delivers buffered chunks while flowing, ending the stream once the
// source is exhausted and nothing is left.
func (r *Readable) flush() {
	for r.state == rsOpen && r.flowing {
		chunk, ok := r.queue.Dequeue()
		if !ok {
			break
		}
		r.emitData(chunk)
	}
	if r.state == rsOpen && r.eof && r.queue.IsEmpty() {
		r.end()
	}
}

// pull issues the next read, if one is warranted.
func (r *Readable) pull() {
	if r.state != rsOpen || !r.flowing || r.read != nil || r.eof {
		return
	}
	src, buf := r.src, make([]byte, r.chunkSize)
	r.read = r.bridge.IssueNative(bridge.OpRead, func(data any, err *bridge.Error) {
		r.readDone(buf, data, err)
	})
	_ = r.bridge.Go(r.read, func(context.Context) (any, error) {
		n, err := src.Read(buf)
		if n > 0 || errors.Is(err, io.EOF) {
			return n, nil
		}
		return n, err
	})
}

func (r *Readable) readDone(buf []byte, data any, err *bridge.Error) {
	r.read = nil
	if r.state != rsOpen {
		return
	}
	if err != nil {
		r.fail(prefixed(`Stream read error: `, err))
		return
	}
	n, _ := data.(int)
	if n == 0 {
		r.eof = true
		r.flush()
		return
	}
	chunk := buf[:n]
	if r.flowing && r.queue.IsEmpty() {
		r.emitData(chunk)
	} else {
		r.queue.Enqueue(chunk)
	}
	r.flush()
	r.pull()
}

func (r *Readable) emitData(chunk []byte) {
	for _, fn := range r.onData {
		fn(chunk)
	}
}

func (r *Readable) end() {
	r.state = rsEnded
	emit(r.onEnd)
	r.closeSource()
	emit(r.onClose)
}

func (r *Readable) fail(e *bridge.Error) {
	r.state = rsErrored
	r.queue.Clear()
	r.closeSource()
	emitError(r.bridge, r.onError, e)
	emit(r.onClose)
}

func (r *Readable) closeSource() {
	if r.src == nil {
		return
	}
	src := r.src
	r.src = nil
	owned := r.untrack()
	r.untrack = nil
	// not owned once the bridge has shut down
	if owned {
		release(r.bridge, r.read, src)
	}
}
