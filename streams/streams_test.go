package streams

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/internal/jstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type source struct {
	r      io.Reader
	err    error
	reads  atomic.Int32
	closed atomic.Int32
}

func (s *source) Read(p []byte) (int, error) {
	s.reads.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	return s.r.Read(p)
}

func (s *source) Close() error {
	s.closed.Add(1)
	return nil
}

type sink struct {
	buf    bytes.Buffer
	err    error
	closed atomic.Int32
}

func (s *sink) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.buf.Write(p)
}

func (s *sink) Close() error {
	s.closed.Add(1)
	return nil
}

func readerOf(src io.ReadCloser) ReadOpener {
	return func(context.Context) (io.ReadCloser, error) { return src, nil }
}

func writerOf(dst io.WriteCloser) WriteOpener {
	return func(context.Context) (io.WriteCloser, error) { return dst, nil }
}

func TestReadable_deliversChunksInOrder(t *testing.T) {
	env := jstest.New(t)
	payload := strings.Repeat("0123456789", 1000)
	src := &source{r: strings.NewReader(payload)}
	r, err := NewReadable(env.Bridge, readerOf(src), WithChunkSize(1024))
	require.NoError(t, err)
	assert.Equal(t, ReadableOpening, r.State())

	var (
		got    bytes.Buffer
		chunks int
		events []string
	)
	r.OnOpen(func() { events = append(events, `open`) })
	r.OnData(func(chunk []byte) {
		chunks++
		assert.LessOrEqual(t, len(chunk), 1024)
		got.Write(chunk)
	})
	r.OnEnd(func() { events = append(events, `end`) })
	r.OnClose(func() { events = append(events, `close`) })
	env.Run()

	assert.Equal(t, payload, got.String())
	assert.Equal(t, 10, chunks)
	assert.Equal(t, []string{`open`, `end`, `close`}, events)
	assert.Equal(t, ReadableEnded, r.State())
	assert.Equal(t, int32(1), src.closed.Load())
	assert.Zero(t, env.Bridge.Live())
	assert.Zero(t, env.Bridge.Tracked())
}

func TestReadable_noReadsWithoutDataListener(t *testing.T) {
	env := jstest.New(t)
	src := &source{r: strings.NewReader("unread")}
	r, err := NewReadable(env.Bridge, readerOf(src))
	require.NoError(t, err)
	opened := false
	r.OnOpen(func() { opened = true })
	env.Run()

	assert.True(t, opened)
	assert.Equal(t, ReadablePaused, r.State())
	assert.Zero(t, src.reads.Load())

	closed := false
	r.OnClose(func() { closed = true })
	r.Destroy()
	assert.True(t, closed)
	assert.Equal(t, ReadableDestroyed, r.State())
	assert.Equal(t, int32(1), src.closed.Load())
	r.Destroy()
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestReadable_pauseAndResume(t *testing.T) {
	env := jstest.New(t)
	src := &source{r: strings.NewReader("abcdef")}
	r, err := NewReadable(env.Bridge, readerOf(src), WithChunkSize(2))
	require.NoError(t, err)

	var chunks []string
	r.OnData(func(chunk []byte) {
		chunks = append(chunks, string(chunk))
		if len(chunks) == 1 {
			r.Pause()
			_, err := env.Loop.ScheduleTimer(10*time.Millisecond, func() {
				assert.Equal(t, []string{`ab`}, chunks)
				assert.True(t, r.IsPaused())
				r.Resume()
			})
			require.NoError(t, err)
		}
	})
	ended := false
	r.OnEnd(func() { ended = true })
	env.Run()

	assert.Equal(t, []string{`ab`, `cd`, `ef`}, chunks)
	assert.True(t, ended)
}

func TestReadable_pausedChunksAreBuffered(t *testing.T) {
	env := jstest.New(t)
	unblock := make(chan struct{})
	var calls int
	src := &source{r: readerFunc(func(p []byte) (int, error) {
		calls++
		if calls > 1 {
			return 0, io.EOF
		}
		<-unblock
		return copy(p, "xyz"), nil
	})}
	r, err := NewReadable(env.Bridge, readerOf(src))
	require.NoError(t, err)

	var got []string
	ended := false
	r.OnData(func(chunk []byte) { got = append(got, string(chunk)) })
	r.OnEnd(func() { ended = true })
	r.OnOpen(func() {
		_, err := env.Loop.ScheduleTimer(5*time.Millisecond, func() {
			// the read is in flight, and completes while paused
			r.Pause()
			close(unblock)
			_, err := env.Loop.ScheduleTimer(50*time.Millisecond, func() {
				assert.Empty(t, got)
				assert.Equal(t, 3, r.Buffered())
				assert.Equal(t, ReadablePaused, r.State())
				r.Resume()
				assert.Equal(t, []string{`xyz`}, got)
			})
			require.NoError(t, err)
		})
		require.NoError(t, err)
	})
	env.Run()

	assert.Equal(t, []string{`xyz`}, got)
	assert.True(t, ended)
	assert.Zero(t, r.Buffered())
}

func TestReadable_readError(t *testing.T) {
	env := jstest.New(t)
	src := &source{err: errors.New("boom")}
	r, err := NewReadable(env.Bridge, readerOf(src))
	require.NoError(t, err)

	var (
		got    *bridge.Error
		ended  bool
		closed bool
	)
	r.OnError(func(e *bridge.Error) { got = e })
	r.OnEnd(func() { ended = true })
	r.OnClose(func() { closed = true })
	r.OnData(func([]byte) { t.Error("unexpected data") })
	env.Run()

	require.NotNil(t, got)
	assert.Equal(t, bridge.KindFileIO, got.Kind)
	assert.Equal(t, `Stream read error: boom`, got.Message)
	assert.False(t, ended)
	assert.True(t, closed)
	assert.Equal(t, ReadableErrored, r.State())
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestReadable_unhandledErrorIsUncaught(t *testing.T) {
	env := jstest.New(t)
	open := func(context.Context) (io.ReadCloser, error) {
		return nil, bridge.Errorf(bridge.KindFileNotFound, "Cannot open file 'x': no such file or directory")
	}
	r, err := NewReadable(env.Bridge, open)
	require.NoError(t, err)
	env.Run()

	assert.Equal(t, ReadableErrored, r.State())
	code, exited := env.Bridge.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, 1, code)
	assert.Equal(t, "Uncaught FileNotFound: Cannot open file 'x': no such file or directory\n", env.Stderr.String())
}

func TestReadable_destroyDuringRead(t *testing.T) {
	env := jstest.New(t)
	unblock := make(chan struct{})
	src := &source{r: readerFunc(func(p []byte) (int, error) {
		<-unblock
		return copy(p, "late"), nil
	})}
	r, err := NewReadable(env.Bridge, readerOf(src))
	require.NoError(t, err)
	r.OnData(func([]byte) { t.Error("unexpected data") })
	r.OnOpen(func() {
		_, err := env.Loop.ScheduleTimer(5*time.Millisecond, func() {
			r.Destroy()
			assert.Zero(t, src.closed.Load())
			close(unblock)
		})
		require.NoError(t, err)
	})
	env.Run()

	assert.Equal(t, int32(1), src.closed.Load())
	assert.Zero(t, env.Bridge.Live())
}

func TestReadable_unconsumedSourceClosedOnShutdown(t *testing.T) {
	env := jstest.New(t)
	src := &source{r: strings.NewReader("never read")}
	r, err := NewReadable(env.Bridge, readerOf(src))
	require.NoError(t, err)
	env.Run()

	assert.Equal(t, ReadablePaused, r.State())
	assert.Zero(t, env.Bridge.Live())
	assert.Equal(t, 1, env.Bridge.Tracked())
	assert.Zero(t, src.closed.Load())

	env.Bridge.Close()
	assert.Equal(t, int32(1), src.closed.Load())
	assert.Zero(t, env.Bridge.Tracked())

	// the stream no longer owns the source
	r.Destroy()
	assert.Equal(t, int32(1), src.closed.Load())
}

func TestReadable_pausedMidStreamClosedOnShutdown(t *testing.T) {
	env := jstest.New(t)
	src := &source{r: strings.NewReader("abcdef")}
	r, err := NewReadable(env.Bridge, readerOf(src), WithChunkSize(2))
	require.NoError(t, err)
	var chunks []string
	r.OnData(func(chunk []byte) {
		chunks = append(chunks, string(chunk))
		r.Pause()
	})
	env.Run()

	assert.Equal(t, []string{`ab`}, chunks)
	assert.Equal(t, ReadablePaused, r.State())
	assert.Zero(t, src.closed.Load())
	env.Bridge.Close()
	assert.Equal(t, int32(1), src.closed.Load())
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

func TestWritable_backpressureAndDrain(t *testing.T) {
	env := jstest.New(t)
	dst := &sink{}
	w, err := NewWritable(env.Bridge, writerOf(dst), WithHighWatermark(8))
	require.NoError(t, err)

	var results []bool
	for _, chunk := range []string{"aaaa", "bbbb", "cccc"} {
		ok, err := w.Write([]byte(chunk))
		require.NoError(t, err)
		results = append(results, ok)
	}
	assert.Equal(t, []bool{true, false, false}, results)

	drains, finishes := 0, 0
	w.OnDrain(func() { drains++ })
	w.OnFinish(func() { finishes++ })
	w.End()
	assert.Equal(t, WritableOpening, w.State())
	env.Run()

	assert.Equal(t, 1, drains)
	assert.Equal(t, 1, finishes)
	assert.Equal(t, "aaaabbbbcccc", dst.buf.String())
	assert.Equal(t, WritableFinished, w.State())
	assert.Equal(t, int32(1), dst.closed.Load())
	assert.Zero(t, env.Bridge.Live())
}

// journal records the order of sink writes, closes and stream events.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) get() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type journalSink struct{ j *journal }

func (s journalSink) Write(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	s.j.add(`write ` + string(p))
	return len(p), nil
}

func (s journalSink) Close() error {
	s.j.add(`closed`)
	return nil
}

func TestWritable_finishFollowsLastWrite(t *testing.T) {
	env := jstest.New(t)
	j := &journal{}
	w, err := NewWritable(env.Bridge, writerOf(journalSink{j}))
	require.NoError(t, err)
	w.OnFinish(func() {
		j.add(`finish`)
		assert.Zero(t, w.Buffered())
	})
	w.OnClose(func() { j.add(`close`) })
	for _, chunk := range []string{"a", "b", "c"} {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}
	w.End()
	assert.Equal(t, WritableOpening, w.State())
	j.add(`ended`)
	env.Run()

	assert.Equal(t, []string{`ended`, `write a`, `write b`, `write c`, `closed`, `finish`, `close`}, j.get())
	assert.Equal(t, WritableFinished, w.State())
}

func TestWritable_unendedDestinationClosedOnShutdown(t *testing.T) {
	env := jstest.New(t)
	dst := &sink{}
	w, err := NewWritable(env.Bridge, writerOf(dst))
	require.NoError(t, err)
	_, err = w.Write([]byte("kept open"))
	require.NoError(t, err)
	env.Run()

	assert.Equal(t, WritableOpen, w.State())
	assert.Equal(t, "kept open", dst.buf.String())
	assert.Zero(t, dst.closed.Load())
	env.Bridge.Close()
	assert.Equal(t, int32(1), dst.closed.Load())
}

func TestWritable_endWhenEmptyFinishesImmediately(t *testing.T) {
	env := jstest.New(t)
	dst := &sink{}
	w, err := NewWritable(env.Bridge, writerOf(dst))
	require.NoError(t, err)
	finished := false
	w.OnFinish(func() { finished = true })
	w.OnOpen(func() {
		w.End()
		assert.True(t, finished)
		_, err := w.Write([]byte("x"))
		var e *bridge.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, MsgWriteAfterEnd, e.Message)
	})
	env.Run()
	assert.True(t, finished)
}

func TestWritable_endWithChunk(t *testing.T) {
	env := jstest.New(t)
	dst := &sink{}
	w, err := NewWritable(env.Bridge, writerOf(dst))
	require.NoError(t, err)
	_, err = w.Write([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, w.EndWith([]byte("b")))
	assert.Error(t, w.EndWith([]byte("c")))
	w.End()
	env.Run()
	assert.Equal(t, "ab", dst.buf.String())
}

func TestWritable_writeErrorSuppressesFinish(t *testing.T) {
	env := jstest.New(t)
	dst := &sink{err: errors.New("disk full")}
	w, err := NewWritable(env.Bridge, writerOf(dst))
	require.NoError(t, err)

	var (
		got      *bridge.Error
		finished bool
		closed   bool
	)
	w.OnError(func(e *bridge.Error) { got = e })
	w.OnFinish(func() { finished = true })
	w.OnClose(func() { closed = true })
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	_, err = w.Write([]byte("more"))
	require.NoError(t, err)
	w.End()
	env.Run()

	require.NotNil(t, got)
	assert.Equal(t, `Stream write error: disk full`, got.Message)
	assert.False(t, finished)
	assert.True(t, closed)
	assert.Equal(t, WritableErrored, w.State())
	assert.Zero(t, w.Buffered())

	_, err = w.Write([]byte("x"))
	assert.Error(t, err)
}

func TestWritable_destroy(t *testing.T) {
	env := jstest.New(t)
	dst := &sink{}
	w, err := NewWritable(env.Bridge, writerOf(dst))
	require.NoError(t, err)
	_, err = w.Write([]byte("dropped"))
	require.NoError(t, err)
	w.Destroy()
	env.Run()
	assert.Equal(t, WritableDestroyed, w.State())
	assert.Empty(t, dst.buf.String())
	assert.Equal(t, int32(1), dst.closed.Load())
	assert.Zero(t, env.Bridge.Live())
}

func TestPipe(t *testing.T) {
	env := jstest.New(t)
	payload := bytes.Repeat([]byte("pipe!"), 10000)
	src := &source{r: bytes.NewReader(payload)}
	dst := &sink{}
	r, err := NewReadable(env.Bridge, readerOf(src), WithChunkSize(1000))
	require.NoError(t, err)
	w, err := NewWritable(env.Bridge, writerOf(dst), WithHighWatermark(2500))
	require.NoError(t, err)

	finished := false
	w.OnFinish(func() { finished = true })
	assert.Same(t, w, r.Pipe(w))
	env.Run()

	assert.True(t, finished)
	assert.Equal(t, payload, dst.buf.Bytes())
	assert.Equal(t, ReadableEnded, r.State())
	assert.Zero(t, env.Bridge.Live())
}

func TestPipe_drainKeepsExplicitPause(t *testing.T) {
	env := jstest.New(t)
	src := &source{r: strings.NewReader("data")}
	dst := &sink{}
	r, err := NewReadable(env.Bridge, readerOf(src))
	require.NoError(t, err)
	w, err := NewWritable(env.Bridge, writerOf(dst), WithHighWatermark(4))
	require.NoError(t, err)
	r.Pipe(w)
	r.Pause()

	ok, err := w.Write([]byte("full"))
	require.NoError(t, err)
	assert.False(t, ok)
	drained := false
	w.OnDrain(func() {
		drained = true
		assert.True(t, r.IsPaused())
		r.Destroy()
		w.End()
	})
	env.Run()

	assert.True(t, drained)
	assert.Zero(t, src.reads.Load())
	assert.Equal(t, "full", dst.buf.String())
}

func TestNew_loopTerminated(t *testing.T) {
	env := jstest.New(t)
	env.Loop.Stop()
	_, err := NewReadable(env.Bridge, readerOf(&source{}))
	assert.Error(t, err)
	_, err = NewWritable(env.Bridge, writerOf(&sink{}))
	assert.Error(t, err)
	_, err = NewReadable(env.Bridge, nil)
	assert.Error(t, err)
	_, err = NewWritable(nil, writerOf(&sink{}))
	assert.Error(t, err)
}

func TestParseEvents(t *testing.T) {
	for _, name := range []string{`data`, `end`, `error`, `open`, `close`} {
		e, ok := ParseReadableEvent(name)
		require.True(t, ok, name)
		assert.Equal(t, name, e.String())
	}
	for _, name := range []string{`drain`, `finish`, `error`, `open`, `close`} {
		e, ok := ParseWritableEvent(name)
		require.True(t, ok, name)
		assert.Equal(t, name, e.String())
	}
	_, ok := ParseReadableEvent(`drain`)
	assert.False(t, ok)
	_, ok = ParseWritableEvent(`data`)
	assert.False(t, ok)
}
