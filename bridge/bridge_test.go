package bridge

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-ragtime/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	rt     *goja.Runtime
	loop   *reactor.Loop
	bridge *Bridge
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{rt: goja.New()}
	var err error
	h.loop, err = reactor.New()
	require.NoError(t, err)
	h.bridge, err = New(h.rt, h.loop, WithStderr(&h.stderr))
	require.NoError(t, err)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.loop.Run(ctx))
}

func (h *harness) fn(t *testing.T, src string) goja.Value {
	t.Helper()
	v, err := h.rt.RunString(src)
	require.NoError(t, err)
	return v
}

type closer struct {
	closed int
	err    error
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func TestNew_nilArgs(t *testing.T) {
	loop, err := reactor.New()
	require.NoError(t, err)
	_, err = New(nil, loop)
	assert.Error(t, err)
	_, err = New(goja.New(), nil)
	assert.Error(t, err)
}

func TestIssue_requiresFunction(t *testing.T) {
	h := newHarness(t)
	_, err := h.bridge.Issue(OpRead, h.rt.ToValue(42))
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindInvalidArguments, e.Kind)
	assert.Equal(t, MsgCallbackNotFunction, e.Message)
	assert.Zero(t, h.bridge.Live())
}

func TestComplete_successInvokesErrorFirst(t *testing.T) {
	h := newHarness(t)
	cb := h.fn(t, `var got; (function (err, data) { got = [err, data]; })`)
	handle, err := h.bridge.Issue(OpRead, cb)
	require.NoError(t, err)
	res := &closer{}
	handle.Own(res)
	assert.Equal(t, 1, h.bridge.Live())

	require.NoError(t, h.bridge.Go(handle, func(ctx context.Context) (any, error) {
		return []byte("contents"), nil
	}))
	h.run(t)

	assert.Equal(t, true, h.fn(t, `got[0] === null`).Export())
	assert.Equal(t, "contents", h.fn(t, `got[1]`).Export())
	assert.Equal(t, 1, res.closed)
	assert.True(t, handle.Done())
	assert.Zero(t, h.bridge.Live())
}

func TestComplete_writeLikeOmitsData(t *testing.T) {
	h := newHarness(t)
	cb := h.fn(t, `var n; (function () { n = arguments.length; })`)
	handle, err := h.bridge.Issue(OpWrite, cb)
	require.NoError(t, err)
	h.bridge.Complete(handle, "ignored", nil)
	assert.Equal(t, int64(1), h.fn(t, `n`).Export())
}

func TestComplete_errorClassification(t *testing.T) {
	h := newHarness(t)
	cb := h.fn(t, `var e; (function (err) { e = err; })`)
	handle, err := h.bridge.Issue(OpOpen, cb)
	require.NoError(t, err)

	_, openErr := os.Open(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, openErr)
	h.bridge.Complete(handle, nil, Wrap(KindFileIO, "Cannot open file", openErr))

	assert.Equal(t, "FileNotFound", h.fn(t, `e.code`).Export())
	assert.Equal(t, "Cannot open file", h.fn(t, `e.message`).Export())
	assert.NotEmpty(t, h.fn(t, `e.details`).Export())
	assert.Equal(t, true, h.fn(t, `e instanceof Error`).Export())
}

func TestComplete_unclassifiedUsesOpDefault(t *testing.T) {
	h := newHarness(t)
	cb := h.fn(t, `var e; (function (err) { e = err; })`)
	handle, err := h.bridge.Issue(OpConnect, cb)
	require.NoError(t, err)
	h.bridge.Complete(handle, nil, errors.New("boom"))
	assert.Equal(t, "NetworkError", h.fn(t, `e.code`).Export())
	assert.Equal(t, "boom", h.fn(t, `e.message`).Export())
	assert.Equal(t, true, h.fn(t, `e.details === undefined`).Export())
}

func TestComplete_invalidHandlesDropped(t *testing.T) {
	h := newHarness(t)
	h.bridge.Complete(nil, nil, nil)
	assert.Equal(t, uint64(1), h.bridge.Dropped())

	cb := h.fn(t, `var calls = 0; (function () { calls++; })`)
	handle, err := h.bridge.Issue(OpRead, cb)
	require.NoError(t, err)
	res := &closer{}
	handle.Own(res)
	h.bridge.Complete(handle, nil, nil)
	h.bridge.Complete(handle, nil, nil)
	assert.Equal(t, uint64(2), h.bridge.Dropped())
	assert.Equal(t, int64(1), h.fn(t, `calls`).Export())
	assert.Equal(t, 1, res.closed)

	other := newHarness(t)
	foreign := other.bridge.IssueNative(OpRead, func(any, *Error) {})
	h.bridge.Complete(foreign, nil, nil)
	assert.Equal(t, uint64(3), h.bridge.Dropped())
	assert.False(t, foreign.Done())
}

func TestComplete_canceledSuppressesCallback(t *testing.T) {
	h := newHarness(t)
	cb := h.fn(t, `var calls = 0; (function () { calls++; })`)
	handle, err := h.bridge.Issue(OpTimer, cb)
	require.NoError(t, err)
	res := &closer{}
	handle.Own(res)
	assert.True(t, handle.Cancel())
	assert.False(t, handle.Cancel())
	assert.True(t, handle.Canceled())

	h.bridge.Complete(handle, nil, nil)
	assert.Equal(t, int64(0), h.fn(t, `calls`).Export())
	assert.Equal(t, 1, res.closed)
	assert.Zero(t, h.bridge.Live())
}

func TestComplete_throwingCallbackStillReleases(t *testing.T) {
	h := newHarness(t)
	h.bridge.SetUncaughtHandler(func() goja.Callable {
		fn, _ := goja.AssertFunction(h.fn(t, `var caught; (function (e) { caught = e; })`))
		return fn
	}())
	cb := h.fn(t, `(function () { throw new Error("callback failed"); })`)
	handle, err := h.bridge.Issue(OpRead, cb)
	require.NoError(t, err)
	res := &closer{err: errors.New("close failed")}
	handle.Own(res)

	h.bridge.Complete(handle, "x", nil)

	assert.Equal(t, 1, res.closed)
	assert.Zero(t, h.bridge.Live())
	assert.Equal(t, "callback failed", h.fn(t, `caught.message`).Export())
	_, exited := h.bridge.ExitCode()
	assert.False(t, exited)
}

func TestComplete_nativeTarget(t *testing.T) {
	h := newHarness(t)
	var (
		gotData any
		gotErr  *Error
	)
	handle := h.bridge.IssueNative(OpStat, func(data any, err *Error) {
		gotData, gotErr = data, err
	})
	h.bridge.Complete(handle, nil, fs.ErrPermission)
	assert.Nil(t, gotData)
	require.NotNil(t, gotErr)
	assert.Equal(t, KindPermission, gotErr.Kind)
}

func TestComplete_nativePanicIsUncaught(t *testing.T) {
	h := newHarness(t)
	handle := h.bridge.IssueNative(OpRead, func(any, *Error) { panic("bad") })
	h.bridge.Complete(handle, nil, nil)
	code, exited := h.bridge.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "Uncaught panic: bad")
}

func TestOwn_afterCompletionClosesImmediately(t *testing.T) {
	h := newHarness(t)
	handle := h.bridge.IssueNative(OpRead, func(any, *Error) {})
	h.bridge.Complete(handle, nil, nil)
	res := &closer{}
	handle.Own(res)
	assert.Equal(t, 1, res.closed)
}

func TestDisown(t *testing.T) {
	h := newHarness(t)
	handle := h.bridge.IssueNative(OpConnect, func(any, *Error) {})
	a, b := &closer{}, &closer{}
	handle.Own(a)
	handle.Own(b)
	assert.True(t, handle.Disown(a))
	assert.False(t, handle.Disown(a))
	h.bridge.Complete(handle, nil, nil)
	assert.Zero(t, a.closed)
	assert.Equal(t, 1, b.closed)
}

func TestBridge_close(t *testing.T) {
	h := newHarness(t)
	res := &closer{}
	cb := h.fn(t, `var calls = 0; (function () { calls++; })`)
	handle, err := h.bridge.Issue(OpRead, cb)
	require.NoError(t, err)
	handle.Own(res)
	h.bridge.Close()
	assert.Zero(t, h.bridge.Live())
	assert.Equal(t, 1, res.closed)
	h.bridge.Complete(handle, nil, nil)
	assert.Equal(t, int64(0), h.fn(t, `calls`).Export())
}

func TestGo_loopTerminated(t *testing.T) {
	h := newHarness(t)
	h.loop.Stop()
	var got *Error
	handle := h.bridge.IssueNative(OpRead, func(_ any, err *Error) { got = err })
	err := h.bridge.Go(handle, func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, reactor.ErrLoopTerminated)
	require.NotNil(t, got)
	assert.True(t, handle.Done())
}

func TestIssueDeferred(t *testing.T) {
	h := newHarness(t)
	handle, promise := h.bridge.IssueDeferred(OpRead)
	require.NoError(t, h.rt.Set("p", promise))
	h.fn(t, `var value; p.then(function (v) { value = v; });`)
	require.NoError(t, h.bridge.Go(handle, func(context.Context) (any, error) { return "ok", nil }))
	h.run(t)
	assert.Equal(t, goja.PromiseStateFulfilled, promise.State())
	assert.Equal(t, "ok", h.fn(t, `value`).Export())
	assert.Nil(t, handle.Deferred())
}

func TestIssueDeferred_reject(t *testing.T) {
	h := newHarness(t)
	handle, promise := h.bridge.IssueDeferred(OpOpen)
	require.NoError(t, h.rt.Set("p", promise))
	h.fn(t, `var code; p.catch(function (e) { code = e.code; });`)
	h.bridge.Complete(handle, nil, Errorf(KindFileNotFound, "Cannot open file"))
	assert.Equal(t, goja.PromiseStateRejected, promise.State())
	assert.Equal(t, "FileNotFound", h.fn(t, `code`).Export())
}
