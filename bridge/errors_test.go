package bridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	for kind, want := range map[Kind]string{
		KindNone:             "None",
		KindMemory:           "MemoryError",
		KindInvalidArguments: "InvalidArguments",
		KindFileNotFound:     "FileNotFound",
		KindFileIO:           "FileIOError",
		KindNetwork:          "NetworkError",
		KindTimeout:          "TimeoutError",
		KindPermission:       "PermissionError",
		KindSyntax:           "SyntaxError",
		KindInvalidState:     "InvalidState",
		Kind(99):             "Kind(99)",
	} {
		assert.Equal(t, want, kind.String())
	}
}

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"not exist", fs.ErrNotExist, KindFileNotFound},
		{"path error", &fs.PathError{Op: "open", Path: "x", Err: syscall.ENOENT}, KindFileNotFound},
		{"permission", fs.ErrPermission, KindPermission},
		{"eacces", syscall.EACCES, KindPermission},
		{"enomem", fmt.Errorf("wrapped: %w", syscall.ENOMEM), KindMemory},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"os deadline", os.ErrDeadlineExceeded, KindTimeout},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}, KindNetwork},
		{"dns", &net.DNSError{Err: "no such host", Name: "invalid."}, KindNetwork},
		{"eio", syscall.EIO, KindFileIO},
		{"typed", Errorf(KindSyntax, "bad"), KindSyntax},
		{"other", errors.New("other"), KindInvalidArguments},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err, KindInvalidArguments))
		})
	}
}

func TestWrapAndAsError(t *testing.T) {
	assert.Nil(t, AsError(nil, KindFileIO))

	cause := &fs.PathError{Op: "open", Path: "/nope", Err: syscall.ENOENT}
	e := Wrap(KindFileIO, "Cannot open file '/nope'", cause)
	assert.Equal(t, KindFileNotFound, e.Kind)
	assert.Equal(t, cause.Error(), e.Details)
	assert.ErrorIs(t, e, fs.ErrNotExist)
	assert.ErrorIs(t, e, &Error{Kind: KindFileNotFound})
	assert.NotErrorIs(t, e, &Error{Kind: KindFileIO})
	assert.Equal(t, "FileNotFound: Cannot open file '/nope': "+cause.Error(), e.Error())

	noCause := Wrap(KindFileIO, "x", nil)
	assert.Equal(t, KindFileIO, noCause.Kind)
	assert.Equal(t, "FileIOError: x", noCause.Error())

	wrapped := fmt.Errorf("outer: %w", e)
	assert.Same(t, e, AsError(wrapped, KindNone))

	plain := AsError(errors.New("plain"), KindNetwork)
	assert.Equal(t, KindNetwork, plain.Kind)
	assert.Equal(t, "plain", plain.Message)
}

func TestThrow(t *testing.T) {
	rt := goja.New()
	require.NoError(t, rt.Set("fail", func(goja.FunctionCall) goja.Value {
		Throw(rt, Errorf(KindInvalidArguments, "Only HTTP URLs are supported"))
		return nil
	}))
	v, err := rt.RunString(`var r; try { fail(); } catch (e) { r = [e.code, e.message, e instanceof Error]; } r`)
	require.NoError(t, err)
	assert.Equal(t, []any{"InvalidArguments", "Only HTTP URLs are supported", true}, v.Export())

	_, err = rt.RunString(`fail()`)
	var ex *goja.Exception
	require.True(t, errors.As(err, &ex))
}

func TestDeferred_settlesOnce(t *testing.T) {
	rt := goja.New()
	d := NewDeferred(rt)
	assert.False(t, d.Settled())
	assert.True(t, d.Resolve(1))
	assert.True(t, d.Settled())
	assert.False(t, d.Resolve(2))
	assert.False(t, d.Reject(3))
	assert.Equal(t, goja.PromiseStateFulfilled, d.Promise().State())
	assert.Equal(t, int64(1), d.Promise().Result().Export())

	d = NewDeferred(rt)
	assert.True(t, d.Reject("no"))
	assert.False(t, d.Resolve("yes"))
	assert.Equal(t, goja.PromiseStateRejected, d.Promise().State())
}

func TestUncaught_handlerSupersedes(t *testing.T) {
	h := newHarness(t)
	first, _ := goja.AssertFunction(h.fn(t, `var firstCalls = 0; (function () { firstCalls++; })`))
	second, _ := goja.AssertFunction(h.fn(t, `var secondArg; (function (e) { secondArg = e; })`))
	h.bridge.SetUncaughtHandler(first)
	h.bridge.SetUncaughtHandler(second)
	assert.True(t, h.bridge.HasUncaughtHandler())

	h.bridge.ReportUncaught(Errorf(KindNetwork, "lost"))

	assert.Equal(t, int64(0), h.fn(t, `firstCalls`).Export())
	assert.Equal(t, "NetworkError", h.fn(t, `secondArg.code`).Export())
	_, exited := h.bridge.ExitCode()
	assert.False(t, exited)
}

func TestUncaught_fatalWithoutHandler(t *testing.T) {
	h := newHarness(t)
	h.bridge.ReportUncaught(Errorf(KindFileIO, "disk on fire"))
	code, exited := h.bridge.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, 1, code)
	assert.Equal(t, "Uncaught FileIOError: disk on fire\n", h.stderr.String())

	h.bridge.ReportUncaught(errors.New("ignored after exit"))
	h.bridge.Exit(3)
	code, _ = h.bridge.ExitCode()
	assert.Equal(t, 1, code)
	assert.Equal(t, "Uncaught FileIOError: disk on fire\n", h.stderr.String())
}

func TestUncaught_throwingHandlerIsFatal(t *testing.T) {
	h := newHarness(t)
	fn, _ := goja.AssertFunction(h.fn(t, `(function () { throw new Error("handler broke"); })`))
	h.bridge.SetUncaughtHandler(fn)
	h.bridge.ReportUncaught(errors.New("first"))
	code, exited := h.bridge.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "handler broke")
}

func TestTrackRejections(t *testing.T) {
	h := newHarness(t)
	h.bridge.TrackRejections()
	fn, _ := goja.AssertFunction(h.fn(t, `var reasons = []; (function (e) { reasons.push(e); })`))
	h.bridge.SetUncaughtHandler(fn)

	h.fn(t, `
		Promise.reject("unhandled");
		Promise.reject("handled").catch(function () {});
		var late = Promise.reject("late");
		Promise.resolve().then(function () { late.catch(function () {}); });
	`)
	h.run(t)

	assert.Equal(t, []any{"unhandled"}, h.fn(t, `reasons`).Export())
}

func TestExit_interruptsScript(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.rt.Set("exit", func(call goja.FunctionCall) goja.Value {
		h.bridge.Exit(int(call.Argument(0).ToInteger()))
		return goja.Undefined()
	}))
	_, err := h.rt.RunString(`var after = false; exit(7); after = true;`)
	var interrupted *goja.InterruptedError
	require.True(t, errors.As(err, &interrupted))
	assert.Equal(t, ExitSignal{Code: 7}, interrupted.Value())
	assert.Equal(t, false, h.rt.Get("after").Export())
	code, exited := h.bridge.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, 7, code)
	assert.Equal(t, "Terminated", h.loop.State().String())
}
