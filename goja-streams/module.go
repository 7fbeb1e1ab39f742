// Package gojastreams exposes [streams.Readable] and [streams.Writable] to a
// [goja.Runtime] as objects with a Node-like surface: on, pause, resume,
// pipe, write, end and destroy.
package gojastreams

import (
	"errors"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/streams"
)

const msgPipeDestination = `Pipe destination must be a writable stream`

// writableKey marks objects backed by a [streams.Writable].
var writableKey = goja.NewSymbol(`ragtime.writable`)

// Listeners adds (or overrides) events accepted by an object's on method.
type Listeners map[string]func(fn goja.Callable)

// Module builds stream objects for a single runtime.
type Module struct {
	runtime *goja.Runtime
	bridge  *bridge.Bridge
}

// New returns a Module bound to the bridge's runtime.
func New(b *bridge.Bridge) (*Module, error) {
	if b == nil {
		return nil, errors.New("gojastreams: bridge must not be nil")
	}
	return &Module{runtime: b.Runtime(), bridge: b}, nil
}

// Readable wraps r.
func (m *Module) Readable(r *streams.Readable) *goja.Object {
	return m.Object(r, nil, nil)
}

// Writable wraps w.
func (m *Module) Writable(w *streams.Writable) *goja.Object {
	return m.Object(nil, w, nil)
}

// Object wraps either or both halves of a stream. Events are routed to the
// half that emits them, error listeners are registered on both, and extra
// takes precedence over both.
func (m *Module) Object(r *streams.Readable, w *streams.Writable, extra Listeners) *goja.Object {
	obj := m.runtime.NewObject()
	set := func(name string, fn func(call goja.FunctionCall) goja.Value) {
		_ = obj.Set(name, m.runtime.ToValue(fn))
	}

	set(`on`, func(call goja.FunctionCall) goja.Value {
		bridge.RequireArgs(m.runtime, call, 2, `stream.on`)
		name := bridge.StringArg(m.runtime, call.Argument(0), `Event name`)
		fn := bridge.CallbackArg(m.runtime, call.Argument(1))
		if h, ok := extra[name]; ok {
			h(fn)
			return obj
		}
		if r != nil {
			if ev, ok := streams.ParseReadableEvent(name); ok {
				m.onReadable(r, ev, fn)
			}
		}
		if w != nil {
			if ev, ok := streams.ParseWritableEvent(name); ok {
				m.onWritable(w, ev, fn)
			}
		}
		// unknown events are ignored
		return obj
	})

	if r != nil {
		set(`pause`, func(goja.FunctionCall) goja.Value {
			r.Pause()
			return obj
		})
		set(`resume`, func(goja.FunctionCall) goja.Value {
			r.Resume()
			return obj
		})
		set(`isPaused`, func(goja.FunctionCall) goja.Value {
			return m.runtime.ToValue(r.IsPaused())
		})
		set(`pipe`, func(call goja.FunctionCall) goja.Value {
			bridge.RequireArgs(m.runtime, call, 1, `stream.pipe`)
			dest := call.Argument(0)
			dst, ok := Unwrap(dest)
			if !ok {
				bridge.Throw(m.runtime, bridge.Errorf(bridge.KindInvalidArguments, msgPipeDestination))
			}
			r.Pipe(dst)
			return dest
		})
	}

	if w != nil {
		_ = obj.DefineDataPropertySymbol(writableKey, m.runtime.ToValue(w), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
		set(`write`, func(call goja.FunctionCall) goja.Value {
			bridge.RequireArgs(m.runtime, call, 1, `stream.write`)
			chunk := bridge.StringArg(m.runtime, call.Argument(0), `Chunk`)
			ok, err := w.Write([]byte(chunk))
			if err != nil {
				bridge.ThrowError(m.runtime, err, bridge.KindInvalidState)
			}
			return m.runtime.ToValue(ok)
		})
		set(`end`, func(call goja.FunctionCall) goja.Value {
			var chunk []byte
			if v := call.Argument(0); !goja.IsUndefined(v) && !goja.IsNull(v) {
				chunk = []byte(bridge.StringArg(m.runtime, v, `Chunk`))
			}
			if err := w.EndWith(chunk); err != nil {
				bridge.ThrowError(m.runtime, err, bridge.KindInvalidState)
			}
			return obj
		})
	}

	set(`destroy`, func(goja.FunctionCall) goja.Value {
		if r != nil {
			r.Destroy()
		}
		if w != nil {
			w.Destroy()
		}
		return obj
	})

	return obj
}

// Unwrap returns the writable backing v, if any.
func Unwrap(v goja.Value) (*streams.Writable, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	key := obj.GetSymbol(writableKey)
	if key == nil {
		return nil, false
	}
	w, ok := key.Export().(*streams.Writable)
	return w, ok
}

func (m *Module) onReadable(r *streams.Readable, ev streams.ReadableEvent, fn goja.Callable) {
	switch ev {
	case streams.ReadableEventData:
		r.OnData(func(chunk []byte) { m.bridge.Call(fn, m.runtime.ToValue(string(chunk))) })
	case streams.ReadableEventEnd:
		r.OnEnd(func() { m.bridge.Call(fn) })
	case streams.ReadableEventError:
		r.OnError(func(e *bridge.Error) { m.bridge.Call(fn, m.bridge.ErrorValue(e)) })
	case streams.ReadableEventOpen:
		r.OnOpen(func() { m.bridge.Call(fn) })
	case streams.ReadableEventClose:
		r.OnClose(func() { m.bridge.Call(fn) })
	}
}

func (m *Module) onWritable(w *streams.Writable, ev streams.WritableEvent, fn goja.Callable) {
	switch ev {
	case streams.WritableEventDrain:
		w.OnDrain(func() { m.bridge.Call(fn) })
	case streams.WritableEventFinish:
		w.OnFinish(func() { m.bridge.Call(fn) })
	case streams.WritableEventError:
		w.OnError(func(e *bridge.Error) { m.bridge.Call(fn, m.bridge.ErrorValue(e)) })
	case streams.WritableEventOpen:
		w.OnOpen(func() { m.bridge.Call(fn) })
	case streams.WritableEventClose:
		w.OnClose(func() { m.bridge.Call(fn) })
	}
}
