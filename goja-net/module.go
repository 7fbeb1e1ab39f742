// Package gojanet provides a TCP server module for a [goja.Runtime]. Each
// accepted connection is exposed as a duplex stream, see [streams].
package gojanet

import (
	"math"
	"net"
	"strconv"

	"github.com/dop251/goja"
	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-ragtime/bridge"
	gojastreams "github.com/joeycumines/go-ragtime/goja-streams"
	"github.com/joeycumines/go-ragtime/streams"
)

// Module is bound to a single runtime.
type Module struct {
	runtime    *goja.Runtime
	bridge     *bridge.Bridge
	streams    *gojastreams.Module
	limiter    *catrate.Limiter
	host       string
	streamOpts []streams.Option
}

// New creates a new [Module] bound to the given [goja.Runtime]. It panics if
// runtime is nil.
func New(runtime *goja.Runtime, opts ...Option) (*Module, error) {
	if runtime == nil {
		panic("gojanet: runtime must not be nil")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	sm, err := gojastreams.New(cfg.bridge)
	if err != nil {
		return nil, err
	}
	return &Module{
		runtime:    runtime,
		bridge:     cfg.bridge,
		streams:    sm,
		host:       cfg.host,
		streamOpts: cfg.streamOpts,
		limiter:    cfg.acceptLimiter,
	}, nil
}

// ListenAddress returns the address to bind for port.
func (m *Module) ListenAddress(port int) string {
	return net.JoinHostPort(m.host, strconv.Itoa(port))
}

func (m *Module) setupExports(exports *goja.Object) {
	_ = exports.Set(`createServer`, m.runtime.ToValue(m.jsCreateServer))
}

func (m *Module) jsCreateServer(call goja.FunctionCall) goja.Value {
	handler := bridge.CallbackArg(m.runtime, call.Argument(0))
	ln, err := m.NewListener(func(conn net.Conn) {
		s, err := NewSocket(m.bridge, conn, m.streamOpts...)
		if err != nil {
			m.bridge.Logger().Warning().Err(err).Log(`gojanet: dropped connection`)
			return
		}
		m.bridge.Logger().Debug().Str(`socket`, s.ID()).Log(`gojanet: accepted`)
		m.bridge.Call(handler, s.object(m.bridge, m.streams))
	})
	if err != nil {
		bridge.ThrowError(m.runtime, err, bridge.KindInvalidState)
	}
	return m.ServerObject(ln)
}

// NewListener returns a [Listener] subject to the module's accept rates.
func (m *Module) NewListener(onConn func(net.Conn)) (*Listener, error) {
	ln, err := NewListener(m.bridge, onConn)
	if err != nil {
		return nil, err
	}
	ln.LimitAccepts(m.limiter)
	return ln, nil
}

// ServerObject returns the script representation of a listener: listen,
// close and address.
func (m *Module) ServerObject(ln *Listener) *goja.Object {
	obj := m.runtime.NewObject()
	_ = obj.Set(`listen`, m.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		bridge.RequireArgs(m.runtime, call, 1, `server.listen`)
		port := PortArg(m.runtime, call.Argument(0))
		var cb goja.Callable
		if v := call.Argument(1); !goja.IsUndefined(v) {
			cb = bridge.CallbackArg(m.runtime, v)
		}
		ln.Listen(m.ListenAddress(port), func(err *bridge.Error) {
			switch {
			case cb != nil && err != nil:
				m.bridge.Call(cb, m.bridge.ErrorValue(err))
			case cb != nil:
				m.bridge.Call(cb, goja.Null())
			case err != nil:
				m.bridge.ReportUncaught(err)
			}
		})
		return obj
	}))
	_ = obj.Set(`close`, m.runtime.ToValue(func(goja.FunctionCall) goja.Value {
		ln.Close()
		return obj
	}))
	_ = obj.Set(`address`, m.runtime.ToValue(func(goja.FunctionCall) goja.Value {
		addr, ok := ln.Addr().(*net.TCPAddr)
		if !ok {
			return goja.Null()
		}
		return m.runtime.ToValue(map[string]any{
			`address`: addr.IP.String(),
			`port`:    addr.Port,
		})
	}))
	return obj
}

// PortArg returns v as a TCP port, throwing an InvalidArguments error if it
// is not an integer in range.
func PortArg(runtime *goja.Runtime, v goja.Value) int {
	f := v.ToFloat()
	if goja.IsUndefined(v) || goja.IsNull(v) || math.IsNaN(f) || f != math.Trunc(f) || f < 0 || f > math.MaxUint16 {
		bridge.Throw(runtime, bridge.Errorf(bridge.KindInvalidArguments, `Port must be an integer between 0 and 65535`))
	}
	return int(f)
}
