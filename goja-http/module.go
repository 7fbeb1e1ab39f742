// Package gojahttp provides a minimal HTTP/1.1 module for a [goja.Runtime]:
// http.get, which reads a whole response over a fresh connection, and
// http.createServer, which answers each connection with a single response.
// Chunked encoding, keep-alive and pipelining are not supported.
package gojahttp

import (
	"net"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-ragtime/bridge"
	gojanet "github.com/joeycumines/go-ragtime/goja-net"
)

// Module is bound to a single runtime.
type Module struct {
	runtime         *goja.Runtime
	bridge          *bridge.Bridge
	net             *gojanet.Module
	dialTimeout     time.Duration
	requestTimeout  time.Duration
	responseTimeout time.Duration
	maxResponseSize int
}

// New creates a new [Module] bound to the given [goja.Runtime]. It panics if
// runtime is nil.
func New(runtime *goja.Runtime, opts ...Option) (*Module, error) {
	if runtime == nil {
		panic("gojahttp: runtime must not be nil")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	nm, err := gojanet.New(runtime,
		gojanet.WithBridge(cfg.bridge),
		gojanet.WithListenHost(cfg.host),
		gojanet.WithAcceptRates(cfg.acceptRates),
	)
	if err != nil {
		return nil, err
	}
	return &Module{
		runtime:         runtime,
		bridge:          cfg.bridge,
		net:             nm,
		dialTimeout:     cfg.dialTimeout,
		requestTimeout:  cfg.requestTimeout,
		responseTimeout: cfg.responseTimeout,
		maxResponseSize: cfg.maxResponseSize,
	}, nil
}

// Get starts a GET request for target, completing h with a [*Response].
func (m *Module) Get(target *Target, h *bridge.Handle) {
	r := &request{module: m, handle: h, target: target}
	r.start()
}

func (m *Module) setupExports(exports *goja.Object) {
	_ = exports.Set(`get`, m.runtime.ToValue(m.jsGet))
	_ = exports.Set(`createServer`, m.runtime.ToValue(m.jsCreateServer))
}

func (m *Module) jsGet(call goja.FunctionCall) goja.Value {
	bridge.RequireArgs(m.runtime, call, 2, `http.get`)
	target, err := ParseURL(bridge.StringArg(m.runtime, call.Argument(0), `URL`))
	if err != nil {
		bridge.ThrowError(m.runtime, err, bridge.KindInvalidArguments)
	}
	h, err := m.bridge.Issue(bridge.OpRequest, call.Argument(1))
	if err != nil {
		bridge.ThrowError(m.runtime, err, bridge.KindInvalidArguments)
	}
	m.Get(target, h)
	return goja.Undefined()
}

func (m *Module) jsCreateServer(call goja.FunctionCall) goja.Value {
	handler := bridge.CallbackArg(m.runtime, call.Argument(0))
	ln, err := m.net.NewListener(func(conn net.Conn) {
		m.serve(handler, conn)
	})
	if err != nil {
		bridge.ThrowError(m.runtime, err, bridge.KindInvalidState)
	}
	return m.net.ServerObject(ln)
}
