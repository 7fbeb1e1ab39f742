// Package gojaprocess provides the process global: env and argv, a single
// uncaughtException handler slot, and exit.
package gojaprocess

import (
	"runtime"

	"github.com/dop251/goja"
	nodeprocess "github.com/dop251/goja_nodejs/process"
	"github.com/joeycumines/go-ragtime/bridge"
)

// EventUncaughtException is the only event process.on accepts.
const EventUncaughtException = `uncaughtException`

// Module is bound to a single runtime.
type Module struct {
	runtime *goja.Runtime
	bridge  *bridge.Bridge
	argv    []string
	version string
}

// New creates a new [Module] bound to the given [goja.Runtime]. It panics if
// runtime is nil.
func New(runtime *goja.Runtime, opts ...Option) (*Module, error) {
	if runtime == nil {
		panic("gojaprocess: runtime must not be nil")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Module{
		runtime: runtime,
		bridge:  cfg.bridge,
		argv:    cfg.argv,
		version: cfg.version,
	}, nil
}

func (m *Module) setupExports(rt *goja.Runtime, module *goja.Object) {
	// env
	nodeprocess.Require(rt, module)
	exports := module.Get(`exports`).(*goja.Object)
	argv := make([]any, len(m.argv))
	for i, a := range m.argv {
		argv[i] = a
	}
	_ = exports.Set(`argv`, m.runtime.NewArray(argv...))
	_ = exports.Set(`version`, m.version)
	_ = exports.Set(`platform`, runtime.GOOS)
	_ = exports.Set(`on`, m.runtime.ToValue(m.jsOn))
	_ = exports.Set(`exit`, m.runtime.ToValue(m.jsExit))
}

func (m *Module) jsOn(call goja.FunctionCall) goja.Value {
	bridge.RequireArgs(m.runtime, call, 2, `process.on`)
	event := bridge.StringArg(m.runtime, call.Argument(0), `Event name`)
	fn := bridge.CallbackArg(m.runtime, call.Argument(1))
	if event == EventUncaughtException {
		m.bridge.SetUncaughtHandler(fn)
	} else {
		m.bridge.Logger().Debug().Str(`event`, event).Log(`gojaprocess: ignored listener`)
	}
	return call.This
}

func (m *Module) jsExit(call goja.FunctionCall) goja.Value {
	var code int
	if v := call.Argument(0); !goja.IsUndefined(v) && !goja.IsNull(v) {
		code = int(v.ToInteger())
	}
	m.bridge.Exit(code)
	return goja.Undefined()
}
