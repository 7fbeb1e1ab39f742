package gojatimers

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// ModuleName is the name the module is conventionally registered under.
const ModuleName = `timers`

// Require returns a [require.ModuleLoader] exporting setTimeout,
// clearTimeout, setInterval and clearInterval. Each runtime that loads the
// module gets its own timer table.
//
//	registry.RegisterNativeModule(gojatimers.ModuleName, gojatimers.Require(
//	    gojatimers.WithBridge(b),
//	))
func Require(opts ...Option) require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		m, err := New(runtime, opts...)
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		exports := module.Get(`exports`).(*goja.Object)
		m.setupExports(exports)
	}
}

// Enable loads the module registered as [ModuleName] and copies its exports
// onto the global object, as the timer functions are conventionally
// globals. require must already be enabled on runtime.
func Enable(runtime *goja.Runtime) {
	exports := require.Require(runtime, ModuleName).(*goja.Object)
	global := runtime.GlobalObject()
	for _, name := range exports.Keys() {
		_ = global.Set(name, exports.Get(name))
	}
}
