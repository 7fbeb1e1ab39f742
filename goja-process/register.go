package gojaprocess

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// ModuleName is the name the module is conventionally registered under.
// Registering it as a native module shadows the goja_nodejs core module,
// whose env it extends.
const ModuleName = `process`

// Require returns a [require.ModuleLoader] exporting env, argv, version,
// on and exit.
func Require(opts ...Option) require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		m, err := New(runtime, opts...)
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		m.setupExports(runtime, module)
	}
}

// Enable sets the global process to the module registered as [ModuleName].
func Enable(runtime *goja.Runtime) {
	_ = runtime.Set(`process`, require.Require(runtime, ModuleName))
}
