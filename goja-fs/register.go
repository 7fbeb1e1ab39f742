package gojafs

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// ModuleName is the name the module is conventionally registered under.
const ModuleName = `fs`

// Require returns a [require.ModuleLoader] for the fs module.
//
//	registry.RegisterNativeModule(gojafs.ModuleName, gojafs.Require(
//	    gojafs.WithBridge(b),
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

// Enable loads the module registered as [ModuleName], and exposes it as the
// global fs. require must already be enabled on runtime.
func Enable(runtime *goja.Runtime) {
	_ = runtime.Set(ModuleName, require.Require(runtime, ModuleName))
}
