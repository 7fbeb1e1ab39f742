// Package gojaevents provides a Node-style EventEmitter, implemented in
// script, as both the events module and a global.
package gojaevents

import (
	_ "embed"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// ModuleName is the name the module is conventionally registered under.
const ModuleName = `events`

//go:embed events.js
var source string

var program = sync.OnceValues(func() (*goja.Program, error) {
	return goja.Compile(`events.js`, source, true)
})

// Require returns a [require.ModuleLoader] whose exports is the
// EventEmitter constructor.
func Require() require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		prg, err := program()
		if err != nil {
			panic(runtime.NewGoError(err))
		}
		v, err := runtime.RunProgram(prg)
		if err != nil {
			panic(err)
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			panic(runtime.NewTypeError(`gojaevents: invalid module source`))
		}
		if _, err := fn(goja.Undefined(), module); err != nil {
			panic(err)
		}
	}
}

// Enable sets the global EventEmitter to the module registered as
// [ModuleName].
func Enable(runtime *goja.Runtime) {
	_ = runtime.Set(`EventEmitter`, require.Require(runtime, ModuleName))
}
