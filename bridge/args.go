package bridge

import (
	"fmt"

	"github.com/dop251/goja"
)

// RequireArgs throws an InvalidArguments error unless call has at least n
// arguments.
func RequireArgs(runtime *goja.Runtime, call goja.FunctionCall, n int, name string) {
	if len(call.Arguments) >= n {
		return
	}
	suffix := `s`
	if n == 1 {
		suffix = ``
	}
	Throw(runtime, Errorf(KindInvalidArguments, "%s requires at least %d argument%s", name, n, suffix))
}

// CallbackArg returns v as a function, throwing an InvalidArguments error if
// it is not callable.
func CallbackArg(runtime *goja.Runtime, v goja.Value) goja.Callable {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		Throw(runtime, Errorf(KindInvalidArguments, MsgCallbackNotFunction))
	}
	return fn
}

// StringArg returns v as a string, throwing an InvalidArguments error for
// undefined, null, symbols, and objects other than String wrappers.
func StringArg(runtime *goja.Runtime, v goja.Value, name string) string {
	switch {
	case v == nil, goja.IsUndefined(v), goja.IsNull(v):
		Throw(runtime, Errorf(KindInvalidArguments, "%s must be a string", name))
	}
	switch exp := v.Export().(type) {
	case string:
		return exp
	case []byte:
		return string(exp)
	case int64, float64, bool:
		return fmt.Sprint(exp)
	}
	Throw(runtime, Errorf(KindInvalidArguments, "%s must be a string", name))
	return ``
}
