package bridge

import (
	"errors"

	"github.com/dop251/goja"
)

// Valuer may be implemented by completion data that needs a custom
// conversion to a script value. It is called on the loop goroutine.
type Valuer interface {
	JSValue(runtime *goja.Runtime) goja.Value
}

func (b *Bridge) toValue(data any) goja.Value {
	switch v := data.(type) {
	case nil:
		return goja.Undefined()
	case goja.Value:
		return v
	case Valuer:
		return v.JSValue(b.runtime)
	case []byte:
		return b.runtime.ToValue(string(v))
	default:
		return b.runtime.ToValue(v)
	}
}

// ErrorValue converts err to the value passed to script: the thrown value
// for script exceptions, the rejection reason for unhandled rejections, an
// {code, message, details?} error object for *Error, otherwise a GoError.
func (b *Bridge) ErrorValue(err error) goja.Value {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value()
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	var e *Error
	if errors.As(err, &e) {
		return NewErrorObject(b.runtime, e)
	}
	return b.runtime.NewGoError(err)
}

// NewErrorObject returns a script Error instance carrying e's code,
// message, and (if set) details.
func NewErrorObject(runtime *goja.Runtime, e *Error) *goja.Object {
	obj, err := runtime.New(runtime.Get(`Error`), runtime.ToValue(e.Message))
	if err != nil {
		obj = runtime.NewObject()
		_ = obj.Set(`message`, e.Message)
	}
	_ = obj.Set(`code`, e.Kind.String())
	if e.Details != `` {
		_ = obj.Set(`details`, e.Details)
	}
	return obj
}

// Throw raises e as a script exception. It must only be called from a Go
// function invoked by script.
func Throw(runtime *goja.Runtime, e *Error) {
	panic(NewErrorObject(runtime, e))
}

// ThrowError raises err as a script exception, see [Throw]. Errors that are
// not an *Error are classified with fallback.
func ThrowError(runtime *goja.Runtime, err error, fallback Kind) {
	Throw(runtime, AsError(err, fallback))
}
