package bridge

import (
	"github.com/dop251/goja"
)

// Deferred is a promise whose settlement is decoupled from its
// construction. It may be settled exactly once, by either Resolve or Reject,
// and must only be used on the loop goroutine.
type Deferred struct {
	promise *goja.Promise
	resolve func(any) error
	reject  func(any) error
}

// NewDeferred creates a pending promise in runtime.
func NewDeferred(runtime *goja.Runtime) *Deferred {
	promise, resolve, reject := runtime.NewPromise()
	return &Deferred{
		promise: promise,
		resolve: resolve,
		reject:  reject,
	}
}

// Promise returns the underlying promise, for returning to script via
// runtime.ToValue.
func (d *Deferred) Promise() *goja.Promise { return d.promise }

// Settled reports whether Resolve or Reject has been called.
func (d *Deferred) Settled() bool { return d.resolve == nil }

// Resolve fulfills the promise with value, returning false if it was
// already settled.
func (d *Deferred) Resolve(value any) bool {
	fn := d.resolve
	if fn == nil {
		return false
	}
	d.settle()
	_ = fn(value)
	return true
}

// Reject rejects the promise with reason, returning false if it was already
// settled.
func (d *Deferred) Reject(reason any) bool {
	fn := d.reject
	if fn == nil {
		return false
	}
	d.settle()
	_ = fn(reason)
	return true
}

// settle drops both resolving functions, the unused one included.
func (d *Deferred) settle() {
	d.resolve = nil
	d.reject = nil
}
