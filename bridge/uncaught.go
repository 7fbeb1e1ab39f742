package bridge

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// RejectionError reports a promise rejection that was not handled before the
// next loop task ran.
type RejectionError struct {
	Reason goja.Value
}

func (e *RejectionError) Error() string {
	if e.Reason == nil {
		return `unhandled promise rejection`
	}
	return `unhandled promise rejection: ` + e.Reason.String()
}

// ExitSignal is the value used to interrupt the runtime on [Bridge.Exit].
type ExitSignal struct {
	Code int
}

// SetUncaughtHandler registers the global uncaught error handler,
// superseding (and releasing) any previous one. A nil fn removes it.
func (b *Bridge) SetUncaughtHandler(fn goja.Callable) {
	b.uncaught = fn
}

// HasUncaughtHandler reports whether a global handler is registered.
func (b *Bridge) HasUncaughtHandler() bool { return b.uncaught != nil }

// ReportUncaught applies the uncaught error policy to err: the registered
// handler is called with it, or, if there is none (or the handler throws),
// the error is reported and the bridge exits with status 1.
func (b *Bridge) ReportUncaught(err error) {
	if err == nil || b.exited {
		return
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return
	}
	if fn := b.uncaught; fn != nil {
		herr := b.callHandler(fn, b.ErrorValue(err))
		if herr == nil || errors.As(herr, &interrupted) {
			return
		}
		err = herr
	}
	b.fatal(err)
}

func (b *Bridge) callHandler(fn goja.Callable, v goja.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in uncaught handler: %v", r)
		}
	}()
	_, err = fn(goja.Undefined(), v)
	return err
}

func (b *Bridge) fatal(err error) {
	b.logger.Err().Err(err).Log(`bridge: uncaught error`)
	_, _ = fmt.Fprintf(b.stderr, "Uncaught %s\n", describe(err))
	b.Exit(1)
}

func describe(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.String()
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Details != `` {
			return e.Kind.String() + `: ` + e.Message + ` (` + e.Details + `)`
		}
		return e.Kind.String() + `: ` + e.Message
	}
	return err.Error()
}

// Exit records code as the exit status, interrupts any running script, and
// stops the loop. Only the first call has any effect.
func (b *Bridge) Exit(code int) {
	if b.exited {
		return
	}
	b.exited = true
	b.exitCode = code
	b.runtime.Interrupt(ExitSignal{Code: code})
	b.loop.Stop()
}

// ExitCode returns the status recorded by [Bridge.Exit], and whether it has
// been called.
func (b *Bridge) ExitCode() (code int, exited bool) {
	return b.exitCode, b.exited
}

// TrackRejections routes promise rejections that are still unhandled when
// the next loop task runs to [Bridge.ReportUncaught].
func (b *Bridge) TrackRejections() {
	pending := make(map[*goja.Promise]struct{})
	b.runtime.SetPromiseRejectionTracker(func(p *goja.Promise, op goja.PromiseRejectionOperation) {
		switch op {
		case goja.PromiseRejectionReject:
			pending[p] = struct{}{}
			_ = b.loop.Submit(func() {
				if _, ok := pending[p]; !ok {
					return
				}
				delete(pending, p)
				b.ReportUncaught(&RejectionError{Reason: p.Result()})
			})
		case goja.PromiseRejectionHandle:
			delete(pending, p)
		}
	})
}
