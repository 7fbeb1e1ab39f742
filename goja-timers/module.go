// Package gojatimers provides setTimeout, setInterval and their clear
// counterparts for a [goja.Runtime], scheduled on a [reactor.Loop] through a
// [bridge.Bridge].
package gojatimers

import (
	"errors"
	"math"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/reactor"
	"github.com/joeycumines/go-ragtime/timers"
)

// Module is bound to a single runtime, and owns its timer table.
type Module struct {
	runtime *goja.Runtime
	bridge  *bridge.Bridge
	table   *timers.Table[*timer]
}

type timer struct {
	next     time.Time
	handle   *bridge.Handle
	callback goja.Callable
	args     []goja.Value
	interval time.Duration
	reactor  reactor.TimerID
}

// New creates a new [Module] bound to the given [goja.Runtime]. It panics if
// runtime is nil.
func New(runtime *goja.Runtime, opts ...Option) (*Module, error) {
	if runtime == nil {
		panic("gojatimers: runtime must not be nil")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Module{
		runtime: runtime,
		bridge:  cfg.bridge,
		table:   timers.NewTable[*timer](cfg.capacity),
	}, nil
}

// Active returns the number of timers that have not fired (one-shot) or been
// cleared.
func (m *Module) Active() int { return m.table.Len() }

// SetTimeout schedules fn to be called once, with args, after delay.
func (m *Module) SetTimeout(fn goja.Callable, delay time.Duration, args ...goja.Value) (timers.ID, error) {
	return m.add(fn, delay, 0, args)
}

// SetInterval schedules fn to be called with args every interval, measured
// from the previous scheduled firing.
func (m *Module) SetInterval(fn goja.Callable, interval time.Duration, args ...goja.Value) (timers.ID, error) {
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return m.add(fn, interval, interval, args)
}

// Clear cancels a timer. Unknown, stale and already fired ids are ignored,
// returning false.
func (m *Module) Clear(id timers.ID) bool {
	t, ok := m.table.Remove(id)
	if !ok {
		return false
	}
	_ = m.bridge.Loop().CancelTimer(t.reactor)
	t.handle.Cancel()
	m.bridge.Complete(t.handle, nil, nil)
	return true
}

func (m *Module) add(fn goja.Callable, delay, interval time.Duration, args []goja.Value) (timers.ID, error) {
	t := &timer{
		callback: fn,
		args:     args,
		interval: interval,
		next:     time.Now().Add(delay),
	}
	id, err := m.table.Insert(t)
	switch {
	case errors.Is(err, timers.ErrTableFull):
		return 0, bridge.Errorf(bridge.KindMemory, bridge.MsgTooManyTimers)
	case err != nil:
		return 0, bridge.Wrap(bridge.KindMemory, `Timer ids exhausted`, err)
	}
	t.handle = m.bridge.IssueNative(bridge.OpTimer, func(any, *bridge.Error) {
		m.bridge.Call(t.callback, t.args...)
	})
	if err := m.schedule(id, t); err != nil {
		m.Clear(id)
		return 0, bridge.Wrap(bridge.KindInvalidState, `Event loop is not running`, err)
	}
	return id, nil
}

func (m *Module) schedule(id timers.ID, t *timer) (err error) {
	t.reactor, err = m.bridge.Loop().ScheduleTimerAt(t.next, func() { m.fire(id) })
	return err
}

func (m *Module) fire(id timers.ID) {
	t, ok := m.table.Get(id)
	if !ok {
		return
	}

	if t.interval == 0 {
		m.table.Remove(id)
		m.bridge.Complete(t.handle, nil, nil)
		return
	}

	m.bridge.Call(t.callback, t.args...)

	if current, ok := m.table.Get(id); !ok || current != t {
		return
	}
	t.next = t.next.Add(t.interval)
	if now := time.Now(); t.next.Before(now) {
		t.next = now
	}
	if err := m.schedule(id, t); err != nil {
		m.Clear(id)
	}
}

func (m *Module) setupExports(exports *goja.Object) {
	_ = exports.Set(`setTimeout`, m.runtime.ToValue(m.jsSetTimeout))
	_ = exports.Set(`clearTimeout`, m.runtime.ToValue(m.jsClear))
	_ = exports.Set(`setInterval`, m.runtime.ToValue(m.jsSetInterval))
	_ = exports.Set(`clearInterval`, m.runtime.ToValue(m.jsClear))
}

func (m *Module) jsSetTimeout(call goja.FunctionCall) goja.Value {
	bridge.RequireArgs(m.runtime, call, 1, `setTimeout`)
	fn := bridge.CallbackArg(m.runtime, call.Argument(0))
	id, err := m.SetTimeout(fn, m.delayArg(call.Argument(1)), restArgs(call, 2)...)
	if err != nil {
		bridge.ThrowError(m.runtime, err, bridge.KindInvalidState)
	}
	return m.runtime.ToValue(int64(id))
}

func (m *Module) jsSetInterval(call goja.FunctionCall) goja.Value {
	bridge.RequireArgs(m.runtime, call, 1, `setInterval`)
	fn := bridge.CallbackArg(m.runtime, call.Argument(0))
	id, err := m.SetInterval(fn, m.delayArg(call.Argument(1)), restArgs(call, 2)...)
	if err != nil {
		bridge.ThrowError(m.runtime, err, bridge.KindInvalidState)
	}
	return m.runtime.ToValue(int64(id))
}

func (m *Module) jsClear(call goja.FunctionCall) goja.Value {
	v := call.Argument(0)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return goja.Undefined()
	}
	if n := v.ToInteger(); n > 0 {
		m.Clear(timers.ID(n))
	}
	return goja.Undefined()
}

// delayArg converts a millisecond delay. Missing and NaN delays are zero.
func (m *Module) delayArg(v goja.Value) time.Duration {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	ms := v.ToFloat()
	switch {
	case math.IsNaN(ms):
		return 0
	case ms < 0:
		bridge.Throw(m.runtime, bridge.Errorf(bridge.KindInvalidArguments, `Delay must be non-negative`))
	case ms > math.MaxInt32:
		ms = math.MaxInt32
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func restArgs(call goja.FunctionCall, from int) []goja.Value {
	if len(call.Arguments) <= from {
		return nil
	}
	return append([]goja.Value(nil), call.Arguments[from:]...)
}
