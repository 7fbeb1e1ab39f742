// Package ragtime wires a goja runtime to a reactor loop, with the timers,
// fs, http, net, process, events and console modules installed.
//
// A Runtime runs once: evaluate one or more scripts with [Runtime.RunScript]
// or [Runtime.RunFile], then call [Runtime.Run] to process callbacks until
// nothing remains pending, or the script exits.
package ragtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/go-ragtime/bridge"
	gojaevents "github.com/joeycumines/go-ragtime/goja-events"
	gojafs "github.com/joeycumines/go-ragtime/goja-fs"
	gojahttp "github.com/joeycumines/go-ragtime/goja-http"
	gojanet "github.com/joeycumines/go-ragtime/goja-net"
	gojaprocess "github.com/joeycumines/go-ragtime/goja-process"
	gojatimers "github.com/joeycumines/go-ragtime/goja-timers"
	"github.com/joeycumines/go-ragtime/internal/logging"
	"github.com/joeycumines/go-ragtime/reactor"
)

const (
	// Name is the executable and metric namespace name.
	Name = `ragtime`
	// Version is the runtime version, reported by process.version with a
	// leading v.
	Version = `0.1.0`
)

// ErrRuntimeDone is returned when a Runtime is used after [Runtime.Run].
var ErrRuntimeDone = errors.New("ragtime: runtime has already run")

// Runtime is a single script environment. It is not safe for concurrent
// use.
type Runtime struct {
	runtime *goja.Runtime
	loop    *reactor.Loop
	bridge  *bridge.Bridge
	logger  logging.Logger
	done    bool
}

// New constructs a Runtime with every module registered and the
// conventional globals set.
func New(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	loop, err := reactor.New(reactor.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}
	rt := goja.New()
	b, err := bridge.New(rt, loop, bridge.WithLogger(cfg.logger), bridge.WithStderr(cfg.stderr))
	if err != nil {
		return nil, err
	}

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{
		stdout: cfg.stdout,
		stderr: cfg.stderr,
	}))
	registry.RegisterNativeModule(gojatimers.ModuleName, gojatimers.Require(
		gojatimers.WithBridge(b),
		gojatimers.WithCapacity(cfg.timerCapacity),
	))
	registry.RegisterNativeModule(gojafs.ModuleName, gojafs.Require(
		gojafs.WithBridge(b),
		gojafs.WithMaxFileSize(cfg.maxFileSize),
		gojafs.WithStreamOptions(cfg.streamOpts...),
	))
	registry.RegisterNativeModule(gojanet.ModuleName, gojanet.Require(
		gojanet.WithBridge(b),
		gojanet.WithListenHost(cfg.listenHost),
		gojanet.WithStreamOptions(cfg.streamOpts...),
		gojanet.WithAcceptRates(cfg.acceptRates),
	))
	registry.RegisterNativeModule(gojahttp.ModuleName, gojahttp.Require(
		gojahttp.WithBridge(b),
		gojahttp.WithListenHost(cfg.listenHost),
		gojahttp.WithDialTimeout(cfg.dialTimeout),
		gojahttp.WithAcceptRates(cfg.acceptRates),
	))
	registry.RegisterNativeModule(gojaprocess.ModuleName, gojaprocess.Require(
		gojaprocess.WithBridge(b),
		gojaprocess.WithArgv(cfg.argv...),
		gojaprocess.WithVersion(`v`+Version),
	))
	registry.RegisterNativeModule(gojaevents.ModuleName, gojaevents.Require())
	registry.Enable(rt)

	console.Enable(rt)
	gojatimers.Enable(rt)
	gojafs.Enable(rt)
	gojanet.Enable(rt)
	gojahttp.Enable(rt)
	gojaprocess.Enable(rt)
	gojaevents.Enable(rt)

	b.TrackRejections()

	return &Runtime{
		runtime: rt,
		loop:    loop,
		bridge:  b,
		logger:  cfg.logger,
	}, nil
}

// Loop returns the underlying loop, e.g. for [NewCollector].
func (r *Runtime) Loop() *reactor.Loop { return r.loop }

// Bridge returns the bridge between the runtime and the loop.
func (r *Runtime) Bridge() *bridge.Bridge { return r.bridge }

// RunScript evaluates src, named name for stack traces and relative
// requires. An exception thrown by the script is handled as an uncaught
// error, as are any thrown later from callbacks.
func (r *Runtime) RunScript(name, src string) error {
	if r.done {
		return ErrRuntimeDone
	}
	if _, exited := r.bridge.ExitCode(); exited {
		return nil
	}
	if _, err := r.runtime.RunScript(name, src); err != nil {
		r.bridge.ReportUncaught(err)
	}
	return nil
}

// Eval is [Runtime.RunScript] for inline code.
func (r *Runtime) Eval(src string) error {
	return r.RunScript(`<eval>`, src)
}

// RunFile reads and evaluates the script at path. Relative requires resolve
// against its directory.
func (r *Runtime) RunFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("ragtime: could not open file %s: %w", path, err)
	}
	return r.RunScript(abs, string(src))
}

// Run processes the loop until no work remains, the script exits, or ctx is
// canceled, then releases everything still pending. It returns the exit
// status: the code passed to process.exit, 1 after a fatal uncaught error,
// otherwise 0.
func (r *Runtime) Run(ctx context.Context) (int, error) {
	if r.done {
		return 0, ErrRuntimeDone
	}
	r.done = true

	err := r.loop.Run(ctx)
	code, exited := r.bridge.ExitCode()
	if exited && errors.Is(err, reactor.ErrLoopTerminated) {
		err = nil
	}

	r.bridge.Close()
	shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if serr := r.loop.Shutdown(shutdown); serr != nil {
		r.logger.Warning().Err(serr).Log(`ragtime: shutdown incomplete`)
	}

	if err != nil && !exited {
		code = 1
	}
	return code, err
}
