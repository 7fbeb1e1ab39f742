// Package jstest provides a script environment for tests of the native
// modules: a goja runtime with require enabled, bound to a loop through a
// bridge.
package jstest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	noderequire "github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/reactor"
	"github.com/stretchr/testify/require"
)

// Timeout bounds Env.Run.
const Timeout = 10 * time.Second

// Env is a single runtime test environment.
type Env struct {
	T        testing.TB
	Runtime  *goja.Runtime
	Loop     *reactor.Loop
	Bridge   *bridge.Bridge
	Registry *noderequire.Registry
	Stderr   *bytes.Buffer
}

// New returns an environment with require enabled. Modules may be
// registered on Registry before they are first required.
func New(t testing.TB) *Env {
	t.Helper()
	e := &Env{
		T:        t,
		Runtime:  goja.New(),
		Registry: noderequire.NewRegistry(),
		Stderr:   new(bytes.Buffer),
	}
	var err error
	e.Loop, err = reactor.New()
	require.NoError(t, err)
	e.Bridge, err = bridge.New(e.Runtime, e.Loop, bridge.WithStderr(e.Stderr))
	require.NoError(t, err)
	e.Registry.Enable(e.Runtime)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), Timeout)
		defer cancel()
		// closing tracked resources first unblocks offloaded reads
		e.Loop.Stop()
		e.Bridge.Close()
		_ = e.Loop.Shutdown(ctx)
	})
	return e
}

// Run runs the loop until idle, failing the test on error or timeout.
func (e *Env) Run() {
	e.T.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	require.NoError(e.T, e.Loop.Run(ctx))
}

// Eval runs src, failing the test if it throws.
func (e *Env) Eval(src string) goja.Value {
	e.T.Helper()
	v, err := e.Runtime.RunString(src)
	require.NoError(e.T, err)
	return v
}

// Export evaluates the expression src and exports the result.
func (e *Env) Export(src string) any {
	e.T.Helper()
	return e.Eval(src).Export()
}
