// Package gojafs provides a small callback and promise based fs module for a
// [goja.Runtime]. File operations run off the loop goroutine, and complete
// through a [bridge.Bridge].
package gojafs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-ragtime/bridge"
	gojastreams "github.com/joeycumines/go-ragtime/goja-streams"
	"github.com/joeycumines/go-ragtime/streams"
)

// Module is bound to a single runtime.
type Module struct {
	runtime     *goja.Runtime
	bridge      *bridge.Bridge
	streams     *gojastreams.Module
	streamOpts  []streams.Option
	maxFileSize int
}

// New creates a new [Module] bound to the given [goja.Runtime]. It panics if
// runtime is nil.
func New(runtime *goja.Runtime, opts ...Option) (*Module, error) {
	if runtime == nil {
		panic("gojafs: runtime must not be nil")
	}
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	sm, err := gojastreams.New(cfg.bridge)
	if err != nil {
		return nil, err
	}
	return &Module{
		runtime:     runtime,
		bridge:      cfg.bridge,
		streams:     sm,
		streamOpts:  cfg.streamOpts,
		maxFileSize: cfg.maxFileSize,
	}, nil
}

// ReadFile reads the whole of path, failing if it is larger than the
// configured maximum. Open failures are classified with openKind. Safe for
// use from any goroutine.
func (m *Module) ReadFile(path string, openKind bridge.Kind) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return ``, openError(openKind, path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, int64(m.maxFileSize)+1))
	if err != nil {
		return ``, bridge.Wrap(bridge.KindFileIO, fmt.Sprintf("Cannot read file '%s': %s", path, reason(err)), err)
	}
	if len(b) > m.maxFileSize {
		return ``, bridge.Errorf(bridge.KindFileIO, "File too large for read buffer (exceeds %d bytes)", m.maxFileSize)
	}
	return string(b), nil
}

// WriteFile creates or truncates path, then writes contents. Safe for use
// from any goroutine.
func (m *Module) WriteFile(path, contents string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FilePerm)
	if err != nil {
		return openError(bridge.KindFileIO, path, err)
	}
	_, err = io.WriteString(f, contents)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return bridge.Wrap(bridge.KindFileIO, fmt.Sprintf("Cannot write file '%s': %s", path, reason(err)), err)
	}
	return nil
}

// CreateReadStream opens path for streaming reads.
func (m *Module) CreateReadStream(path string) (*streams.Readable, error) {
	return streams.NewReadable(m.bridge, func(context.Context) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, openError(bridge.KindFileIO, path, err)
		}
		return f, nil
	}, m.streamOpts...)
}

// CreateWriteStream creates or truncates path for streaming writes.
func (m *Module) CreateWriteStream(path string) (*streams.Writable, error) {
	return streams.NewWritable(m.bridge, func(context.Context) (io.WriteCloser, error) {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FilePerm)
		if err != nil {
			return nil, openError(bridge.KindFileIO, path, err)
		}
		return f, nil
	}, m.streamOpts...)
}

func (m *Module) setupExports(exports *goja.Object) {
	_ = exports.Set(`readFile`, m.runtime.ToValue(m.jsReadFile))
	_ = exports.Set(`writeFile`, m.runtime.ToValue(m.jsWriteFile))
	_ = exports.Set(`exists`, m.runtime.ToValue(m.jsExists))
	_ = exports.Set(`readFileAsync`, m.runtime.ToValue(m.jsReadFileAsync))
	_ = exports.Set(`createReadStream`, m.runtime.ToValue(m.jsCreateReadStream))
	_ = exports.Set(`createWriteStream`, m.runtime.ToValue(m.jsCreateWriteStream))
}

func (m *Module) jsReadFile(call goja.FunctionCall) goja.Value {
	bridge.RequireArgs(m.runtime, call, 2, `fs.readFile`)
	path := bridge.StringArg(m.runtime, call.Argument(0), `Path`)
	h := m.issue(bridge.OpRead, call.Argument(1))
	_ = m.bridge.Go(h, func(context.Context) (any, error) {
		return m.ReadFile(path, bridge.KindFileIO)
	})
	return goja.Undefined()
}

func (m *Module) jsWriteFile(call goja.FunctionCall) goja.Value {
	bridge.RequireArgs(m.runtime, call, 3, `fs.writeFile`)
	path := bridge.StringArg(m.runtime, call.Argument(0), `Path`)
	contents := bridge.StringArg(m.runtime, call.Argument(1), `Contents`)
	h := m.issue(bridge.OpWrite, call.Argument(2))
	_ = m.bridge.Go(h, func(context.Context) (any, error) {
		return nil, m.WriteFile(path, contents)
	})
	return goja.Undefined()
}

func (m *Module) jsExists(call goja.FunctionCall) goja.Value {
	bridge.RequireArgs(m.runtime, call, 2, `fs.exists`)
	path := bridge.StringArg(m.runtime, call.Argument(0), `Path`)
	h := m.issue(bridge.OpStat, call.Argument(1))
	_ = m.bridge.Go(h, func(context.Context) (any, error) {
		_, err := os.Stat(path)
		return err == nil, nil
	})
	return goja.Undefined()
}

func (m *Module) jsReadFileAsync(call goja.FunctionCall) goja.Value {
	bridge.RequireArgs(m.runtime, call, 1, `fs.readFileAsync`)
	path := bridge.StringArg(m.runtime, call.Argument(0), `Path`)
	h, promise := m.bridge.IssueDeferred(bridge.OpRead)
	_ = m.bridge.Go(h, func(context.Context) (any, error) {
		return m.ReadFile(path, bridge.KindFileNotFound)
	})
	return m.runtime.ToValue(promise)
}

func (m *Module) jsCreateReadStream(call goja.FunctionCall) goja.Value {
	bridge.RequireArgs(m.runtime, call, 1, `fs.createReadStream`)
	r, err := m.CreateReadStream(bridge.StringArg(m.runtime, call.Argument(0), `Path`))
	if err != nil {
		bridge.ThrowError(m.runtime, err, bridge.KindInvalidState)
	}
	return m.streams.Readable(r)
}

func (m *Module) jsCreateWriteStream(call goja.FunctionCall) goja.Value {
	bridge.RequireArgs(m.runtime, call, 1, `fs.createWriteStream`)
	w, err := m.CreateWriteStream(bridge.StringArg(m.runtime, call.Argument(0), `Path`))
	if err != nil {
		bridge.ThrowError(m.runtime, err, bridge.KindInvalidState)
	}
	return m.streams.Writable(w)
}

// issue throws if callback is not a function.
func (m *Module) issue(kind bridge.OpKind, callback goja.Value) *bridge.Handle {
	h, err := m.bridge.Issue(kind, callback)
	if err != nil {
		bridge.ThrowError(m.runtime, err, bridge.KindInvalidArguments)
	}
	return h
}

func openError(fallback bridge.Kind, path string, err error) *bridge.Error {
	return bridge.Wrap(fallback, fmt.Sprintf("Cannot open file '%s': %s", path, reason(err)), err)
}

// reason is err without the op and path prefix added by the os package.
func reason(err error) string {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}
