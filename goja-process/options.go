package gojaprocess

import (
	"errors"

	"github.com/joeycumines/go-ragtime/bridge"
)

// Option configures a [Module].
type Option interface {
	applyOption(*moduleOptions) error
}

type optionFunc func(*moduleOptions) error

func (f optionFunc) applyOption(o *moduleOptions) error { return f(o) }

type moduleOptions struct {
	bridge  *bridge.Bridge
	argv    []string
	version string
}

// WithBridge sets the bridge that owns the uncaught handler and exit
// status. Required.
func WithBridge(b *bridge.Bridge) Option {
	return optionFunc(func(o *moduleOptions) error {
		if b == nil {
			return errors.New("gojaprocess: bridge must not be nil")
		}
		o.bridge = b
		return nil
	})
}

// WithArgv sets process.argv. By convention the first element is the
// interpreter and the second the script path.
func WithArgv(argv ...string) Option {
	return optionFunc(func(o *moduleOptions) error {
		o.argv = append([]string(nil), argv...)
		return nil
	})
}

// WithVersion sets process.version.
func WithVersion(version string) Option {
	return optionFunc(func(o *moduleOptions) error {
		o.version = version
		return nil
	})
}

func resolveOptions(opts []Option) (*moduleOptions, error) {
	cfg := &moduleOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.bridge == nil {
		return nil, errors.New("gojaprocess: bridge is required (use WithBridge)")
	}
	return cfg, nil
}
