package gojatimers

import (
	"errors"

	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/timers"
)

// Option configures a [Module].
type Option interface {
	applyOption(*moduleOptions) error
}

type optionFunc func(*moduleOptions) error

func (f optionFunc) applyOption(o *moduleOptions) error { return f(o) }

type moduleOptions struct {
	bridge   *bridge.Bridge
	capacity int
}

// WithBridge sets the bridge used to track timers and invoke callbacks.
// Required.
func WithBridge(b *bridge.Bridge) Option {
	return optionFunc(func(o *moduleOptions) error {
		if b == nil {
			return errors.New("gojatimers: bridge must not be nil")
		}
		o.bridge = b
		return nil
	})
}

// WithCapacity sets the maximum number of concurrently active timers.
// Defaults to [timers.DefaultCapacity].
func WithCapacity(n int) Option {
	return optionFunc(func(o *moduleOptions) error {
		if n <= 0 {
			return errors.New("gojatimers: capacity must be positive")
		}
		o.capacity = n
		return nil
	})
}

func resolveOptions(opts []Option) (*moduleOptions, error) {
	cfg := &moduleOptions{capacity: timers.DefaultCapacity}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.bridge == nil {
		return nil, errors.New("gojatimers: bridge is required (use WithBridge)")
	}
	return cfg, nil
}
