package gojanet

import (
	"errors"
	"fmt"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/streams"
)

// Option configures a [Module].
type Option interface {
	applyOption(*moduleOptions) error
}

type optionFunc func(*moduleOptions) error

func (f optionFunc) applyOption(o *moduleOptions) error { return f(o) }

type moduleOptions struct {
	bridge        *bridge.Bridge
	host          string
	streamOpts    []streams.Option
	acceptLimiter *catrate.Limiter
}

// WithBridge sets the bridge used to track sockets and invoke callbacks.
// Required.
func WithBridge(b *bridge.Bridge) Option {
	return optionFunc(func(o *moduleOptions) error {
		if b == nil {
			return errors.New("gojanet: bridge must not be nil")
		}
		o.bridge = b
		return nil
	})
}

// WithListenHost sets the address servers bind to. Defaults to all
// interfaces.
func WithListenHost(host string) Option {
	return optionFunc(func(o *moduleOptions) error {
		o.host = host
		return nil
	})
}

// WithStreamOptions configures both halves of each socket.
func WithStreamOptions(opts ...streams.Option) Option {
	return optionFunc(func(o *moduleOptions) error {
		o.streamOpts = append(o.streamOpts, opts...)
		return nil
	})
}

// WithAcceptRates limits how often each remote host may connect, as a
// sliding window count per duration, e.g. {time.Second: 20, time.Minute:
// 300}. Connections over the limit are closed as soon as they are accepted.
// Shorter windows must allow a higher effective rate than longer ones.
func WithAcceptRates(rates map[time.Duration]int) Option {
	return optionFunc(func(o *moduleOptions) error {
		if len(rates) == 0 {
			o.acceptLimiter = nil
			return nil
		}
		limiter, err := newLimiter(rates)
		if err != nil {
			return err
		}
		o.acceptLimiter = limiter
		return nil
	})
}

func newLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gojanet: invalid accept rates: %v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
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
		return nil, errors.New("gojanet: bridge is required (use WithBridge)")
	}
	return cfg, nil
}
