package gojahttp

import (
	"errors"
	"time"

	"github.com/joeycumines/go-ragtime/bridge"
)

const (
	// DefaultPort is used for URLs without an explicit port.
	DefaultPort = `80`
	// DefaultDialTimeout bounds connection establishment.
	DefaultDialTimeout = 30 * time.Second
	// DefaultMaxResponseSize bounds the bytes read for a single response.
	DefaultMaxResponseSize = 1 << 20
	// DefaultMaxRequestHead bounds the request line and headers accepted by
	// servers.
	DefaultMaxRequestHead = 8 << 10
	// DefaultRequestTimeout bounds how long a server waits for a request
	// head.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultResponseTimeout bounds how long a server waits for a handler
	// to call res.end, after which the connection is closed.
	DefaultResponseTimeout = 30 * time.Second
)

// Option configures a [Module].
type Option interface {
	applyOption(*moduleOptions) error
}

type optionFunc func(*moduleOptions) error

func (f optionFunc) applyOption(o *moduleOptions) error { return f(o) }

type moduleOptions struct {
	bridge          *bridge.Bridge
	host            string
	dialTimeout     time.Duration
	requestTimeout  time.Duration
	responseTimeout time.Duration
	maxResponseSize int
	acceptRates     map[time.Duration]int
}

// WithBridge sets the bridge used to track requests and invoke callbacks.
// Required.
func WithBridge(b *bridge.Bridge) Option {
	return optionFunc(func(o *moduleOptions) error {
		if b == nil {
			return errors.New("gojahttp: bridge must not be nil")
		}
		o.bridge = b
		return nil
	})
}

// WithDialTimeout bounds connection establishment for http.get. Zero
// disables the timeout.
func WithDialTimeout(d time.Duration) Option {
	return optionFunc(func(o *moduleOptions) error {
		if d < 0 {
			return errors.New("gojahttp: dial timeout must not be negative")
		}
		o.dialTimeout = d
		return nil
	})
}

// WithRequestTimeout bounds how long servers wait for each request head.
func WithRequestTimeout(d time.Duration) Option {
	return optionFunc(func(o *moduleOptions) error {
		if d <= 0 {
			return errors.New("gojahttp: request timeout must be positive")
		}
		o.requestTimeout = d
		return nil
	})
}

// WithResponseTimeout bounds how long servers wait for res.end. A response
// that is not ended in time is abandoned, and its connection closed.
func WithResponseTimeout(d time.Duration) Option {
	return optionFunc(func(o *moduleOptions) error {
		if d <= 0 {
			return errors.New("gojahttp: response timeout must be positive")
		}
		o.responseTimeout = d
		return nil
	})
}

// WithMaxResponseSize bounds the size of responses read by http.get.
func WithMaxResponseSize(n int) Option {
	return optionFunc(func(o *moduleOptions) error {
		if n <= 0 {
			return errors.New("gojahttp: max response size must be positive")
		}
		o.maxResponseSize = n
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

// WithAcceptRates limits how often each remote host may connect to servers,
// as for the net module.
func WithAcceptRates(rates map[time.Duration]int) Option {
	return optionFunc(func(o *moduleOptions) error {
		o.acceptRates = rates
		return nil
	})
}

func resolveOptions(opts []Option) (*moduleOptions, error) {
	cfg := &moduleOptions{
		dialTimeout:     DefaultDialTimeout,
		requestTimeout:  DefaultRequestTimeout,
		responseTimeout: DefaultResponseTimeout,
		maxResponseSize: DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.bridge == nil {
		return nil, errors.New("gojahttp: bridge is required (use WithBridge)")
	}
	return cfg, nil
}
