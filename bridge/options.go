package bridge

import (
	"io"
	"os"

	"github.com/joeycumines/go-ragtime/internal/logging"
)

// Option configures a [Bridge].
type Option interface {
	applyOption(*bridgeOptions) error
}

type optionFunc func(*bridgeOptions) error

func (f optionFunc) applyOption(o *bridgeOptions) error { return f(o) }

type bridgeOptions struct {
	logger logging.Logger
	stderr io.Writer
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger logging.Logger) Option {
	return optionFunc(func(o *bridgeOptions) error {
		o.logger = logger
		return nil
	})
}

// WithStderr sets where fatal uncaught errors are reported. Defaults to
// [os.Stderr].
func WithStderr(w io.Writer) Option {
	return optionFunc(func(o *bridgeOptions) error {
		o.stderr = w
		return nil
	})
}

func resolveOptions(opts []Option) (*bridgeOptions, error) {
	cfg := &bridgeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.stderr == nil {
		cfg.stderr = os.Stderr
	}
	return cfg, nil
}
