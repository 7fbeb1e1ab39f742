package gojafs

import (
	"errors"

	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/streams"
)

// DefaultMaxFileSize bounds whole-file reads.
const DefaultMaxFileSize = 1024

// FilePerm is the mode of files created by writeFile and createWriteStream,
// before the umask.
const FilePerm = 0o644

// Option configures a [Module].
type Option interface {
	applyOption(*moduleOptions) error
}

type optionFunc func(*moduleOptions) error

func (f optionFunc) applyOption(o *moduleOptions) error { return f(o) }

type moduleOptions struct {
	bridge      *bridge.Bridge
	streamOpts  []streams.Option
	maxFileSize int
}

// WithBridge sets the bridge used to run file operations. Required.
func WithBridge(b *bridge.Bridge) Option {
	return optionFunc(func(o *moduleOptions) error {
		if b == nil {
			return errors.New("gojafs: bridge must not be nil")
		}
		o.bridge = b
		return nil
	})
}

// WithMaxFileSize sets the largest file readFile and readFileAsync accept.
// Larger files fail, they are never truncated.
func WithMaxFileSize(n int) Option {
	return optionFunc(func(o *moduleOptions) error {
		if n <= 0 {
			return errors.New("gojafs: max file size must be positive")
		}
		o.maxFileSize = n
		return nil
	})
}

// WithStreamOptions configures the streams returned by createReadStream and
// createWriteStream.
func WithStreamOptions(opts ...streams.Option) Option {
	return optionFunc(func(o *moduleOptions) error {
		o.streamOpts = append(o.streamOpts, opts...)
		return nil
	})
}

func resolveOptions(opts []Option) (*moduleOptions, error) {
	cfg := &moduleOptions{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.bridge == nil {
		return nil, errors.New("gojafs: bridge is required (use WithBridge)")
	}
	return cfg, nil
}
