package streams

import (
	"errors"
)

const (
	// DefaultChunkSize is the size of each read issued by a [Readable].
	DefaultChunkSize = 4096
	// DefaultHighWatermark is the buffered byte count at which
	// [Writable.Write] starts returning false.
	DefaultHighWatermark = 16384
)

// Option configures a [Readable] or [Writable].
type Option interface {
	applyOption(*streamOptions) error
}

type optionFunc func(*streamOptions) error

func (f optionFunc) applyOption(o *streamOptions) error { return f(o) }

type streamOptions struct {
	chunkSize     int
	highWatermark int
}

// WithChunkSize sets the maximum size of each read. Ignored by writables.
func WithChunkSize(n int) Option {
	return optionFunc(func(o *streamOptions) error {
		if n <= 0 {
			return errors.New("streams: chunk size must be positive")
		}
		o.chunkSize = n
		return nil
	})
}

// WithHighWatermark sets the buffered byte count at which backpressure is
// signaled.
func WithHighWatermark(n int) Option {
	return optionFunc(func(o *streamOptions) error {
		if n <= 0 {
			return errors.New("streams: high watermark must be positive")
		}
		o.highWatermark = n
		return nil
	})
}

func resolveOptions(opts []Option) (*streamOptions, error) {
	cfg := &streamOptions{
		chunkSize:     DefaultChunkSize,
		highWatermark: DefaultHighWatermark,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
