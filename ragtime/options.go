package ragtime

import (
	"errors"
	"io"
	"os"
	"time"

	gojafs "github.com/joeycumines/go-ragtime/goja-fs"
	gojahttp "github.com/joeycumines/go-ragtime/goja-http"
	"github.com/joeycumines/go-ragtime/internal/logging"
	"github.com/joeycumines/go-ragtime/streams"
	"github.com/joeycumines/go-ragtime/timers"
)

// Option configures a [Runtime].
type Option interface {
	applyOption(*runtimeOptions) error
}

type optionFunc func(*runtimeOptions) error

func (f optionFunc) applyOption(o *runtimeOptions) error { return f(o) }

type runtimeOptions struct {
	logger        logging.Logger
	stdout        io.Writer
	stderr        io.Writer
	argv          []string
	streamOpts    []streams.Option
	listenHost    string
	maxFileSize   int
	timerCapacity int
	dialTimeout   time.Duration
	acceptRates   map[time.Duration]int
}

// WithLogger sets the structured logger shared by every component. A nil
// logger disables logging.
func WithLogger(logger logging.Logger) Option {
	return optionFunc(func(o *runtimeOptions) error {
		o.logger = logger
		return nil
	})
}

// WithStdout sets the destination of console.log, console.info and
// console.debug. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return optionFunc(func(o *runtimeOptions) error {
		if w == nil {
			return errors.New("ragtime: stdout must not be nil")
		}
		o.stdout = w
		return nil
	})
}

// WithStderr sets the destination of console.warn, console.error and fatal
// error reports. Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return optionFunc(func(o *runtimeOptions) error {
		if w == nil {
			return errors.New("ragtime: stderr must not be nil")
		}
		o.stderr = w
		return nil
	})
}

// WithArgv sets process.argv.
func WithArgv(argv ...string) Option {
	return optionFunc(func(o *runtimeOptions) error {
		o.argv = append([]string(nil), argv...)
		return nil
	})
}

// WithMaxFileSize bounds whole-file reads. Defaults to
// [gojafs.DefaultMaxFileSize].
func WithMaxFileSize(n int) Option {
	return optionFunc(func(o *runtimeOptions) error {
		if n <= 0 {
			return errors.New("ragtime: max file size must be positive")
		}
		o.maxFileSize = n
		return nil
	})
}

// WithTimerCapacity bounds the number of concurrently active timers.
// Defaults to [timers.DefaultCapacity].
func WithTimerCapacity(n int) Option {
	return optionFunc(func(o *runtimeOptions) error {
		if n <= 0 {
			return errors.New("ragtime: timer capacity must be positive")
		}
		o.timerCapacity = n
		return nil
	})
}

// WithStreamOptions configures every file and socket stream.
func WithStreamOptions(opts ...streams.Option) Option {
	return optionFunc(func(o *runtimeOptions) error {
		o.streamOpts = append(o.streamOpts, opts...)
		return nil
	})
}

// WithDialTimeout bounds connection establishment for http.get.
func WithDialTimeout(d time.Duration) Option {
	return optionFunc(func(o *runtimeOptions) error {
		if d < 0 {
			return errors.New("ragtime: dial timeout must not be negative")
		}
		o.dialTimeout = d
		return nil
	})
}

// WithListenHost sets the address servers bind to. Defaults to all
// interfaces.
func WithListenHost(host string) Option {
	return optionFunc(func(o *runtimeOptions) error {
		o.listenHost = host
		return nil
	})
}

// WithAcceptRates limits how often each remote host may connect to net and
// http servers, as a count per sliding window.
func WithAcceptRates(rates map[time.Duration]int) Option {
	return optionFunc(func(o *runtimeOptions) error {
		o.acceptRates = rates
		return nil
	})
}

func resolveOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		stdout:        os.Stdout,
		stderr:        os.Stderr,
		maxFileSize:   gojafs.DefaultMaxFileSize,
		timerCapacity: timers.DefaultCapacity,
		dialTimeout:   gojahttp.DefaultDialTimeout,
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
