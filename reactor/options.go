package reactor

import (
	"errors"

	"github.com/joeycumines/go-ragtime/internal/logging"
)

// DefaultTaskBudget is the maximum number of queued tasks run per tick,
// before timers are checked again.
const DefaultTaskBudget = 1024

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger     logging.Logger
	taskBudget int
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the structured logger, used to report recovered panics and
// dropped completions. A nil logger disables logging.
func WithLogger(logger logging.Logger) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithTaskBudget bounds the number of queued tasks run per tick.
func WithTaskBudget(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n <= 0 {
			return errors.New("reactor: task budget must be positive")
		}
		opts.taskBudget = n
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		taskBudget: DefaultTaskBudget,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
