package reactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/joeycumines/go-ragtime/internal/logging"
)

var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is
	// already running.
	ErrLoopAlreadyRunning = errors.New("reactor: loop is already running")

	// ErrLoopTerminated is returned when work is submitted to, or Run is
	// called on, a loop that has been stopped.
	ErrLoopTerminated = errors.New("reactor: loop has been terminated")

	// ErrTimerNotFound is returned by CancelTimer for unknown or already
	// fired timers.
	ErrTimerNotFound = errors.New("reactor: timer not found")
)

// Task is a unit of work run on the loop goroutine.
type Task func()

// Loop is a single goroutine event loop. See the package documentation.
type Loop struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger logging.Logger
	state  loopState

	// tasks is the ingress queue of Task values, guarded by mu
	tasks *queue.Queue
	// timers is a min-heap ordered by (when, seq), guarded by mu
	timers     timerHeap
	timerIndex map[TimerID]*timer
	batch      []Task

	wake chan struct{}
	done chan struct{}

	offloaded sync.WaitGroup

	mu sync.Mutex

	nextTimerID TimerID
	timerSeq    uint64
	taskBudget  int

	refs        atomic.Int64
	tasksRun    atomic.Uint64
	timersFired atomic.Uint64
	panics      atomic.Uint64

	stopOnce sync.Once
}

// New creates a new Loop. It must be started with [Loop.Run].
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		ctx:        ctx,
		cancel:     cancel,
		logger:     cfg.logger,
		tasks:      queue.New(),
		timerIndex: make(map[TimerID]*timer),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		taskBudget: cfg.taskBudget,
	}, nil
}

// State returns the current lifecycle state.
func (l *Loop) State() LoopState { return l.state.Load() }

// Done is closed once Run has returned, or the loop was stopped before it
// ran.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Context is canceled once the loop terminates. Offloaded work should use it
// to abandon blocking calls.
func (l *Loop) Context() context.Context { return l.ctx }

// Run processes tasks, timers and completions on the calling goroutine until
// the loop is idle, stopped, or ctx is canceled. A loop may only be run once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.TryTransition(StateAwake, StateRunning) {
		if s := l.state.Load(); s == StateTerminating || s == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}
	defer l.terminate()

	for {
		l.tick()

		if l.state.Load() != StateRunning {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.idle() {
			return nil
		}

		l.wait(ctx)
	}
}

// Stop requests that the loop exit after the current task. It is safe to
// call from any goroutine, including the loop goroutine, and more than once.
func (l *Loop) Stop() {
	for {
		switch s := l.state.Load(); s {
		case StateAwake:
			if l.state.TryTransition(StateAwake, StateTerminating) {
				l.terminate()
				return
			}
		case StateRunning:
			if l.state.TryTransition(StateRunning, StateTerminating) {
				l.signal()
				return
			}
		default:
			return
		}
	}
}

// Shutdown stops the loop and waits for it, and any offloaded work, to
// finish, or for ctx to be canceled.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.Stop()
	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	finished := make(chan struct{})
	go func() {
		l.offloaded.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues a task to run on the loop goroutine. It is safe for
// concurrent use. Tasks run in submission order.
func (l *Loop) Submit(task Task) error {
	if task == nil {
		return nil
	}
	l.mu.Lock()
	if s := l.state.Load(); s == StateTerminating || s == StateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.tasks.Add(task)
	l.mu.Unlock()
	l.signal()
	return nil
}

// Hold keeps the loop alive until the returned release function is called.
// Release is idempotent.
func (l *Loop) Hold() (release func()) {
	l.refs.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.refs.Add(-1)
			l.signal()
		})
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) terminate() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.state.Store(StateTerminated)
		dropped := l.tasks.Length()
		for l.tasks.Length() != 0 {
			l.tasks.Remove()
		}
		for _, t := range l.timers {
			delete(l.timerIndex, t.id)
		}
		l.timers = l.timers[:0]
		l.mu.Unlock()

		l.cancel()
		close(l.done)

		if dropped != 0 {
			l.logger.Debug().
				Int(`dropped_tasks`, dropped).
				Log(`reactor: loop terminated with queued tasks`)
		}
	})
}

func (l *Loop) tick() {
	l.runTimers()
	l.runTasks()
}

func (l *Loop) runTasks() {
	l.mu.Lock()
	n := l.tasks.Length()
	if n > l.taskBudget {
		n = l.taskBudget
	}
	batch := l.batch[:0]
	for i := 0; i < n; i++ {
		batch = append(batch, l.tasks.Remove().(Task))
	}
	l.mu.Unlock()

	for i, task := range batch {
		batch[i] = nil
		if l.state.Load() != StateRunning {
			continue
		}
		l.safeExecute(task)
		l.tasksRun.Add(1)
	}
	l.batch = batch[:0]
}

func (l *Loop) idle() bool {
	if l.refs.Load() > 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length() == 0 && len(l.timers) == 0
}

// wait blocks until there is work to do.
func (l *Loop) wait(ctx context.Context) {
	l.mu.Lock()
	if l.tasks.Length() != 0 {
		l.mu.Unlock()
		return
	}
	var timeout <-chan time.Time
	if len(l.timers) != 0 {
		d := time.Until(l.timers[0].when)
		if d <= 0 {
			l.mu.Unlock()
			return
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	l.mu.Unlock()

	select {
	case <-l.wake:
	case <-timeout:
	case <-ctx.Done():
	}
}

// safeExecute runs fn, recovering and logging any panic.
func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.logger.Err().
				Any(`panic`, r).
				Log(`reactor: task panicked`)
		}
	}()
	fn()
}
