package reactor

// Metrics is a point-in-time snapshot of loop counters.
type Metrics struct {
	// TasksRun counts queued tasks executed, including I/O completions.
	TasksRun uint64
	// TimersFired counts timer callbacks executed.
	TimersFired uint64
	// Panics counts recovered panics.
	Panics uint64
	// Refs is the number of outstanding references keeping the loop alive.
	Refs int64
	// QueueDepth is the number of tasks waiting to run.
	QueueDepth int
	// Timers is the number of pending timers.
	Timers int
}

// Metrics returns a snapshot of the loop's counters. Safe for concurrent use.
func (l *Loop) Metrics() Metrics {
	l.mu.Lock()
	depth := l.tasks.Length()
	timers := len(l.timers)
	l.mu.Unlock()
	return Metrics{
		TasksRun:    l.tasksRun.Load(),
		TimersFired: l.timersFired.Load(),
		Panics:      l.panics.Load(),
		Refs:        l.refs.Load(),
		QueueDepth:  depth,
		Timers:      timers,
	}
}
