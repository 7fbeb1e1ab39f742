package reactor

import (
	"container/heap"
	"time"
)

// TimerID identifies a timer scheduled on a [Loop].
type TimerID uint64

type timer struct {
	when  time.Time
	task  Task
	seq   uint64
	id    TimerID
	index int
}

// timerHeap is a min-heap of timers, ordered by expiry then by scheduling
// order, so that timers with the same expiry fire in registration order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// ScheduleTimer schedules task to run on the loop goroutine once delay has
// elapsed. Negative delays are treated as zero.
func (l *Loop) ScheduleTimer(delay time.Duration, task Task) (TimerID, error) {
	if delay < 0 {
		delay = 0
	}
	return l.ScheduleTimerAt(time.Now().Add(delay), task)
}

// ScheduleTimerAt schedules task to run on the loop goroutine at (or after)
// when. It is safe for concurrent use.
func (l *Loop) ScheduleTimerAt(when time.Time, task Task) (TimerID, error) {
	l.mu.Lock()
	if s := l.state.Load(); s == StateTerminating || s == StateTerminated {
		l.mu.Unlock()
		return 0, ErrLoopTerminated
	}
	l.nextTimerID++
	l.timerSeq++
	t := &timer{
		when: when,
		task: task,
		seq:  l.timerSeq,
		id:   l.nextTimerID,
	}
	heap.Push(&l.timers, t)
	l.timerIndex[t.id] = t
	l.mu.Unlock()
	l.signal()
	return t.id, nil
}

// CancelTimer removes a pending timer. It returns [ErrTimerNotFound] if the
// timer has already fired or was never scheduled.
func (l *Loop) CancelTimer(id TimerID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.timerIndex[id]
	if !ok {
		return ErrTimerNotFound
	}
	delete(l.timerIndex, id)
	heap.Remove(&l.timers, t.index)
	return nil
}

// runTimers fires every timer that was due when it was called. Timers
// scheduled by the callbacks themselves wait for the next tick.
func (l *Loop) runTimers() {
	now := time.Now()
	l.mu.Lock()
	limit := l.timerSeq
	l.mu.Unlock()

	for l.state.Load() == StateRunning {
		l.mu.Lock()
		if len(l.timers) == 0 || l.timers[0].when.After(now) || l.timers[0].seq > limit {
			l.mu.Unlock()
			return
		}
		t := heap.Pop(&l.timers).(*timer)
		delete(l.timerIndex, t.id)
		l.mu.Unlock()

		l.safeExecute(t.task)
		l.timersFired.Add(1)
	}
}
