package ragtime

import (
	"time"

	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/reactor"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	shutdownTimeout = 5 * time.Second
	// sampleTimeout bounds how long a scrape waits for the loop to report
	// state that is only readable on the loop goroutine.
	sampleTimeout = 100 * time.Millisecond
)

// Collector exports loop and handle metrics of a [Runtime]. It is safe to
// scrape while the runtime runs.
type Collector struct {
	loop   *reactor.Loop
	bridge *bridge.Bridge

	tasksRun    *prometheus.Desc
	timersFired *prometheus.Desc
	panics      *prometheus.Desc
	refs        *prometheus.Desc
	queueDepth  *prometheus.Desc
	timers      *prometheus.Desc
	handles     *prometheus.Desc
	dropped     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for r.
func NewCollector(r *Runtime) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Name, ``, name), help, nil, nil)
	}
	return &Collector{
		loop:        r.loop,
		bridge:      r.bridge,
		tasksRun:    desc(`loop_tasks_total`, `Tasks run on the loop, including I/O completions.`),
		timersFired: desc(`loop_timers_fired_total`, `Timer callbacks run on the loop.`),
		panics:      desc(`loop_panics_total`, `Panics recovered on the loop.`),
		refs:        desc(`loop_refs`, `Outstanding references keeping the loop alive.`),
		queueDepth:  desc(`loop_queue_depth`, `Tasks waiting to run.`),
		timers:      desc(`loop_timers`, `Pending loop timers.`),
		handles:     desc(`handles_live`, `Issued operations that have not completed.`),
		dropped:     desc(`completions_dropped_total`, `Completions dropped for invalid handles.`),
	}
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasksRun
	ch <- c.timersFired
	ch <- c.panics
	ch <- c.refs
	ch <- c.queueDepth
	ch <- c.timers
	ch <- c.handles
	ch <- c.dropped
}

// Collect implements [prometheus.Collector]. Handle counts are sampled on
// the loop goroutine, and only while the loop is running.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.loop.Metrics()
	ch <- prometheus.MustNewConstMetric(c.tasksRun, prometheus.CounterValue, float64(m.TasksRun))
	ch <- prometheus.MustNewConstMetric(c.timersFired, prometheus.CounterValue, float64(m.TimersFired))
	ch <- prometheus.MustNewConstMetric(c.panics, prometheus.CounterValue, float64(m.Panics))
	ch <- prometheus.MustNewConstMetric(c.refs, prometheus.GaugeValue, float64(m.Refs))
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(m.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.timers, prometheus.GaugeValue, float64(m.Timers))
	if s, ok := c.sample(); ok {
		ch <- prometheus.MustNewConstMetric(c.handles, prometheus.GaugeValue, float64(s.live))
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.dropped))
	}
}

type handleStats struct {
	live    int
	dropped uint64
}

// sample reads the bridge counters on the loop goroutine. It fails if the
// loop is not running or does not respond in time.
func (c *Collector) sample() (handleStats, bool) {
	if c.loop.State() != reactor.StateRunning {
		return handleStats{}, false
	}
	result := make(chan handleStats, 1)
	if err := c.loop.Submit(func() {
		result <- handleStats{live: c.bridge.Live(), dropped: c.bridge.Dropped()}
	}); err != nil {
		return handleStats{}, false
	}
	timer := time.NewTimer(sampleTimeout)
	defer timer.Stop()
	select {
	case s := <-result:
		return s, true
	case <-c.loop.Done():
	case <-timer.C:
	}
	return handleStats{}, false
}
