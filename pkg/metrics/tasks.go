package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/dittobroker/pkg/credentials"
	"github.com/marmos91/dittobroker/pkg/scheduler"
)

// TaskCollector exports scheduled task counters on each scrape.
type TaskCollector struct {
	tasks *scheduler.Group

	runs     *prometheus.Desc
	failures *prometheus.Desc
	interval *prometheus.Desc
	running  *prometheus.Desc
}

// NewTaskCollector returns a collector over g.
func NewTaskCollector(g *scheduler.Group) *TaskCollector {
	labels := []string{"task"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "task", name), help, labels, nil)
	}
	return &TaskCollector{
		tasks:    g,
		runs:     desc("runs_total", "Task invocations"),
		failures: desc("failures_total", "Task invocations that returned an error or panicked"),
		interval: desc("interval_seconds", "Current task interval"),
		running:  desc("running", "1 if the task is started"),
	}
}

func (c *TaskCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runs
	ch <- c.failures
	ch <- c.interval
	ch <- c.running
}

func (c *TaskCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.tasks.Stats() {
		running := 0.0
		if st.Running {
			running = 1
		}
		ch <- prometheus.MustNewConstMetric(c.runs, prometheus.CounterValue, float64(st.Runs), st.Name)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(st.Failures), st.Name)
		ch <- prometheus.MustNewConstMetric(c.interval, prometheus.GaugeValue, st.Interval.Seconds(), st.Name)
		ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running, st.Name)
	}
}

// TokenCollector exports credentials exchange counters.
type TokenCollector struct {
	exchange *credentials.Exchange
	tokens   *prometheus.Desc
	pending  *prometheus.Desc
}

// NewTokenCollector returns a collector over ex.
func NewTokenCollector(ex *credentials.Exchange) *TokenCollector {
	return &TokenCollector{
		exchange: ex,
		tokens: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "handoff", "tokens_total"),
			"Handoff tokens by event", []string{"event"}, nil),
		pending: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "handoff", "tokens_pending"),
			"Issued tokens not yet redeemed or swept", nil, nil),
	}
}

func (c *TokenCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tokens
	ch <- c.pending
}

func (c *TokenCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.exchange.Stats(context.Background())
	ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.CounterValue, float64(st.Issued), "issued")
	ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.CounterValue, float64(st.Redeemed), "redeemed")
	ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.CounterValue, float64(st.Rejected), "rejected")
	ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.CounterValue, float64(st.Swept), "swept")
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(st.Pending))
}
