package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittobroker/pkg/pool"
)

// CheckoutMetrics records pool checkout waits. It implements pool.Observer.
type CheckoutMetrics struct {
	wait *prometheus.HistogramVec
}

var _ pool.Observer = (*CheckoutMetrics)(nil)

// NewCheckoutMetrics returns nil when metrics are disabled.
func NewCheckoutMetrics() *CheckoutMetrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}
	return &CheckoutMetrics{
		wait: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "pool_checkout_wait_seconds",
			Help:      "Time spent acquiring a resource from a principal's pool",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"outcome"}),
	}
}

func (m *CheckoutMetrics) ObserveCheckout(_ string, wait time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.wait.WithLabelValues(outcome).Observe(wait.Seconds())
}

// PoolCollector exports a snapshot of every pool on each scrape.
type PoolCollector struct {
	pools *pool.Manager

	idle    *prometheus.Desc
	inUse   *prometheus.Desc
	waiting *prometheus.Desc
	maxSize *prometheus.Desc
	created *prometheus.Desc
	closed  *prometheus.Desc
	waits   *prometheus.Desc
	avgWait *prometheus.Desc
}

// NewPoolCollector returns a collector over m.
func NewPoolCollector(m *pool.Manager) *PoolCollector {
	labels := []string{"principal"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "pool", name), help, labels, nil)
	}
	return &PoolCollector{
		pools:   m,
		idle:    desc("idle", "Idle resources"),
		inUse:   desc("in_use", "Checked out resources"),
		waiting: desc("waiting", "Callers waiting for a resource"),
		maxSize: desc("max_size", "Pool capacity"),
		created: desc("created_total", "Resources created"),
		closed:  desc("closed_total", "Resources closed"),
		waits:   desc("waits_total", "Checkouts that had to wait"),
		avgWait: desc("checkout_avg_seconds", "Average checkout time over recent checkouts"),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.idle, c.inUse, c.waiting, c.maxSize, c.created, c.closed, c.waits, c.avgWait} {
		ch <- d
	}
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.pools.Statistics() {
		p := st.Principal
		ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(st.Idle), p)
		ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(st.InUse), p)
		ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.GaugeValue, float64(st.Waiting), p)
		ch <- prometheus.MustNewConstMetric(c.maxSize, prometheus.GaugeValue, float64(st.MaxSize), p)
		ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(st.Created), p)
		ch <- prometheus.MustNewConstMetric(c.closed, prometheus.CounterValue, float64(st.Closed), p)
		ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(st.WaitCount), p)
		if st.StatisticsEnabled {
			ch <- prometheus.MustNewConstMetric(c.avgWait, prometheus.GaugeValue, st.AvgCheckout.Seconds(), p)
		}
	}
}
