package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittobroker/pkg/broker"
)

// BrokerMetrics records session lifecycle events. It implements
// broker.Observer.
type BrokerMetrics struct {
	sessions prometheus.Gauge
	opened   *prometheus.CounterVec
	rejected *prometheus.CounterVec
	closed   *prometheus.CounterVec
	lifetime prometheus.Histogram
}

var _ broker.Observer = (*BrokerMetrics)(nil)

// NewBrokerMetrics returns nil when metrics are disabled.
func NewBrokerMetrics() *BrokerMetrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)

	return &BrokerMetrics{
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions",
			Help:      "Live sessions",
		}),
		opened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_opened_total",
			Help:      "Sessions opened by principal",
		}, []string{"principal"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connects_rejected_total",
			Help:      "Rejected connection requests by error kind",
		}, []string{"kind"}),
		closed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_closed_total",
			Help:      "Sessions closed by reason",
		}, []string{"reason"}),
		lifetime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "session_lifetime_seconds",
			Help:      "Time from connect to disconnect",
			Buckets: []float64{
				1,     // 1s
				10,    // 10s
				60,    // 1m
				300,   // 5m
				1800,  // 30m - default idle timeout
				3600,  // 1h
				14400, // 4h
				86400, // 1d
			},
		}),
	}
}

func (m *BrokerMetrics) SessionOpened(principal string) {
	if m == nil {
		return
	}
	m.sessions.Inc()
	m.opened.WithLabelValues(principal).Inc()
}

func (m *BrokerMetrics) SessionClosed(_ string, reason string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.sessions.Dec()
	m.closed.WithLabelValues(reason).Inc()
	m.lifetime.Observe(lifetime.Seconds())
}

func (m *BrokerMetrics) ConnectRejected(kind broker.Kind) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(kind.String()).Inc()
}
