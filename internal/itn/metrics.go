package itn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	notifications *prometheus.CounterVec
	checks        *prometheus.CounterVec
	confirmTime   prometheus.Histogram
}

// NewMetrics registers the ingestion collectors on reg. A nil reg gives
// unregistered collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payfast",
			Subsystem: "itn",
			Name:      "notifications_total",
			Help:      "Notifications handled, by result and verdict.",
		}, []string{"result", "verdict"}),
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payfast",
			Subsystem: "itn",
			Name:      "checks_total",
			Help:      "Verification check results.",
		}, []string{"check", "status"}),
		confirmTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "payfast",
			Subsystem: "itn",
			Name:      "authority_confirm_seconds",
			Help:      "Latency of the gateway validate call.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeEvaluation(eval Evaluation) {
	for _, c := range eval.Checks {
		m.checks.WithLabelValues(c.Check, string(c.Status)).Inc()
	}
}

func (m *Metrics) observeResult(result string, verdict Verdict) {
	m.notifications.WithLabelValues(result, string(verdict)).Inc()
}
