// Package metrics holds the Prometheus collectors for dripyard. Methods are
// nil-safe so components built without metrics can call them freely.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/dripyard/internal/proxypool"
)

const namespace = "dripyard"

// Metrics is the set of collectors updated by the orchestrator and the
// withdrawal processor.
type Metrics struct {
	claimAttempts *prometheus.CounterVec
	earnedSats    prometheus.Counter
	withdrawals   *prometheus.CounterVec
	liveWorkers   prometheus.Gauge
	sessions      *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		claimAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_attempts_total",
			Help:      "Claim attempts by outcome.",
		}, []string{"outcome"}),
		earnedSats: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "earned_satoshis_total",
			Help:      "Satoshis appended to the earnings ledger.",
		}),
		withdrawals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Withdrawal state transitions by resulting status.",
		}, []string{"status"}),
		liveWorkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_live",
			Help:      "Per-faucet session workers currently running.",
		}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Session state transitions by resulting status.",
		}, []string{"status"}),
	}
}

// ObserveAttempt counts one claim attempt.
func (m *Metrics) ObserveAttempt(outcome string, sats int64) {
	if m == nil {
		return
	}
	m.claimAttempts.WithLabelValues(outcome).Inc()
	if sats > 0 {
		m.earnedSats.Add(float64(sats))
	}
}

// WorkerStarted and WorkerStopped track live workers.
func (m *Metrics) WorkerStarted() {
	if m != nil {
		m.liveWorkers.Inc()
	}
}

func (m *Metrics) WorkerStopped() {
	if m != nil {
		m.liveWorkers.Dec()
	}
}

// ObserveWithdrawal counts a withdrawal entering status.
func (m *Metrics) ObserveWithdrawal(status string) {
	if m != nil {
		m.withdrawals.WithLabelValues(status).Inc()
	}
}

// ObserveSession counts a session entering status.
func (m *Metrics) ObserveSession(status string) {
	if m != nil {
		m.sessions.WithLabelValues(status).Inc()
	}
}

// RegisterPool exposes proxy pool counts as gauges read at scrape time.
func RegisterPool(reg prometheus.Registerer, pool *proxypool.Pool) {
	f := promauto.With(reg)
	for _, status := range []proxypool.Status{proxypool.StatusHealthy, proxypool.StatusUnhealthy, proxypool.StatusInUse} {
		status := status
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "proxies",
			Help:        "Proxies in the pool by status.",
			ConstLabels: prometheus.Labels{"status": string(status)},
		}, func() float64 {
			c := pool.Counts()
			switch status {
			case proxypool.StatusHealthy:
				return float64(c.Healthy)
			case proxypool.StatusUnhealthy:
				return float64(c.Unhealthy)
			default:
				return float64(c.InUse)
			}
		})
	}
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
