// Package metrics exposes Prometheus metrics for the tipping service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tipstark"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TipsSubmitted    prometheus.Counter
	TipsRejected     *prometheus.CounterVec
	TipTransitions   *prometheus.CounterVec
	PendingTips      prometheus.Gauge
	ReceiptErrors    prometheus.Counter
	ReconcileLatency prometheus.Histogram

	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	ActiveSessions   prometheus.Gauge
	ConnectedWallets prometheus.Gauge
	TotalsRefreshes  *prometheus.CounterVec
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TipsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tips_submitted_total",
			Help:      "Total number of tips submitted on chain",
		}),
		TipsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tips_rejected_total",
			Help:      "Tip submissions rejected before a record was created, by error class",
		}, []string{"class"}),
		TipTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tip_transitions_total",
			Help:      "Tip status transitions by target status",
		}, []string{"status"}),
		PendingTips: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "pending_tips",
			Help:      "Pending tips seen by the last reconciliation pass",
		}),
		ReceiptErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "receipt_errors_total",
			Help:      "Receipt fetches that failed during reconciliation",
		}),
		ReconcileLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconciliation passes",
			Buckets:   prometheus.DefBuckets,
		}),
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_duration_seconds",
			Help:      "Chain RPC latency by method",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		RPCCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_errors_total",
			Help:      "Chain RPC failures by method",
		}, []string{"method"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Open tipping sessions",
		}),
		ConnectedWallets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "connected_wallets",
			Help:      "Sessions with a connected wallet",
		}),
		TotalsRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "totals_refreshes_total",
			Help:      "Per-creator totals refreshes by outcome",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRPC matches starknet.Observer.
func (m *Metrics) ObserveRPC(method string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	if err != nil {
		m.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) TipSubmitted() {
	if m == nil {
		return
	}
	m.TipsSubmitted.Inc()
}

func (m *Metrics) TipRejected(class string) {
	if m == nil {
		return
	}
	m.TipsRejected.WithLabelValues(class).Inc()
}

func (m *Metrics) TipTransitioned(status string) {
	if m == nil {
		return
	}
	m.TipTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ReceiptError() {
	if m == nil {
		return
	}
	m.ReceiptErrors.Inc()
}

func (m *Metrics) Reconciled(pending int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PendingTips.Set(float64(pending))
	m.ReconcileLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) WalletConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.ConnectedWallets.Inc()
	} else {
		m.ConnectedWallets.Dec()
	}
}

func (m *Metrics) TotalsRefreshed(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.TotalsRefreshes.WithLabelValues(outcome).Inc()
}
