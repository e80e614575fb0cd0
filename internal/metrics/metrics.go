package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	RewardsGranted      *prometheus.CounterVec
	RewardsRejected     *prometheus.CounterVec
	ReferralsAttributed prometheus.Counter
	WithdrawalRequests  *prometheus.CounterVec
	WithdrawalDecisions *prometheus.CounterVec
	NotifyMessages      *prometheus.CounterVec
	StoreLatency        *prometheus.HistogramVec
	Errors              *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			RewardsGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rewards_granted_total",
				Help:      "Total reward credits granted by kind.",
			}, []string{"kind"}),
			RewardsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rewards_rejected_total",
				Help:      "Total reward claims rejected by kind and reason.",
			}, []string{"kind", "reason"}),
			ReferralsAttributed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "referrals_attributed_total",
				Help:      "Total successful referral attributions.",
			}),
			WithdrawalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "withdrawal_requests_total",
				Help:      "Total withdrawal requests by outcome.",
			}, []string{"outcome"}),
			WithdrawalDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "withdrawal_decisions_total",
				Help:      "Total operator decisions by action.",
			}, []string{"action"}),
			NotifyMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notify_messages_total",
				Help:      "Total outbound notifications by status.",
			}, []string{"status"}),
			StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Latency distribution for store operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.RewardsGranted,
			metricsInstance.RewardsRejected,
			metricsInstance.ReferralsAttributed,
			metricsInstance.WithdrawalRequests,
			metricsInstance.WithdrawalDecisions,
			metricsInstance.NotifyMessages,
			metricsInstance.StoreLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
