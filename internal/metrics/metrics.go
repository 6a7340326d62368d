package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	PaymentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_created_transactions_total",
			Help: "Transactions created, by payment method",
		},
		[]string{"method"},
	)
	PaymentsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_failed_requests_total",
			Help: "Payment creation requests that failed, by failure class",
		},
		[]string{"reason"}, // validation|provider_auth|provider_request|provider_shape|storage
	)
	ProviderCallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_provider_call_duration_seconds",
			Help:    "Round-trip time of the token + payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

// Handler exposes every registered collector in the Prometheus text format.
func Handler() http.Handler { return promhttp.Handler() }

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(PaymentsCreated)
	prometheus.MustRegister(PaymentsFailed)
	prometheus.MustRegister(ProviderCallDuration)
	prometheus.MustRegister(WorkerQueueDepth)
}
