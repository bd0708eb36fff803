// Package metrics exposes focuser counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focuser_bus_transactions_total",
			Help: "Bus transactions by command and result.",
		},
		[]string{"command", "result"},
	)

	TransactionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "focuser_bus_transaction_duration_seconds",
		Help:    "Duration of one open/transact/close cycle.",
		Buckets: prometheus.DefBuckets,
	})

	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focuser_command_retries_total",
			Help: "Retried attempts of write commands.",
		},
		[]string{"op"},
	)

	CommandFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focuser_command_failures_total",
			Help: "Commands that failed after every attempt.",
		},
		[]string{"op"},
	)

	Polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focuser_polls_total",
			Help: "Poll ticks by result.",
		},
		[]string{"result"},
	)

	Position = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "focuser_position_steps",
		Help: "Last reported focuser position.",
	})

	Target = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "focuser_target_steps",
		Help: "Recorded move target.",
	})

	Motion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "focuser_motion_state",
		Help: "0 idle, 1 busy, 2 alert.",
	})
)

func init() {
	prometheus.MustRegister(
		Transactions,
		TransactionDuration,
		Retries,
		CommandFailures,
		Polls,
		Position,
		Target,
		Motion,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
