package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagebot_deliveries_total",
			Help: "Delivery confirmations processed",
		},
		[]string{"kind"},
	)

	messagesBilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagebot_messages_billed_total",
			Help: "Messages recorded into the usage ledger",
		},
		[]string{"kind", "tier"},
	)

	billedCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagebot_billed_cost_total",
			Help: "Provider cost recorded into the usage ledger, in currency units",
		},
		[]string{"tier"},
	)

	ledgerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagebot_ledger_failures_total",
			Help: "Usage ledger writes that failed after retries",
		},
		[]string{"kind"},
	)

	statsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engagebot_stats_duration_seconds",
			Help:    "Stats read path duration",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"op", "outcome"},
	)

	reviewsDueTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engagebot_reviews_due_total",
			Help: "Interactions that became eligible for a review request",
		},
	)
)

func RecordDelivery(kind string) {
	deliveriesTotal.WithLabelValues(kind).Inc()
}

func RecordBilled(kind, tier string, cost float64) {
	messagesBilledTotal.WithLabelValues(kind, tier).Inc()
	billedCostTotal.WithLabelValues(tier).Add(cost)
}

func RecordLedgerFailure(kind string) {
	ledgerFailuresTotal.WithLabelValues(kind).Inc()
}

func RecordStats(op string, ok bool, duration time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	statsDuration.WithLabelValues(op, outcome).Observe(duration.Seconds())
}

func RecordReviewDue() {
	reviewsDueTotal.Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
