// Package metrics exposes prometheus counters for the approval engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	decisions          *prometheus.CounterVec
	stockChecks        *prometheus.CounterVec
	batchItems         *prometheus.CounterVec
	batchSize          prometheus.Histogram
	sideEffectFailures *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "approval",
			Name:      "decisions_total",
			Help:      "Approval stage decisions by request type, decision and outcome.",
		}, []string{"request_type", "decision", "result"}),
		stockChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "approval",
			Name:      "stock_checks_total",
			Help:      "Equipment stock evaluations by phase and result.",
		}, []string{"phase", "result"}),
		batchItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "approval",
			Name:      "batch_items_total",
			Help:      "Batch approval items by result code.",
		}, []string{"result"}),
		batchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "approval",
			Name:      "batch_size",
			Help:      "Number of stages submitted per batch approval.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		sideEffectFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "approval",
			Name:      "side_effect_failures_total",
			Help:      "Notification and document re-sign failures. These never fail an approval.",
		}, []string{"op"}),
	}
})

func get() *metrics {
	return metricsSingleton()
}

// RecordDecision counts an approve or revision decision. result is "ok" or an error code.
func RecordDecision(requestType, decision, result string) {
	get().decisions.WithLabelValues(requestType, decision, result).Inc()
}

// RecordStockCheck counts a conflict evaluation; phase is "submit", "check" or "approve".
func RecordStockCheck(phase string, admissible bool) {
	result := "admissible"
	if !admissible {
		result = "shortage"
	}
	get().stockChecks.WithLabelValues(phase, result).Inc()
}

// ObserveBatch records one batch approval call.
func ObserveBatch(size int) {
	get().batchSize.Observe(float64(size))
}

// RecordBatchItem counts one item of a batch by its result code.
func RecordBatchItem(result string) {
	get().batchItems.WithLabelValues(result).Inc()
}

// RecordSideEffectFailure counts a swallowed notifier or resigner failure.
func RecordSideEffectFailure(op string) {
	get().sideEffectFailures.WithLabelValues(op).Inc()
}
