package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HumanlyInc/anydb-mcp-service/internal/anydb"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "anydb_mcp",
			Name:      "operations_total",
			Help:      "Total dispatched operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "anydb_mcp",
			Name:      "operation_duration_seconds",
			Help:      "Operation duration in seconds, including the AnyDB round trip.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// ObserveOperation records one dispatched operation. Both protocol surfaces
// funnel through the dispatcher, so this covers the whole catalog.
func ObserveOperation(op string, err error, duration time.Duration) {
	operationsTotal.WithLabelValues(op, outcome(err)).Inc()
	operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var apiErr *anydb.Error
	if errors.As(err, &apiErr) {
		return string(apiErr.Kind)
	}
	return "error"
}
