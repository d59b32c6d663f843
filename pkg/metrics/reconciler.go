package metrics

import "github.com/prometheus/client_golang/prometheus"

var ReconcilerEventsMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "krakenx_reconciler_events_total",
		Help: "number of normalized order events emitted",
	}, []string{"status"})

var ReconcilerDroppedNoticesMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "krakenx_reconciler_dropped_notices_total",
		Help: "number of notices dropped without emitting an event",
	}, []string{"reason"})

func init() {
	prometheus.MustRegister(
		ReconcilerEventsMetrics,
		ReconcilerDroppedNoticesMetrics,
	)
}
