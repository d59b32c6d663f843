package metrics

import "github.com/prometheus/client_golang/prometheus"

var RateLimitAdmissionsMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "krakenx_rate_limit_admissions_total",
		Help: "number of admitted rate limit acquisitions",
	}, []string{"category"})

var RateLimitBlockedMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "krakenx_rate_limit_blocked_total",
		Help: "number of acquisitions that had to wait for decay",
	}, []string{"category"})

var RateLimitOrderCapRejectionsMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "krakenx_rate_limit_order_cap_rejections_total",
		Help: "number of order placements rejected by the open-order cap",
	}, []string{"symbol"})

var RateLimitCounterValueMetrics = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "krakenx_rate_limit_counter_value",
		Help: "current decayed value of a rate limit counter",
	}, []string{"category"})

func init() {
	prometheus.MustRegister(
		RateLimitAdmissionsMetrics,
		RateLimitBlockedMetrics,
		RateLimitOrderCapRejectionsMetrics,
		RateLimitCounterValueMetrics,
	)
}
