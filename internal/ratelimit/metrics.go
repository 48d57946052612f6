package ratelimit

import "github.com/prometheus/client_golang/prometheus"

var (
	rateLimitAllowedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_allowed_total",
			Help: "Requests allowed by the rate limiter",
		},
		[]string{"rule"},
	)

	rateLimitDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_denied_total",
			Help: "Requests denied by the rate limiter",
		},
		[]string{"rule"},
	)

	rateLimitErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_errors_total",
			Help: "Rate limiter backend failures",
		},
		[]string{"rule"},
	)
)

func init() {
	prometheus.MustRegister(rateLimitAllowedTotal)
	prometheus.MustRegister(rateLimitDeniedTotal)
	prometheus.MustRegister(rateLimitErrorsTotal)
}
