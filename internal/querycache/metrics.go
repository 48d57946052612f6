package querycache

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_lookups_total",
			Help: "Query cache lookups by outcome (hit, miss, shared)",
		},
		[]string{"route", "result"},
	)

	cacheFetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_fetch_errors_total",
			Help: "Failed upstream fetches behind the query cache",
		},
		[]string{"route"},
	)

	cacheFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querycache_fetch_duration_seconds",
			Help:    "Duration of upstream fetches behind the query cache",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	memoryStoreEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querycache_memory_entries",
			Help: "Entries held by the in-process query cache store",
		},
	)
)

func init() {
	prometheus.MustRegister(cacheLookupsTotal)
	prometheus.MustRegister(cacheFetchErrorsTotal)
	prometheus.MustRegister(cacheFetchDuration)
	prometheus.MustRegister(memoryStoreEntries)
}
