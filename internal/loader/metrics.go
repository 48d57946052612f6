package loader

import "github.com/prometheus/client_golang/prometheus"

var (
	viewportRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loader_viewport_requests_total",
			Help: "Viewport row requests by result",
		},
		[]string{"result"},
	)

	viewportBlocks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loader_viewport_blocks",
			Help:    "Number of blocks covering a viewport request",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 16, 32},
		},
	)

	blockFetchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loader_block_fetches_total",
			Help: "Blocks fetched from the query service (cache misses)",
		},
	)

	staleResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loader_stale_responses_total",
			Help: "Datasource responses dropped because the query or sort changed while in flight",
		},
	)

	activeViews = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loader_active_views",
			Help: "Client views tracked for stale response detection",
		},
	)
)

func init() {
	prometheus.MustRegister(viewportRequestsTotal)
	prometheus.MustRegister(viewportBlocks)
	prometheus.MustRegister(blockFetchesTotal)
	prometheus.MustRegister(staleResponsesTotal)
	prometheus.MustRegister(activeViews)
}
