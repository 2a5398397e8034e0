package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	QueueItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talent",
			Name:      "queue_items_total",
			Help:      "Queue items finished by the search worker, by terminal status",
		},
		[]string{"status"},
	)

	SearchHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "talent",
			Name:      "search_hits_total",
			Help:      "Search hits persisted by the search worker",
		},
	)

	EnrichmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talent",
			Name:      "enrichments_total",
			Help:      "Enrichment attempts by outcome",
		},
		[]string{"outcome"}, // enriched / not_found / failed / already_enriched
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "talent",
			Name:      "provider_request_duration_seconds",
			Help:      "External provider call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)
)

// Register adds the pipeline metrics to reg. Call once from main.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		QueueItemsTotal, SearchHitsTotal, EnrichmentsTotal, ProviderRequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
