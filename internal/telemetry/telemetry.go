package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service counters. Construct once per process with
// NewMetrics and share.
type Metrics struct {
	ChatTurns           *prometheus.CounterVec
	Verdicts            *prometheus.CounterVec
	MarketplaceRequests *prometheus.CounterVec
	SearchDuration      prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopscout_chat_turns_total",
			Help: "Chat turns handled, by outcome type.",
		}, []string{"type"}),
		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopscout_verifier_verdicts_total",
			Help: "Availability verdicts, by release status.",
		}, []string{"release_status"}),
		MarketplaceRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopscout_marketplace_requests_total",
			Help: "Marketplace agent calls, by source and outcome.",
		}, []string{"source", "outcome"}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shopscout_search_duration_seconds",
			Help:    "Wall time of the fan-out marketplace search.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
