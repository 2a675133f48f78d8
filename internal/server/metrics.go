package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mindwell/buddy/internal/answer"
)

var (
	asksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buddy_asks_total",
		Help: "Questions answered, by intent class and internal coverage tier.",
	}, []string{"intent", "coverage"})

	askDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "buddy_ask_duration_seconds",
		Help:    "End-to-end answer pipeline latency.",
		Buckets: prometheus.DefBuckets,
	})

	providerUses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buddy_provider_uses_total",
		Help: "Citation providers that contributed to an answer.",
	}, []string{"provider"})

	linkChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buddy_link_checks_total",
		Help: "External link validation outcomes.",
	}, []string{"outcome"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buddy_cache_lookups_total",
		Help: "Cache observations per key family.",
	}, []string{"family", "outcome"})
)

// observeAsk folds one response's metadata into the process metrics.
func observeAsk(resp answer.Response, elapsed time.Duration) {
	intent := resp.Meta.Intent
	if intent == "" {
		intent = "escalation"
	}
	asksTotal.WithLabelValues(intent, resp.Meta.InternalCoverage).Inc()
	askDuration.Observe(elapsed.Seconds())

	for _, p := range resp.Meta.UsedProviders {
		providerUses.WithLabelValues(p).Inc()
	}
	linkChecks.WithLabelValues("valid").Add(float64(resp.Meta.VerifiedLinks.Valid))
	linkChecks.WithLabelValues("removed").Add(float64(resp.Meta.VerifiedLinks.Removed))

	for family, hit := range resp.Meta.Cache {
		outcome := "miss"
		if hit {
			outcome = "hit"
		}
		cacheLookups.WithLabelValues(family, outcome).Inc()
	}
}
