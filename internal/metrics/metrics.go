// Package metrics holds the process-wide prometheus collectors. Exposition
// lives on the HTTP server's /metrics endpoint; run-level accounting is
// persisted on the run row and is not duplicated here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venuegrid_runs_started_total",
		Help: "Backfill runs that entered the running state.",
	})

	TilesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venuegrid_tiles_processed_total",
		Help: "Search tiles processed across all runs.",
	})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venuegrid_provider_requests_total",
		Help: "Provider API requests by typed outcome.",
	}, []string{"status"})

	Upserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venuegrid_upserts_total",
		Help: "Reconciliation outcomes by action.",
	}, []string{"action"})
)
