package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_events_published_total",
			Help: "Events accepted by the bus, by subject",
		},
		[]string{"subject"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_events_consumed_total",
			Help: "Deliveries by subject, group and outcome (ack, requeue, drop)",
		},
		[]string{"subject", "group", "outcome"},
	)

	VersionConflictsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_version_conflicts_skipped_total",
			Help: "Updates skipped because the entity version had already advanced",
		},
	)

	ExpirationJobsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_expiration_jobs_fired_total",
			Help: "Delayed expiration jobs published",
		},
	)

	PublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketing_publish_seconds",
			Help:    "Time spent waiting for broker confirmation of a publish",
			Buckets: prometheus.DefBuckets,
		},
	)
)
