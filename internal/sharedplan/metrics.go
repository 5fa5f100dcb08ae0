package sharedplan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts service operations by outcome
	// (ok, invalid, forbidden, not_found, error).
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "sharedplan",
			Name:      "operations_total",
			Help:      "Total shared plan operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "sharedplan",
			Name:      "operation_duration_seconds",
			Help:      "Duration of shared plan operations",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	invitationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "sharedplan",
			Name:      "invitations_total",
			Help:      "Invitation transitions (created, accepted, declined, cancelled)",
		},
		[]string{"transition"},
	)

	messagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "sharedplan",
			Name:      "messages_posted_total",
			Help:      "Plan discussion messages posted",
		},
	)

	messagesRedacted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "sharedplan",
			Name:      "message_redactions_total",
			Help:      "Credential-like regions redacted from posted messages",
		},
	)

	eventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "sharedplan",
			Name:      "event_publish_failures_total",
			Help:      "Plan events that could not be published",
		},
		[]string{"type"},
	)
)
