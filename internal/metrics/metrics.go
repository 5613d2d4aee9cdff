// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeFailed   = "failed"
)

var (
	FanoutRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homework_fanout_rows_total",
			Help: "Status rows touched by homework fan-out, by outcome",
		},
		[]string{"outcome"},
	)

	StatusConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_conflicts_total",
			Help: "Unique constraint races resolved by reading the winner's row",
		},
		[]string{"table"},
	)

	MessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total number of chat messages sent",
		},
	)

	SubmissionFileSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "submission_file_bytes",
			Help:    "Distribution of uploaded submission file sizes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
