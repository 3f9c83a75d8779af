package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlweb_queries_total",
			Help: "Total number of queries by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlweb_query_duration_seconds",
			Help:    "Wall time from request to complete event",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"mode"},
	)

	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlweb_model_calls_total",
			Help: "Prompt invocations by template and outcome",
		},
		[]string{"prompt", "outcome"},
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nlweb_model_call_duration_seconds",
			Help: "Latency of language model calls",
		},
		[]string{"prompt"},
	)

	RankingInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlweb_ranking_calls_in_flight",
			Help: "Ranking calls currently waiting on the model",
		},
	)

	RankingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlweb_ranking_cache_lookups_total",
			Help: "Ranking cache lookups by result",
		},
		[]string{"result"},
	)

	BackendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlweb_backend_calls_total",
			Help: "Retrieval backend calls by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlweb_events_emitted_total",
			Help: "Protocol events delivered to clients by message type",
		},
		[]string{"message_type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlweb_events_dropped_total",
			Help: "Events discarded because their query had completed or was cancelled",
		},
		[]string{"message_type"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)
)
