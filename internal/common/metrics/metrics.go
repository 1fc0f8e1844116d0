// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Zeebe worker metrics
var (
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

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Application lifecycle
var (
	ApplicationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "applications_created_total",
			Help: "Applications created by users",
		},
	)

	ApplicationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "application_transitions_total",
			Help: "Application status transitions",
		},
		[]string{"from", "to"},
	)
)

// Job ingestion and matching
var (
	JobsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_ingested_total",
			Help: "Scraped postings by ingest outcome",
		},
		[]string{"outcome"}, // saved, duplicate, invalid, error
	)

	MatchScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "job_match_score",
			Help:    "Distribution of computed match scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
)

// Scraping sessions
var (
	ScrapingSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraping_sessions_total",
			Help: "Scraping sessions by terminal status",
		},
		[]string{"status"},
	)

	ScrapingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraping_session_duration_seconds",
			Help:    "Wall time of finished scraping sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	ScrapingSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraping_sessions_active",
			Help: "Scraping sessions currently dispatched",
		},
	)
)

var NotificationsSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Notification deliveries by channel and status",
	},
	[]string{"channel", "status"},
)

// HTTP API
var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request latency",
		},
		[]string{"route"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"},
	)
)
