package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routerchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routerchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routerchat_chat_turns_total",
			Help: "Total chat turns by outcome",
		},
		[]string{"outcome"}, // "ok", "validation", "transport", "server", "timeout"
	)

	ChatTurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routerchat_chat_turn_duration_seconds",
			Help:    "Duration of a chat turn including searches and polling",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 20, 40, 60},
		},
	)

	SearchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routerchat_search_failures_total",
			Help: "Data-source searches that failed and were skipped",
		},
	)

	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routerchat_poll_attempts_total",
			Help: "Poll attempts by resulting state",
		},
		[]string{"state"},
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routerchat_sessions_created_total",
			Help: "Total chat sessions created",
		},
	)

	// Collaborator metrics
	ProxyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routerchat_proxy_requests_total",
			Help: "Proxied requests by upstream status",
		},
		[]string{"status"},
	)

	ContactSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routerchat_contact_submissions_total",
			Help: "Contact form submissions by outcome",
		},
		[]string{"outcome"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routerchat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routerchat_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routerchat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DatabaseLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routerchat_database_latency_seconds",
			Help:    "Router directory query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)

