package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Banking operation metrics
	Operations        *prometheus.CounterVec
	OperationErrors   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OperationAmount   *prometheus.HistogramVec
	FeesCharged       prometheus.Counter

	// Account metrics
	AccountsOpened      *prometheus.CounterVec
	AccountsDeactivated prometheus.Counter
	InterestCredited    prometheus.Counter

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBRetries prometheus.Counter

	// Authentication metrics
	AuthAttempts *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Idempotency metrics
	IdempotentReplays prometheus.Counter

	// Outbox metrics
	EventsPublished      *prometheus.CounterVec
	EventPublishFailures prometheus.Counter
}

// New creates and registers all Prometheus metrics with the default registerer
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all metrics and registers them with reg
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobank_operations_total",
				Help: "Total banking operations by type and outcome",
			},
			[]string{"operation", "status"},
		),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobank_operation_errors_total",
				Help: "Total banking operation errors by type",
			},
			[]string{"operation", "error_type"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gobank_operation_duration_seconds",
				Help:    "Duration of banking operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		OperationAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gobank_operation_amount",
				Help:    "Amounts moved by successful operations",
				Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
			},
			[]string{"operation"},
		),
		FeesCharged: factory.NewCounter(prometheus.CounterOpts{
			Name: "gobank_fees_charged_total",
			Help: "Sum of withdrawal fees charged",
		}),

		AccountsOpened: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobank_accounts_opened_total",
				Help: "Total number of accounts opened by kind",
			},
			[]string{"kind"},
		),
		AccountsDeactivated: factory.NewCounter(prometheus.CounterOpts{
			Name: "gobank_accounts_deactivated_total",
			Help: "Total number of accounts deactivated",
		}),
		InterestCredited: factory.NewCounter(prometheus.CounterOpts{
			Name: "gobank_interest_credited_total",
			Help: "Sum of interest credited to savings accounts",
		}),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobank_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gobank_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		DBRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "gobank_db_retries_total",
			Help: "Transactions re-run after a deadlock or serialization failure",
		}),

		AuthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobank_auth_attempts_total",
				Help: "Total authentication attempts",
			},
			[]string{"status"},
		),

		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobank_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),

		IdempotentReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "gobank_idempotent_replays_total",
			Help: "Responses served from the idempotency store",
		}),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobank_events_published_total",
				Help: "Outbox events published by type",
			},
			[]string{"event_type"},
		),
		EventPublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gobank_event_publish_failures_total",
			Help: "Outbox events that failed to publish",
		}),
	}
}
