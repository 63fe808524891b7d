package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bid admission outcomes
const (
	OutcomeAccepted      = "accepted"
	OutcomeTooLow        = "too_low"
	OutcomeClosed        = "closed"
	OutcomeNotFound      = "not_found"
	OutcomeInvalid       = "invalid"
	OutcomeAlreadyLeader = "already_leading"
	OutcomeError         = "error"
)

var (
	BidsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_bids_total",
			Help: "Bid submissions by admission outcome.",
		},
		[]string{"outcome"},
	)

	CommitConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_commit_conflicts_total",
		Help: "Compare-and-swap commits that observed stale auction state.",
	})

	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_transitions_total",
			Help: "Lifecycle transitions applied, by target status.",
		},
		[]string{"to"},
	)

	NotificationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_notification_failures_total",
		Help: "End-of-auction notifications that failed and will be retried.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var registerOnce sync.Once

// Init registers all collectors in the default registry. Safe to call repeatedly.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(BidsTotal, CommitConflicts, Transitions, NotificationFailures,
			httpRequestsTotal, httpRequestDuration)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one served HTTP request
func ObserveRequest(method, path, status string, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}
