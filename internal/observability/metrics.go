// Package observability provides Prometheus metrics for the API.
//
// Each NewMetrics call owns a private registry, exposed by Handler on
// /metrics. Separate instances never collide on registration.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "threaddit"

type Metrics struct {
	// RequestsTotal counts HTTP requests.
	// Labels: method, route, status
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures handler latency.
	// Labels: method, route
	RequestDurationSeconds *prometheus.HistogramVec

	// VotesTotal counts vote toggles.
	// Labels: direction (upvote, downvote), result (upvote, downvote, none)
	VotesTotal *prometheus.CounterVec

	// PostsCreatedTotal counts created posts.
	PostsCreatedTotal prometheus.Counter

	// CommentsCreatedTotal counts created comments.
	CommentsCreatedTotal prometheus.Counter

	// LoginsTotal counts login attempts.
	// Labels: result (success, failure)
	LoginsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a registry with process/go collectors and the API metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		RequestDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		VotesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "votes_total",
			Help:      "Vote toggles by requested direction and resulting vote.",
		}, []string{"direction", "result"}),
		PostsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "posts_created_total",
			Help:      "Posts created.",
		}),
		CommentsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "comments_created_total",
			Help:      "Comments created.",
		}),
		LoginsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		registry: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
