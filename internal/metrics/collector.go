// Package metrics exposes Prometheus metrics for HTTP traffic and workflow decisions.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the service's metric vectors.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	actionsTotal       *prometheus.CounterVec
	actionFailures     *prometheus.CounterVec
	conflictsTotal     prometheus.Counter
	autoApprovalsTotal prometheus.Counter
	processingDuration *prometheus.HistogramVec
}

// NewCollector registers the metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		actionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approval_actions_total",
				Help:      "Accepted workflow actions by action and resulting status",
			},
			[]string{"action", "status"},
		),
		actionFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approval_action_failures_total",
				Help:      "Rejected workflow actions by action and error kind",
			},
			[]string{"action", "kind"},
		),
		conflictsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_conflicts_total",
			Help:      "Actions lost to a concurrent update",
		}),
		autoApprovalsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_auto_approvals_total",
			Help:      "Steps satisfied automatically because the approver is the applicant",
		}),
		processingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "application_processing_hours",
				Help:      "Hours from first submission to a terminal decision",
				Buckets:   []float64{1, 4, 8, 24, 48, 72, 168, 336},
			},
			[]string{"status"},
		),
	}
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (c *Collector) RecordAction(action, status string) {
	c.actionsTotal.WithLabelValues(action, status).Inc()
}

func (c *Collector) RecordFailure(action, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	c.actionFailures.WithLabelValues(action, kind).Inc()
}

func (c *Collector) RecordConflict() { c.conflictsTotal.Inc() }

func (c *Collector) RecordAutoApprovals(n int) {
	if n > 0 {
		c.autoApprovalsTotal.Add(float64(n))
	}
}

func (c *Collector) ObserveProcessingTime(status string, d time.Duration) {
	c.processingDuration.WithLabelValues(status).Observe(d.Hours())
}
