package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "accessreview"
)

var (
	fanoutBuckets = []float64{0, 1, 2, 5, 10, 20, 50, 100}

	// Backend Metrics
	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Count of certification backend requests.",
	}, []string{"operation", "status"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_request_duration_seconds",
		Help:      "Time taken for a certification backend request.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// Review Metrics
	EntitlementFanoutSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "entitlement_fanout_accounts",
		Help:      "Number of per-account entitlement lookups issued for one user page.",
		Buckets:   fanoutBuckets,
	})

	RemediationRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remediation_rows_total",
		Help:      "Remediation row outcomes by action.",
	}, []string{"action", "result"})

	ExportRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "export_rows_total",
		Help:      "Rows written to certification access exports.",
	})

	// Cache Metrics
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Read cache lookups by result.",
	}, []string{"result"})

	CacheInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_invalidations_total",
		Help:      "Read cache entries dropped by invalidation.",
	})

	// Notification Metrics
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Slack notifications by kind and status.",
	}, []string{"kind", "status"})
)
