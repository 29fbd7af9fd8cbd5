// Package metrics holds the Prometheus collectors of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cppla/heistctf/apperr"
)

const namespace = "heistctf"

// Metrics holds Prometheus metrics for the service
type Metrics struct {
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	DBConnPoolStats *prometheus.GaugeVec

	HintResolutions *prometheus.CounterVec
	HintFailures    *prometheus.CounterVec
	SweepOutcomes   *prometheus.CounterVec
	SweepDuration   prometheus.Histogram

	Submissions   *prometheus.CounterVec
	XPAwarded     prometheus.Counter
	BadgesAwarded *prometheus.CounterVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DBConnPoolStats: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"},
		),
		HintResolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hints",
				Name:      "resolutions_total",
				Help:      "Hint requests moved to a terminal state",
			},
			[]string{"status", "paid_with"},
		),
		HintFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hints",
				Name:      "resolution_failures_total",
				Help:      "Hint resolutions that did not commit, by error kind",
			},
			[]string{"kind"},
		),
		SweepOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweeper",
				Name:      "requests_total",
				Help:      "Requests visited by the auto-approval sweeper, by outcome",
			},
			[]string{"outcome"},
		),
		SweepDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sweeper",
				Name:      "run_duration_seconds",
				Help:      "Duration of one sweep",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Submissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "submissions_total",
				Help:      "Recorded submissions",
			},
			[]string{"correct"},
		),
		XPAwarded: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "xp_awarded_total",
				Help:      "Experience points awarded",
			},
		),
		BadgesAwarded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "badges_awarded_total",
				Help:      "Badges awarded",
			},
			[]string{"badge"},
		),
	}
}

// ErrorKind labels err with its apperr kind.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, apperr.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, apperr.ErrInsufficientCurrency):
		return "insufficient_currency"
	case errors.Is(err, apperr.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, apperr.ErrTransientStore):
		return "transient_store"
	default:
		return "internal"
	}
}

// HintResolved counts one committed resolution.
func (m *Metrics) HintResolved(status, paidWith string) {
	if m == nil {
		return
	}
	m.HintResolutions.WithLabelValues(status, paidWith).Inc()
}

// HintFailed counts one resolution that rolled back.
func (m *Metrics) HintFailed(err error) {
	if m == nil {
		return
	}
	m.HintFailures.WithLabelValues(ErrorKind(err)).Inc()
}

// SweepFinished records one sweep's counters and duration.
func (m *Metrics) SweepFinished(approved, skipped, deferred, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.SweepOutcomes.WithLabelValues("approved").Add(float64(approved))
	m.SweepOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	m.SweepOutcomes.WithLabelValues("deferred").Add(float64(deferred))
	m.SweepOutcomes.WithLabelValues("failed").Add(float64(failed))
	m.SweepDuration.Observe(took.Seconds())
}

// SubmissionRecorded counts a committed submission and its rewards.
func (m *Metrics) SubmissionRecorded(correct bool, xp int64, badges []string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(strconv.FormatBool(correct)).Inc()
	if xp > 0 {
		m.XPAwarded.Add(float64(xp))
	}
	m.BadgesGranted(badges)
}

// BadgesGranted counts badges awarded outside a submission, such as by a sync.
func (m *Metrics) BadgesGranted(badges []string) {
	if m == nil {
		return
	}
	for _, b := range badges {
		m.BadgesAwarded.WithLabelValues(b).Inc()
	}
}

// RecordDBPoolStats records database connection pool statistics
func (m *Metrics) RecordDBPoolStats(s sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(s.OpenConnections))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(s.InUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(s.Idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(s.WaitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(s.WaitDuration.Milliseconds()))
}

// GinMiddleware counts requests by matched route so path parameters do not
// explode label cardinality.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
