package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refledger_http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CommissionsCredited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refledger_commissions_credited_total",
			Help: "Commission credits recorded on hold",
		},
		[]string{"level"},
	)

	CommissionsReversed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refledger_commissions_reversed_total",
			Help: "Commission credits cancelled by order refunds",
		},
	)

	CommissionsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refledger_commissions_released_total",
			Help: "Release attempts of matured commission credits by result",
		},
		[]string{"result"}, // released, skipped, failed
	)

	ReleaseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refledger_release_duration_seconds",
			Help:    "Duration of a full release run",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refledger_db_query_duration_seconds",
			Help:    "Duration of named SQL queries",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query", "result"}, // result: ok, error
	)

	WithdrawalTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refledger_withdrawal_transitions_total",
			Help: "Withdrawal requests moved to status",
		},
		[]string{"status"},
	)
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts requests by route pattern, so path parameters do not blow up label cardinality
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		HTTPResponseTime.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
