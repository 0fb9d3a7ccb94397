// Package metrics defines the Prometheus collectors exported by the rentguard service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors.
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rentguard",
		Name:      "http_requests_total",
		Help:      "HTTP requests served by route, method and status code.",
	}, []string{"route", "method", "code"})

	LedgerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rentguard",
		Name:      "ledger_requests_total",
		Help:      "Requests made to the ledger by network, operation and outcome.",
	}, []string{"network", "op", "outcome"})

	LedgerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rentguard",
		Name:      "ledger_request_duration_seconds",
		Help:      "Latency of ledger requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"network", "op"})

	PaymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rentguard",
		Name:      "payments_recorded_total",
		Help:      "Rent payments submitted to the ledger and recorded against a rental.",
	}, []string{"network"})
)

// ObserveLedger records the outcome and latency of a ledger operation started at start. It is meant to be deferred
// with a pointer to the operation's named error.
func ObserveLedger(network, op string, start time.Time, err *error) {
	outcome := "ok"
	if err != nil && *err != nil {
		outcome = "error"
	}

	LedgerRequests.WithLabelValues(network, op, outcome).Inc()
	LedgerDuration.WithLabelValues(network, op).Observe(time.Since(start).Seconds())
}

// Handler returns the http handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// Middleware counts requests by their mux route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: rw, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
	})
}
