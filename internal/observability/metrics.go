package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	registry      *prometheus.Registry
	handler       http.Handler
	requestsTotal *prometheus.CounterVec
	requestDur    *prometheus.HistogramVec
	checksTotal   *prometheus.CounterVec
	checkDur      prometheus.Histogram
	cacheLookups  *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "praxis_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	requestDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "praxis_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "praxis_authz_checks_total",
		Help: "Authorization checks by decision and reason.",
	}, []string{"decision", "reason"})
	checkDur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "praxis_authz_check_duration_seconds",
		Help: "End to end authorization check duration.",
		// The check budget is 10ms p99; buckets resolve well below it.
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
	})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "praxis_authz_cache_lookups_total",
		Help: "Permission cache lookups by result.",
	}, []string{"result"})
	registry.MustRegister(requests, requestDur, checks, checkDur, cacheLookups)
	return &Metrics{
		registry:      registry,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal: requests,
		requestDur:    requestDur,
		checksTotal:   checks,
		checkDur:      checkDur,
		cacheLookups:  cacheLookups,
	}
}

// ObserveCheck records one authorization check.
func (m *Metrics) ObserveCheck(allowed bool, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.checksTotal.WithLabelValues(decision, reason).Inc()
	m.checkDur.Observe(elapsed.Seconds())
}

// ObserveCacheLookup records a permission cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := r.URL.Path
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDur.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
