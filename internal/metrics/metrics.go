// Package metrics exposes Prometheus collectors for the mirror.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	admissionTotal             *prometheus.CounterVec
	rewritesTotal              *prometheus.CounterVec
	decodeFailuresTotal        *prometheus.CounterVec
	pagesSavedTotal            *prometheus.CounterVec
	bytesSavedTotal            *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		admissionTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_admission_total",
				Help: "Admission decisions, labeled by verdict and reason.",
			},
			[]string{"verdict", "reason"},
		)

		rewritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_rewrites_total",
				Help: "Response bodies rewritten, labeled by content category.",
			},
			[]string{"category"},
		)

		decodeFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_decode_failures_total",
				Help: "Payloads left untouched because they could not be decoded, labeled by encoding.",
			},
			[]string{"encoding"},
		)

		pagesSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_pages_saved_total",
				Help: "Mirrored resources handled by the sink, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		bytesSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_bytes_saved_total",
				Help: "Bytes written to the mirror sink, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_rate_limit_delay_seconds",
				Help:    "Time spent waiting for a rate limit token, labeled by site.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAdmission counts one admission decision.
func ObserveAdmission(verdict, reason string) {
	Init()
	admissionTotal.WithLabelValues(verdict, reason).Inc()
}

// ObserveRewrite counts one rewritten body of the given category.
func ObserveRewrite(category string) {
	Init()
	rewritesTotal.WithLabelValues(category).Inc()
}

// ObserveDecodeFailure counts one payload that could not be decoded.
func ObserveDecodeFailure(encoding string) {
	Init()
	decodeFailuresTotal.WithLabelValues(encoding).Inc()
}

// ObserveSave records a resource handed to the sink.
func ObserveSave(site, status string, bytesWritten int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	pagesSavedTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesWritten > 0 {
		bytesSavedTotal.WithLabelValues(sanitizedSite).Add(float64(bytesWritten))
	}
}

// ObserveFetch records how long a fetch took.
func ObserveFetch(site string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent blocked by the request limiter.
func ObserveRateLimitDelay(site string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware records request counts and latencies per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
