package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
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

	casesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kyc_cases_created_total",
		Help: "Total number of KYC cases created.",
	})

	caseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_case_transitions_total",
			Help: "Case workflow transitions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	riskLevelTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_risk_level_total",
			Help: "Risk levels produced by completed assessments.",
		},
		[]string{"level"},
	)

	extractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kyc_extraction_duration_seconds",
			Help:    "Latency of external OCR/NLP extraction calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"doc_type", "outcome"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		casesCreatedTotal,
		caseTransitionsTotal,
		riskLevelTotal,
		extractionDuration,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCaseCreated increments the created-cases counter.
func RecordCaseCreated() {
	casesCreatedTotal.Inc()
}

// RecordTransition counts a workflow transition attempt by outcome
// ("ok", "permission", "precondition", "error").
func RecordTransition(action, outcome string) {
	caseTransitionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordRiskLevel counts the risk level of a completed assessment.
func RecordRiskLevel(level string) {
	riskLevelTotal.WithLabelValues(level).Inc()
}

// ObserveExtraction records the latency of one extraction call.
func ObserveExtraction(docType string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	extractionDuration.WithLabelValues(docType, outcome).Observe(d.Seconds())
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses per-case path segments so metric label
// cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/v1/cases/") {
		return path
	}
	rest := strings.Trim(strings.TrimPrefix(path, "/v1/cases/"), "/")
	if rest == "" || rest == "events" {
		return path
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return "/v1/cases/:id"
	case 2:
		switch parts[1] {
		case "documents", "submit", "approve", "reject", "return", "audit", "validation":
			return "/v1/cases/:id/" + parts[1]
		}
	}
	return path
}

// statusWriter captures the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
