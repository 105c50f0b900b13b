package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Recorder owns a private registry so several clients can live in one
// process (and in tests) without colliding on the default registry.
// All methods are safe on a nil *Recorder.
type Recorder struct {
	registry *prometheus.Registry

	apiRequests    *prometheus.CounterVec
	apiDuration    *prometheus.HistogramVec
	pollAttempts   *prometheus.HistogramVec
	jobOutcomes    *prometheus.CounterVec
	downloadBytes  prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpResponseSz *prometheus.HistogramVec
}

// NewRecorder creates a recorder with its collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dreamina_api_requests_total",
				Help: "Remote API calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dreamina_api_request_duration_seconds",
				Help:    "Remote API call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		pollAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dreamina_poll_attempts",
				Help:    "Status queries issued per waited job",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 60, 120, 180},
			},
			[]string{"kind"},
		),
		jobOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dreamina_job_outcomes_total",
				Help: "Finished jobs by kind and terminal state",
			},
			[]string{"kind", "state"},
		),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamina_download_bytes_total",
			Help: "Bytes written by artifact downloads",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dreamina_gateway_requests_total",
				Help: "Gateway HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpResponseSz: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dreamina_gateway_response_size_bytes",
				Help:    "Gateway HTTP response size",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"route"},
		),
	}

	r.registry.MustRegister(
		r.apiRequests,
		r.apiDuration,
		r.pollAttempts,
		r.jobOutcomes,
		r.downloadBytes,
		r.httpRequests,
		r.httpResponseSz,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector("dreamina"),
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveAPICall records one remote call. result is "ok" or an error kind.
func (r *Recorder) ObserveAPICall(operation, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.apiRequests.WithLabelValues(operation, result).Inc()
	r.apiDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveOutcome records a finished wait.
func (r *Recorder) ObserveOutcome(kind, state string, attempts int) {
	if r == nil {
		return
	}
	r.jobOutcomes.WithLabelValues(kind, state).Inc()
	r.pollAttempts.WithLabelValues(kind).Observe(float64(attempts))
}

// AddDownloadBytes counts bytes written to disk.
func (r *Recorder) AddDownloadBytes(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.downloadBytes.Add(float64(n))
}

// Middleware counts gateway requests. route names the request for labels so
// path parameters do not explode cardinality.
func (r *Recorder) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if r == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, req)
			name := route(req)
			r.httpRequests.WithLabelValues(req.Method, name, strconv.Itoa(rw.statusCode)).Inc()
			r.httpResponseSz.WithLabelValues(name).Observe(float64(rw.bytesWritten))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// WriteText writes the dreamina_* families in the text exposition format.
// The CLI uses it to print a run summary.
func (r *Recorder) WriteText(w io.Writer) error {
	if r == nil {
		return nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "dreamina_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
