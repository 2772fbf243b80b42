// Package metrics exposes pipeline counters and latencies for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bsvdl"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	segments        prometheus.Counter
	segmentBytes    prometheus.Counter
	segmentFailures *prometheus.CounterVec
	outputBytes     prometheus.Histogram
	inFlight        prometheus.Gauge
	httpRequests    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_requests_total",
			Help:      "Video requests by quality tier and outcome stage.",
		}, []string{"tier", "outcome", "stage"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "End-to-end time to produce a video.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 240},
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		segments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_downloaded_total",
			Help:      "Media segments fetched.",
		}),
		segmentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_bytes_total",
			Help:      "Bytes of media segments fetched.",
		}),
		segmentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_failures_total",
			Help:      "Failed segment fetches by reason.",
		}, []string{"reason"}),
		outputBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "output_bytes",
			Help:      "Size of assembled videos.",
			Buckets:   prometheus.ExponentialBuckets(256*1024, 2, 11),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_in_flight",
			Help:      "Video requests currently being processed.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.stageDuration,
		m.segments,
		m.segmentBytes,
		m.segmentFailures,
		m.outputBytes,
		m.inFlight,
		m.httpRequests,
	)
	return m
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RequestStarted marks a request in flight and returns a func that records
// its completion. stage is empty on success.
func (m *Metrics) RequestStarted() func(tier, stage string, err error) {
	if m == nil {
		return func(string, string, error) {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func(tier, stage string, err error) {
		m.inFlight.Dec()
		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeError
		}
		m.requests.WithLabelValues(tier, outcome, stage).Inc()
		m.requestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SegmentDownloaded counts one fetched segment of n bytes.
func (m *Metrics) SegmentDownloaded(n int64) {
	if m == nil {
		return
	}
	m.segments.Inc()
	m.segmentBytes.Add(float64(n))
}

// SegmentFailed counts a segment fetch that failed for reason.
func (m *Metrics) SegmentFailed(reason string) {
	if m == nil {
		return
	}
	m.segmentFailures.WithLabelValues(reason).Inc()
}

// ObserveOutput records the size of an assembled video.
func (m *Metrics) ObserveOutput(n int) {
	if m == nil {
		return
	}
	m.outputBytes.Observe(float64(n))
}

// HTTPRequest counts a served HTTP request.
func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, statusCode(code)).Inc()
}

func statusCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
