// Package metrics exposes Prometheus counters for projection, speed
// estimation, pose recovery and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sample outcomes.
const (
	OutcomeProjected = "projected"
	OutcomeDropped   = "dropped"
)

var (
	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowreport_samples_total",
			Help: "Tracked samples processed by the trajectory projector, by outcome.",
		},
		[]string{"outcome"},
	)

	trackProjectionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowreport_track_projection_seconds",
			Help:    "Time to project one track onto the terrain.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	speedSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowreport_speed_samples_total",
			Help: "Speed samples produced, split by whether the speed is defined.",
		},
		[]string{"state"},
	)

	poseRecoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowreport_pose_recoveries_total",
			Help: "Pose-from-homography recoveries, by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowreport_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowreport_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(samplesTotal)
	prometheus.MustRegister(trackProjectionSeconds)
	prometheus.MustRegister(speedSamplesTotal)
	prometheus.MustRegister(poseRecoveriesTotal)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSamples adds n samples with the given outcome.
func ObserveSamples(outcome string, n int) {
	samplesTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveTrackProjection records how long one track took to project.
func ObserveTrackProjection(d time.Duration) {
	trackProjectionSeconds.Observe(d.Seconds())
}

// ObserveSpeeds counts defined and undefined speed samples.
func ObserveSpeeds(defined, undefined int) {
	speedSamplesTotal.WithLabelValues("defined").Add(float64(defined))
	speedSamplesTotal.WithLabelValues("undefined").Add(float64(undefined))
}

// ObservePoseRecovery counts one pose recovery attempt.
func ObservePoseRecovery(outcome string) {
	poseRecoveriesTotal.WithLabelValues(outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// normalizeRoute collapses per-track paths to one label so that track
// identifiers do not blow up label cardinality.
func normalizeRoute(path string) string {
	switch path {
	case "/", "/metrics", "/healthz", "/api/tracks", "/api/calibrations", "/charts/speeds":
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/tracks/"); ok {
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[0] != "" {
			switch parts[1] {
			case "points", "speeds":
				return "/api/tracks/{id}/" + parts[1]
			}
		}
	}
	if strings.HasPrefix(path, "/debug/") {
		return "/debug"
	}
	return "other"
}
