// Package metrics exposes prometheus collectors fed by playback events and
// control API requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osa030/trackbox/internal/app/playback"
)

const namespace = "trackbox"

// Metrics holds the trackbox collectors.
type Metrics struct {
	Loads           *prometheus.CounterVec
	Unloads         prometheus.Counter
	TransportErrors *prometheus.CounterVec
	BufferingStalls prometheus.Counter
	BufferProgress  prometheus.Gauge
	Playing         prometheus.Gauge
	APIRequests     *prometheus.CounterVec
	APIDuration     *prometheus.HistogramVec
	APIActive       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "loads_total",
			Help:      "Track loads by result.",
		}, []string{"result"}),
		Unloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "unloads_total",
			Help:      "Track unloads.",
		}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "transport_errors_total",
			Help:      "Swallowed transport failures by operation.",
		}, []string{"op"}),
		BufferingStalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "buffering_stalls_total",
			Help:      "Transitions into the buffering state.",
		}),
		BufferProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "buffer_progress_percent",
			Help:      "Buffer progress of the active track.",
		}),
		Playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "playing",
			Help:      "1 while audio is playing.",
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Control API requests by path and status code.",
		}, []string{"path", "code"}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Control API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		APIActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "active_requests",
			Help:      "In-flight control API requests.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Loads, m.Unloads, m.TransportErrors, m.BufferingStalls,
		m.BufferProgress, m.Playing, m.APIRequests, m.APIDuration, m.APIActive,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register collector")
		}
	}
	return m, nil
}

// Observe records a playback event. It is meant to be subscribed to the
// playback controller.
func (m *Metrics) Observe(e playback.Event) {
	switch e.Type {
	case playback.EventTrackLoaded:
		m.Loads.WithLabelValues("loaded").Inc()
	case playback.EventLoadFailed:
		m.Loads.WithLabelValues("failed").Inc()
	case playback.EventTrackUnloaded:
		m.Unloads.Inc()
	case playback.EventBufferingChanged:
		if e.Snapshot.IsBuffering {
			m.BufferingStalls.Inc()
		}
	case playback.EventTransportError:
		op := "unknown"
		var te *playback.TransportError
		if errors.As(e.Err, &te) {
			op = te.Op
		}
		m.TransportErrors.WithLabelValues(op).Inc()
	}

	m.BufferProgress.Set(e.Snapshot.BufferProgress)
	if e.Snapshot.IsPlaying {
		m.Playing.Set(1)
	} else {
		m.Playing.Set(0)
	}
}

// Handler exposes the metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush supports streaming responses.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware tracks control API request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.APIActive.Inc()
		defer m.APIActive.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.APIDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
		m.APIRequests.WithLabelValues(r.URL.Path, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}
