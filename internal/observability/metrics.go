package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the hub.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	Connections      *prometheus.GaugeVec
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	AuthFailures     *prometheus.CounterVec
	BroadcastsSent   *prometheus.CounterVec
	BroadcastDrops   *prometheus.CounterVec
	TTSSyntheses     *prometheus.CounterVec
	TTSCacheLookups  *prometheus.CounterVec
	BroadcastLatency prometheus.Histogram
	TTSLatency       prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of non-terminal translation sessions.",
		}),
		Connections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open WebSocket connections by role.",
		}, []string{"role"}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		AuthFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Authentication and authorization failures by code.",
		}, []string{"code"}),
		BroadcastsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_sent_total",
			Help:      "Translation deliveries by language.",
		}, []string{"language"}),
		BroadcastDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_drops_total",
			Help:      "Deliveries dropped on slow client queues by language.",
		}, []string{"language"}),
		TTSSyntheses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_syntheses_total",
			Help:      "Text-to-speech synthesis calls by outcome.",
		}, []string{"outcome"}),
		TTSCacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_cache_lookups_total",
			Help:      "Audio cache lookups by result.",
		}, []string{"result"}),
		BroadcastLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_latency_ms",
			Help:      "Latency from broadcast receipt to last delivery enqueue in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		TTSLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tts_latency_ms",
			Help:      "Text-to-speech synthesis latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}),
	}
}

func (m *Metrics) ObserveBroadcastLatency(d time.Duration) {
	m.BroadcastLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTTSLatency(d time.Duration) {
	m.TTSLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
