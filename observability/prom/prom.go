// Package prom exports observability.SessionObserver events to Prometheus,
// grounded on the teacher's identically-shaped metrics package.
package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsidionlabs/bridge-go/observability"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// SessionObserver exports bridge session metrics to Prometheus.
type SessionObserver struct {
	messagesAccepted   prometheus.Counter
	messagesDropped    *prometheus.CounterVec
	chunkGroupsOpen    prometheus.Counter
	chunkGroupsClosed  prometheus.Counter
	chunkGroupsEvicted prometheus.Counter
	handshakeOutcomes  *prometheus.CounterVec
	reconnectAttempts  prometheus.Counter
	pingRoundTrip      prometheus.Histogram
}

// NewSessionObserver registers bridge session metrics on the registry.
func NewSessionObserver(reg *prometheus.Registry) *SessionObserver {
	o := &SessionObserver{
		messagesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_messages_accepted_total",
			Help: "Decrypted inbound messages delivered to the application.",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_messages_dropped_total",
			Help: "Inbound frames dropped before delivery, by reason.",
		}, []string{"reason"}),
		chunkGroupsOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_chunk_groups_opened_total",
			Help: "Chunked-message reassembly groups opened.",
		}),
		chunkGroupsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_chunk_groups_closed_total",
			Help: "Chunked-message reassembly groups completed.",
		}),
		chunkGroupsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_chunk_groups_evicted_total",
			Help: "Chunked-message reassembly groups evicted for staleness.",
		}),
		handshakeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_handshake_outcomes_total",
			Help: "Creator-side handshake attempts by outcome.",
		}, []string{"result"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_reconnect_attempts_total",
			Help: "Reconnect attempts made after an unintentional close.",
		}),
		pingRoundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_ping_round_trip_seconds",
			Help:    "Observed ping/pong keepalive round-trip latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		o.messagesAccepted,
		o.messagesDropped,
		o.chunkGroupsOpen,
		o.chunkGroupsClosed,
		o.chunkGroupsEvicted,
		o.handshakeOutcomes,
		o.reconnectAttempts,
		o.pingRoundTrip,
	)
	return o
}

var _ observability.SessionObserver = (*SessionObserver)(nil)

func (o *SessionObserver) MessageAccepted() { o.messagesAccepted.Inc() }

func (o *SessionObserver) MessageDropped(reason observability.DropReason) {
	o.messagesDropped.WithLabelValues(string(reason)).Inc()
}

func (o *SessionObserver) ChunkGroupOpened() { o.chunkGroupsOpen.Inc() }

func (o *SessionObserver) ChunkGroupClosed() { o.chunkGroupsClosed.Inc() }

func (o *SessionObserver) ChunkGroupsEvicted(n int) {
	if n <= 0 {
		return
	}
	o.chunkGroupsEvicted.Add(float64(n))
}

func (o *SessionObserver) HandshakeOutcome(result observability.HandshakeResult) {
	o.handshakeOutcomes.WithLabelValues(string(result)).Inc()
}

func (o *SessionObserver) ReconnectAttempt(attempt int) { o.reconnectAttempts.Inc() }

func (o *SessionObserver) PingRoundTrip(d time.Duration) { o.pingRoundTrip.Observe(d.Seconds()) }
