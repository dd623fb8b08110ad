package observe

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	sessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Sessions created.",
		},
	)
	sessionsEvicted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "session",
			Name:      "evicted_total",
			Help:      "Sessions removed, by cause.",
		},
		[]string{"reason"},
	)
	feedbackAppended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "feedback",
			Name:      "appended_total",
			Help:      "Feedback items accepted.",
		},
	)
	slidesPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "slide",
			Name:      "published_total",
			Help:      "Slide snapshots published.",
		},
	)
	streamConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "stream",
			Name:      "connections_total",
			Help:      "Stream connections accepted.",
		},
	)
	streamRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slidecast",
			Subsystem: "stream",
			Name:      "rejected_total",
			Help:      "Stream connections refused, by cause.",
		},
		[]string{"reason"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionsCreated,
			sessionsEvicted,
			feedbackAppended,
			slidesPublished,
			streamConnections,
			streamRejected,
		)
	})
}

// RegisterStreamTasks exposes the engine's live task count as a gauge. Call
// once, after Register.
func RegisterStreamTasks(f func() float64) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "slidecast",
			Subsystem: "stream",
			Name:      "active_tasks",
			Help:      "Running keepalive/poll loops across all connections.",
		},
		f,
	))
}

func RecordSessionCreated() { sessionsCreated.Inc() }

func RecordSessionEvicted(reason string, n int) {
	sessionsEvicted.WithLabelValues(reason).Add(float64(n))
}

func RecordFeedbackAppended() { feedbackAppended.Inc() }

func RecordSlidePublished() { slidesPublished.Inc() }

func RecordStreamConnection() { streamConnections.Inc() }

func RecordStreamRejected(reason string) { streamRejected.WithLabelValues(reason).Inc() }

func Handler() http.Handler {
	return promhttp.Handler()
}
