// Package metrics provides Prometheus instrumentation for the pairing server.
// It exposes gauges for connection, queue and pair counts, counters for
// lifecycle transitions and relay throughput, and a histogram of queue waits.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whisper/pairing/internal/matching"
)

var (
	// ConnectionsTotal tracks the current number of live participants.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_connections_total",
		Help: "Current number of live participants",
	})

	// MatchQueueSize tracks the current number of participants waiting.
	MatchQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_match_queue_size",
		Help: "Current number of participants in the waiting queue",
	})

	// ActivePairs tracks the current number of paired couples.
	ActivePairs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_active_pairs",
		Help: "Current number of paired couples",
	})

	// PairingsTotal counts couples formed by the matchmaker.
	PairingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whisper_pairings_total",
		Help: "Total number of couples formed",
	})

	// MatchDuration records how long a participant waited before pairing.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whisper_match_duration_seconds",
		Help:    "Time from joining the queue to being paired",
		Buckets: []float64{1, 2, 5, 10, 15, 30, 60, 120, 300},
	})

	// QueueTimeoutsTotal counts participants evicted by their queue deadline.
	QueueTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whisper_queue_timeouts_total",
		Help: "Total number of queue deadlines that fired",
	})

	// RelayedTotal counts relayed payloads by kind.
	RelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_relayed_total",
		Help: "Total number of relayed signaling and chat payloads",
	}, []string{"kind"}) // kind = "offer", "answer", "ice-candidate", "message"

	// RelayDroppedTotal counts payloads dropped because the target was not
	// live or not reachable.
	RelayDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_relay_dropped_total",
		Help: "Total number of relayed payloads dropped",
	}, []string{"kind"})

	// ReportsTotal counts user reports.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whisper_reports_total",
		Help: "Total number of user reports",
	})

	// InconsistenciesTotal counts detected asymmetric pairings. Any non-zero
	// value is a bug.
	InconsistenciesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whisper_inconsistent_pairings_total",
		Help: "Total number of asymmetric pairings detected",
	})

	// RateLimitedTotal counts rejected client actions.
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_rate_limited_total",
		Help: "Total number of client actions rejected by rate limiting",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MatchQueueSize,
		ActivePairs,
		PairingsTotal,
		MatchDuration,
		QueueTimeoutsTotal,
		RelayedTotal,
		RelayDroppedTotal,
		ReportsTotal,
		InconsistenciesTotal,
		RateLimitedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observer feeds pairing lifecycle events into the collectors above.
type Observer struct{}

// Observe implements matching.Observer.
func (Observer) Observe(e matching.Event) {
	MatchQueueSize.Set(float64(e.QueueLen))

	switch e.Kind {
	case matching.EventConnected:
		ConnectionsTotal.Inc()
	case matching.EventDisconnected:
		ConnectionsTotal.Dec()
		if e.PartnerID != "" {
			ActivePairs.Dec()
		}
	case matching.EventLeft:
		if e.PartnerID != "" {
			ActivePairs.Dec()
		}
	case matching.EventPaired:
		MatchDuration.Observe(e.Wait.Seconds())
		// Each couple is reported once per side; count it once.
		if e.ParticipantID < e.PartnerID {
			PairingsTotal.Inc()
			ActivePairs.Inc()
		}
	case matching.EventTimedOut:
		QueueTimeoutsTotal.Inc()
	case matching.EventRelayed:
		RelayedTotal.WithLabelValues(e.PayloadKind).Inc()
	case matching.EventRelayDropped:
		RelayDroppedTotal.WithLabelValues(e.PayloadKind).Inc()
	case matching.EventReported:
		ReportsTotal.Inc()
	case matching.EventInconsistent:
		InconsistenciesTotal.Inc()
	}
}
