package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connections
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_connections_active",
		Help: "Number of open websocket connections",
	})

	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_messages_received_total",
		Help: "Inbound events by type",
	}, []string{"type"})

	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_messages_sent_total",
		Help: "Outbound events by type",
	}, []string{"type"})

	ErrorsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_errors_total",
		Help: "signal:error replies by code",
	}, []string{"code"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_rate_limited_total",
		Help: "Inbound events dropped by the per-connection rate limiter",
	})

	EventDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signal_event_duration_ms",
		Help:    "Time spent handling one inbound event in milliseconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"type"})

	// Rooms
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_rooms_active",
		Help: "Number of rooms with at least one peer",
	})

	PeersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_peers_active",
		Help: "Number of peers across all rooms",
	})

	PeersPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_peers_pruned_total",
		Help: "Peers removed for missing heartbeats",
	})

	PresencePrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_presence_pruned_total",
		Help: "Presence entries removed for inactivity",
	})

	PresenceOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_presence_entries",
		Help: "Number of presence entries",
	})

	// Crosstalk
	CrosstalksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_crosstalks_active",
		Help: "Number of live crosstalks",
	})

	InvitationOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_crosstalk_invitations_total",
		Help: "Crosstalk invitations by outcome",
	}, []string{"outcome"})

	QuickTalksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_quick_talks_total",
		Help: "Quick talk requests by outcome",
	}, []string{"outcome"})

	// Redis health
	RedisLatencyMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signal_redis_latency_ms",
		Help:    "Redis operation latency in milliseconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50},
	})

	RedisErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_redis_errors_total",
		Help: "Total Redis errors",
	})

	FeedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_feed_events_total",
		Help: "Activity feed events published",
	}, []string{"kind"})
)

// Helper functions

func RecordReceived(eventType string) {
	MessagesReceivedTotal.WithLabelValues(eventType).Inc()
}

func RecordSent(eventType string, n int) {
	if n > 0 {
		MessagesSentTotal.WithLabelValues(eventType).Add(float64(n))
	}
}

func RecordError(code string) {
	ErrorsSentTotal.WithLabelValues(code).Inc()
}

func RecordInvitation(outcome string) {
	InvitationOutcomesTotal.WithLabelValues(outcome).Inc()
}

func RecordQuickTalk(outcome string) {
	QuickTalksTotal.WithLabelValues(outcome).Inc()
}

// SetOccupancy refreshes the room and presence gauges.
func SetOccupancy(rooms, peers, crosstalks, presence int) {
	RoomsActive.Set(float64(rooms))
	PeersActive.Set(float64(peers))
	CrosstalksActive.Set(float64(crosstalks))
	PresenceOnline.Set(float64(presence))
}
