// Package metrics holds the Prometheus collectors shared by the agent
// components. Collectors are registered on the default registry in init and
// exposed by the HTTP server at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// BookingsCreated counts records inserted by the persistence gateway.
	BookingsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_records_created_total",
		Help: "Booking records created from conversations.",
	})

	// BookingsUpdated counts field updates applied to existing records.
	BookingsUpdated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_records_updated_total",
		Help: "Booking record updates from conversations.",
	})

	// BookingFailures counts store errors by operation (insert, update).
	BookingFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_store_failures_total",
		Help: "Booking store errors by operation.",
	}, []string{"op"})

	// Notifications counts notification attempts by channel and outcome.
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_notifications_total",
		Help: "Booking notifications by channel and outcome.",
	}, []string{"channel", "outcome"})

	// ChatTurns counts text-mode turns by outcome (ok, error, rate_limited).
	ChatTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_chat_turns_total",
		Help: "Text conversation turns by outcome.",
	}, []string{"outcome"})

	// ToolCalls counts function calls received from the live model.
	ToolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_tool_calls_total",
		Help: "Function calls received during voice sessions.",
	}, []string{"name"})

	// VoiceSessions gauges currently connected voice sessions.
	VoiceSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agent_voice_sessions",
		Help: "Voice sessions currently connected.",
	})

	// DroppedFrames counts capture frames dropped because the uplink was full.
	DroppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agent_capture_frames_dropped_total",
		Help: "Microphone frames dropped before upload.",
	})
)

func init() {
	prometheus.MustRegister(
		BookingsCreated,
		BookingsUpdated,
		BookingFailures,
		Notifications,
		ChatTurns,
		ToolCalls,
		VoiceSessions,
		DroppedFrames,
	)
}
