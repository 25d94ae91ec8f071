package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime connection metrics
var (
	// RealtimeActiveConnections tracks currently registered WebSocket connections
	RealtimeActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_connections",
			Help: "Number of currently registered WebSocket connections",
		},
	)

	// RealtimeConnectionsTotal tracks connection lifecycle events by outcome
	RealtimeConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connections_total",
			Help: "Connection lifecycle events by outcome (opened/closed/rejected)",
		},
		[]string{"outcome"},
	)

	// ConnectionsRejectedTotal tracks connections rejected by limiters
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connections_rejected_total",
			Help: "Connections rejected by limit checks, by reason",
		},
		[]string{"reason"},
	)
)

// Dispatch metrics
var (
	// EventsBroadcastTotal tracks broadcast calls by room kind
	EventsBroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_broadcast_total",
			Help: "Broadcast operations by room kind (user/household/all)",
		},
		[]string{"room"},
	)

	// EventsDeliveredTotal tracks per-connection deliveries
	EventsDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_events_delivered_total",
			Help: "Events delivered to individual connections",
		},
	)

	// DeadConnectionsEvicted tracks connections removed on send failure
	DeadConnectionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_dead_connections_evicted_total",
			Help: "Connections deregistered because a send failed or the buffer overflowed",
		},
	)

	// WebSocketMessageSendDuration tracks time spent writing a single message
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// WebSocketPingFailures tracks keepalive ping write failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "WebSocket keepalive ping failures",
		},
	)
)

// Bridge metrics
var (
	// BridgeEnabled reports whether cross-instance fan-out is active (1) or degraded to local-only (0)
	BridgeEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_enabled",
			Help: "Whether the distributed bridge is enabled (1) or running local-only (0)",
		},
	)

	// BridgePublishesTotal tracks bus publishes by status
	BridgePublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_publishes_total",
			Help: "Bridge publish attempts by status",
		},
		[]string{"status"},
	)

	// BridgeMessagesReceivedTotal tracks inbound bus messages by room kind
	BridgeMessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_messages_received_total",
			Help: "Messages received from the bus by room kind",
		},
		[]string{"room"},
	)

	// BridgeMessagesSkippedTotal tracks malformed bus messages dropped by the listener
	BridgeMessagesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_messages_skipped_total",
			Help: "Malformed bus messages skipped by the listener",
		},
	)

	// BridgeListenerFatalErrors tracks fatal listener errors that disabled the bridge
	BridgeListenerFatalErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_listener_fatal_errors_total",
			Help: "Fatal bus receive errors that disabled the bridge",
		},
	)
)

// Redis client metrics (collected via hooks)
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
