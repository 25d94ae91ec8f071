package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pantrio/pantrio/internal/events"
	"github.com/pantrio/pantrio/internal/metrics"
	"github.com/pantrio/pantrio/internal/redis"
	goredis "github.com/redis/go-redis/v9"
)

// Bus channel naming. The listener subscribes to the three patterns, never to
// per-id channels, so the subscription set stays fixed as rooms come and go.
const (
	userChannelPrefix      = "user:"
	householdChannelPrefix = "household:"
	allChannel             = "broadcast:all"
)

// UserChannel returns the bus channel mirroring a user room.
func UserChannel(userID string) string { return userChannelPrefix + userID }

// HouseholdChannel returns the bus channel mirroring a household room.
func HouseholdChannel(householdID string) string { return householdChannelPrefix + householdID }

// AllChannel returns the bus channel mirroring broadcast-all.
func AllChannel() string { return allChannel }

// localDeliverer is the slice of the Dispatcher the bridge needs. Bridge
// deliveries go through the local fan-out only, never back through a publish
// path, so a message received from the bus cannot echo onto the bus again.
type localDeliverer interface {
	DeliverToUser(userID string, wire []byte, exclude uuid.UUID)
	DeliverToHousehold(householdID string, wire []byte, exclude uuid.UUID)
	DeliverToAll(wire []byte, exclude uuid.UUID)
}

// Health is the bridge's observable state.
type Health struct {
	Enabled       bool   `json:"enabled"`
	Connected     bool   `json:"connected"`
	ListenerAlive bool   `json:"listener_alive"`
	LastError     string `json:"last_error,omitempty"`
}

// Bridge mirrors local broadcasts onto Redis Pub/Sub and re-injects messages
// published by other instances into the local dispatcher. Every failure mode
// degrades to single-instance fan-out; none of them crashes the process.
type Bridge struct {
	dispatcher localDeliverer

	mu            sync.Mutex
	client        *goredis.Client
	sub           *goredis.PubSub
	enabled       bool
	connected     bool
	listenerAlive bool
	lastErr       error
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewBridge(dispatcher localDeliverer) *Bridge {
	return &Bridge{dispatcher: dispatcher}
}

// Connect establishes the bus client and verifies it with a ping. On failure
// the bridge stays disabled and the returned error is for logging only: the
// caller keeps running in single-instance mode.
func (b *Bridge) Connect(ctx context.Context, redisURL string) error {
	client, err := redis.NewClient(ctx, redisURL)
	if err != nil {
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
		return fmt.Errorf("bridge connect: %w", err)
	}

	b.mu.Lock()
	b.client = client
	b.connected = true
	b.enabled = true
	b.mu.Unlock()

	metrics.BridgeEnabled.Set(1)
	return nil
}

// StartListener subscribes to the room channel patterns and starts the
// background listener. No-op while the bridge is disabled.
func (b *Bridge) StartListener() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled || b.listenerAlive {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.sub = b.client.PSubscribe(ctx, userChannelPrefix+"*", householdChannelPrefix+"*", allChannel)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.listenerAlive = true

	go b.listen(ctx, b.sub)
}

func (b *Bridge) listen(ctx context.Context, sub *goredis.PubSub) {
	defer func() {
		b.mu.Lock()
		b.listenerAlive = false
		done := b.done
		b.mu.Unlock()
		close(done)
	}()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			// Fatal receive error: disable cross-instance fan-out and keep
			// serving local traffic. No reconnect here; operators see the
			// degrade through health and metrics.
			b.disable(err)
			metrics.BridgeListenerFatalErrors.Inc()
			slog.Error("Bridge listener failed, running local-only", "error", err)
			return
		}
		b.handleMessage(msg.Channel, []byte(msg.Payload))
	}
}

// handleMessage routes one inbound bus message to the local dispatcher.
// Malformed messages are skipped; the listener keeps running.
func (b *Bridge) handleMessage(channel string, payload []byte) {
	if _, err := events.Decode(payload); err != nil {
		metrics.BridgeMessagesSkippedTotal.Inc()
		slog.Warn("Skipping malformed bridge message", "channel", channel, "error", err)
		return
	}

	switch {
	case channel == allChannel:
		metrics.BridgeMessagesReceivedTotal.WithLabelValues("all").Inc()
		b.dispatcher.DeliverToAll(payload, uuid.Nil)
	case strings.HasPrefix(channel, userChannelPrefix):
		metrics.BridgeMessagesReceivedTotal.WithLabelValues("user").Inc()
		b.dispatcher.DeliverToUser(strings.TrimPrefix(channel, userChannelPrefix), payload, uuid.Nil)
	case strings.HasPrefix(channel, householdChannelPrefix):
		metrics.BridgeMessagesReceivedTotal.WithLabelValues("household").Inc()
		b.dispatcher.DeliverToHousehold(strings.TrimPrefix(channel, householdChannelPrefix), payload, uuid.Nil)
	default:
		metrics.BridgeMessagesSkippedTotal.Inc()
		slog.Warn("Skipping bridge message with unknown channel", "channel", channel)
	}
}

// Publish mirrors an already-delivered local broadcast onto the bus. Failures
// are logged and swallowed: local delivery has succeeded and must not be
// undone by a messaging-layer problem.
func (b *Bridge) Publish(ctx context.Context, channel string, wire []byte) {
	b.mu.Lock()
	client, enabled := b.client, b.enabled
	b.mu.Unlock()
	if !enabled {
		return
	}

	if err := client.Publish(ctx, channel, wire).Err(); err != nil {
		metrics.BridgePublishesTotal.WithLabelValues("error").Inc()
		slog.Warn("Bridge publish failed", "channel", channel, "error", err)
		return
	}
	metrics.BridgePublishesTotal.WithLabelValues("success").Inc()
}

// Ping verifies bus liveness for readiness checks.
func (b *Bridge) Ping(ctx context.Context) error {
	b.mu.Lock()
	client, connected := b.client, b.connected
	b.mu.Unlock()
	if !connected {
		return fmt.Errorf("bridge not connected")
	}
	return client.Ping(ctx).Err()
}

// Health returns a snapshot of the bridge's state.
func (b *Bridge) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := Health{
		Enabled:       b.enabled,
		Connected:     b.connected,
		ListenerAlive: b.listenerAlive,
	}
	if b.lastErr != nil {
		h.LastError = b.lastErr.Error()
	}
	return h
}

// Shutdown stops the listener and closes the subscription and client, each
// step best-effort: a failure in one never prevents the next.
func (b *Bridge) Shutdown(ctx context.Context) {
	b.mu.Lock()
	cancel, done, sub, client := b.cancel, b.done, b.sub, b.client
	b.enabled = false
	b.connected = false
	b.cancel, b.sub, b.client = nil, nil, nil
	b.mu.Unlock()

	metrics.BridgeEnabled.Set(0)

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("Bridge listener did not stop before shutdown deadline")
		case <-time.After(5 * time.Second):
			slog.Warn("Bridge listener did not stop within 5s")
		}
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			slog.Warn("Failed to close bridge subscription", "error", err)
		}
	}
	if client != nil {
		if err := client.Close(); err != nil {
			slog.Warn("Failed to close bridge client", "error", err)
		}
	}
}

func (b *Bridge) disable(err error) {
	b.mu.Lock()
	b.enabled = false
	b.lastErr = err
	b.mu.Unlock()
	metrics.BridgeEnabled.Set(0)
}
