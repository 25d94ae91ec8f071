// Package redis constructs the shared go-redis client.
//
// The client carries two hooks: MetricsHook (operation counters and latency)
// and CircuitBreakerHook (fail-fast when Redis is down or slow). The bridge in
// internal/realtime is the only consumer.
package redis
