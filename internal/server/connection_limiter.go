package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// GlobalConnectionLimiter limits total concurrent connections per instance.
// Uses atomic operations for lock-free counting.
type GlobalConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

// NewGlobalConnectionLimiter creates a limiter with the specified maximum connections.
func NewGlobalConnectionLimiter(max int64) *GlobalConnectionLimiter {
	return &GlobalConnectionLimiter{max: max}
}

// Acquire attempts to acquire a connection slot.
// Returns true if successful, false if at capacity.
func (l *GlobalConnectionLimiter) Acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release releases a connection slot.
func (l *GlobalConnectionLimiter) Release() {
	l.current.Add(-1)
}

// Current returns the current number of connections.
func (l *GlobalConnectionLimiter) Current() int64 {
	return l.current.Load()
}

// UserConnectionLimiter limits concurrent connections per user. A runaway
// client opening sockets in a loop exhausts its own budget, not the instance.
type UserConnectionLimiter struct {
	mu     sync.RWMutex
	users  map[string]int
	maxPer int
}

// NewUserConnectionLimiter creates a limiter with the specified per-user maximum.
func NewUserConnectionLimiter(maxPer int) *UserConnectionLimiter {
	return &UserConnectionLimiter{
		users:  make(map[string]int),
		maxPer: maxPer,
	}
}

// Acquire attempts to acquire a connection slot for the given user.
func (l *UserConnectionLimiter) Acquire(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.users[userID] >= l.maxPer {
		return false
	}
	l.users[userID]++
	return true
}

// Release releases a connection slot for the given user.
func (l *UserConnectionLimiter) Release(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.users[userID]; count > 0 {
		l.users[userID] = count - 1
		if l.users[userID] == 0 {
			delete(l.users, userID)
		}
	}
}

// Count returns the current connection count for the given user.
func (l *UserConnectionLimiter) Count(userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.users[userID]
}

// ConnectionRateLimiter limits the rate of new connections per IP.
// Uses token bucket algorithm via golang.org/x/time/rate.
type ConnectionRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewConnectionRateLimiter creates a rate limiter with the specified
// sustained connections per second and burst size.
func NewConnectionRateLimiter(connectionsPerSecond float64, burst int) *ConnectionRateLimiter {
	return &ConnectionRateLimiter{
		limiters:  make(map[string]*rateLimiterEntry),
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		cleanupAt: time.Now().Add(5 * time.Minute),
	}
}

// Allow checks if a new connection from the given IP should be allowed.
func (l *ConnectionRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Now().After(l.cleanupAt) {
		l.cleanup()
		l.cleanupAt = time.Now().Add(5 * time.Minute)
	}

	entry, exists := l.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{
			limiter:  rate.NewLimiter(l.rate, l.burst),
			lastSeen: time.Now(),
		}
		l.limiters[ip] = entry
	}

	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// cleanup removes limiters that haven't been used in 10 minutes.
// Must be called with mu held.
func (l *ConnectionRateLimiter) cleanup() {
	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

// ConnectionLimits combines the three limiters.
type ConnectionLimits struct {
	global  *GlobalConnectionLimiter
	perUser *UserConnectionLimiter
	rate    *ConnectionRateLimiter
}

// NewConnectionLimits creates a combined connection limiter.
func NewConnectionLimits(globalMax int64, perUserMax int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		global:  NewGlobalConnectionLimiter(globalMax),
		perUser: NewUserConnectionLimiter(perUserMax),
		rate:    NewConnectionRateLimiter(connectionsPerSecond, burst),
	}
}

// LimitReason describes why a connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal  LimitReason = "global_limit"
	LimitReasonPerUser LimitReason = "per_user_limit"
	LimitReasonRate    LimitReason = "rate_limit"
)

// Acquire attempts to acquire all three limits for the given IP and user.
// Returns true and empty reason if successful.
func (l *ConnectionLimits) Acquire(ip, userID string) (bool, LimitReason) {
	if !l.rate.Allow(ip) {
		return false, LimitReasonRate
	}

	if !l.global.Acquire() {
		return false, LimitReasonGlobal
	}

	if !l.perUser.Acquire(userID) {
		l.global.Release() // Rollback global
		return false, LimitReasonPerUser
	}

	return true, ""
}

// Release releases all limits for the given user.
func (l *ConnectionLimits) Release(userID string) {
	l.perUser.Release(userID)
	l.global.Release()
}

// Global returns the global connection limiter.
func (l *ConnectionLimits) Global() *GlobalConnectionLimiter {
	return l.global
}

// PerUser returns the per-user connection limiter.
func (l *ConnectionLimits) PerUser() *UserConnectionLimiter {
	return l.perUser
}
