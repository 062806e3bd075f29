package auth

import (
	"sync"
	"time"
)

// RateLimiter is an in-memory sliding-window limiter keyed by client ID.
// Window state is per-process; replicas each enforce the limit independently.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	// lastSeen drives cleanup of idle clients
	lastSeen map[string]time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		windows:  make(map[string][]time.Time),
		lastSeen: make(map[string]time.Time),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow records a request for clientID and reports whether it fits within
// limitPerMinute over the trailing minute.
func (rl *RateLimiter) Allow(clientID string, limitPerMinute int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-time.Minute)

	recent := rl.windows[clientID][:0]
	for _, ts := range rl.windows[clientID] {
		if ts.After(windowStart) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= limitPerMinute {
		rl.windows[clientID] = recent
		rl.lastSeen[clientID] = now
		return false
	}

	rl.windows[clientID] = append(recent, now)
	rl.lastSeen[clientID] = now
	return true
}

// Stats returns the number of tracked clients and their request counts
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	counts := make(map[string]int, len(rl.windows))
	for clientID, reqs := range rl.windows {
		counts[clientID] = len(reqs)
	}

	return map[string]interface{}{
		"total_clients": len(rl.windows),
		"request_counts": counts,
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.cleanup(time.Now().Add(-5 * time.Minute))
	}
}

func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for clientID, seen := range rl.lastSeen {
		if seen.Before(cutoff) {
			delete(rl.windows, clientID)
			delete(rl.lastSeen, clientID)
		}
	}
}
