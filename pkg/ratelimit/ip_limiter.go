// Package ratelimit implements the two sliding-window limiter variants used
// ahead of and behind authentication.
package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// bucket holds the timestamps of recent events for one key, pruned to the
// window on every Allow call.
type bucket struct {
	events []time.Time
}

// IPLimiter is the pre-auth limiter: keyed by remote address, shared across
// every connection attempt from that address.
type IPLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	max         int
	window      time.Duration
	stopCleanup chan struct{}
}

// NewIPLimiter starts a limiter allowing max events per window, with a
// background sweep every 60s dropping empty buckets.
func NewIPLimiter(max int, window time.Duration) *IPLimiter {
	l := &IPLimiter{
		buckets:     make(map[string]*bucket),
		max:         max,
		window:      window,
		stopCleanup: make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether key may proceed now, recording the attempt either
// way is irrelevant here: a rejected attempt is not counted against the
// window, matching the "too many auth attempts" contract (retrying after
// the window clears works immediately, it does not compound).
func (l *IPLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	b.events = pruneWindow(b.events, now, l.window)

	if len(b.events) >= l.max {
		return false
	}
	b.events = append(b.events, now)
	return true
}

// Reset clears a key's bucket so its earlier attempts no longer count
// against it.
func (l *IPLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (l *IPLimiter) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *IPLimiter) cleanup() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		b.events = pruneWindow(b.events, now, l.window)
		if len(b.events) == 0 {
			delete(l.buckets, key)
		}
	}
}

// Stop halts the background sweep; used on graceful shutdown.
func (l *IPLimiter) Stop() {
	close(l.stopCleanup)
}

// pruneWindow drops timestamps older than window before now, preserving
// order (oldest first) for a cheap scan.
func pruneWindow(events []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return events
	}
	return append(events[:0], events[i:]...)
}

// ExtractIP picks the caller's address, honoring X-Forwarded-For / X-Real-IP
// only when trustProxy is set — otherwise the socket address is
// authoritative, since a client could otherwise forge those headers to
// evade the pre-auth limiter entirely.
func ExtractIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			parts := strings.Split(fwd, ",")
			return strings.TrimSpace(parts[0])
		}
		if real := r.Header.Get("X-Real-IP"); real != "" {
			return strings.TrimSpace(real)
		}
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
