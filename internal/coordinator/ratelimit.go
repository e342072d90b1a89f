package coordinator

import (
	"time"
)

// rateLimiter tracks per-sender chat volume in fixed windows. It lives on the
// coordination loop, so no locking.
type rateLimiter struct {
	limit   int
	window  time.Duration
	senders map[string]*senderWindow
}

type senderWindow struct {
	count       int
	windowStart time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		senders: make(map[string]*senderWindow),
	}
}

func (rl *rateLimiter) allow(senderID string) bool {
	now := time.Now()
	w, ok := rl.senders[senderID]
	if !ok {
		rl.senders[senderID] = &senderWindow{count: 1, windowStart: now}
		return true
	}
	if now.Sub(w.windowStart) >= rl.window {
		w.count = 1
		w.windowStart = now
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// forget drops a sender's window on disconnect so the map cannot grow past
// the set of live connections.
func (rl *rateLimiter) forget(senderID string) {
	delete(rl.senders, senderID)
}
