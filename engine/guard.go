package engine

import (
	"sync"
	"time"
)

// flightGuard is a single-flight guard keyed by content ID. A hold older
// than the TTL is treated as abandoned and can be taken over, so a
// crashed generation never locks its content out permanently.
type flightGuard struct {
	mu       sync.Mutex
	ttl      time.Duration
	inFlight map[string]time.Time
	now      func() time.Time
}

func newFlightGuard(ttl time.Duration) *flightGuard {
	return &flightGuard{
		ttl:      ttl,
		inFlight: make(map[string]time.Time),
		now:      time.Now,
	}
}

// acquire takes the hold for contentID. It reports false when another
// flight holds it and the hold has not expired.
func (g *flightGuard) acquire(contentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if held, exists := g.inFlight[contentID]; exists && now.Sub(held) < g.ttl {
		return false
	}
	g.inFlight[contentID] = now
	return true
}

// release drops the hold for contentID.
func (g *flightGuard) release(contentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, contentID)
}

// holds reports how many content IDs are currently held, expired holds
// included.
func (g *flightGuard) holds() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}
