package responder

import (
	"net/netip"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"
)

// peerLimiter applies a token-bucket limit per source IP. Peers are keyed by
// an xxhash of the address so the table stores fixed-size keys regardless of
// address family.
type peerLimiter struct {
	mu    sync.Mutex
	peers map[uint64]*peerEntry
	limit rate.Limit
	burst int
}

type peerEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newPeerLimiter allows count requests per window from each peer, with a
// burst of count.
func newPeerLimiter(count int, window time.Duration) *peerLimiter {
	return &peerLimiter{
		peers: make(map[uint64]*peerEntry),
		limit: rate.Limit(float64(count) / window.Seconds()),
		burst: count,
	}
}

// allow reports whether a request from addr fits the peer's budget.
func (l *peerLimiter) allow(addr netip.Addr) bool {
	key := xxhash.Sum64String(addr.String())

	l.mu.Lock()
	entry, found := l.peers[key]
	if !found {
		entry = &peerEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.peers[key] = entry
	}
	entry.lastSeen = time.Now()
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// sweep drops peers idle longer than maxIdle so the table cannot grow
// without bound under address-spoofed floods.
func (l *peerLimiter) sweep(maxIdle time.Duration) {
	now := time.Now()

	l.mu.Lock()
	for key, entry := range l.peers {
		if now.Sub(entry.lastSeen) > maxIdle {
			delete(l.peers, key)
		}
	}
	l.mu.Unlock()
}
