package proofsvc

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRateLimitPerMinute is the per-peer ceiling spec.md §5's
// sliding-window requirement defaults to absent an explicit Config.
const DefaultRateLimitPerMinute = 60

// PeerRateLimiter holds one token-bucket limiter per peer identifier,
// each refilling at perMinute events per rolling minute. It is the
// proof-service analogue of the teacher's BanScore: a small
// deterministic policy primitive guarding a resource, not itself a
// source of truth about peer identity.
type PeerRateLimiter struct {
	mu        sync.Mutex
	perMinute int
	limiters  map[string]*rate.Limiter
}

// NewPeerRateLimiter builds a limiter allowing perMinute events per
// rolling minute per peer. perMinute <= 0 defaults to
// DefaultRateLimitPerMinute.
func NewPeerRateLimiter(perMinute int) *PeerRateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultRateLimitPerMinute
	}
	return &PeerRateLimiter{
		perMinute: perMinute,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether peerID may make one more request right now,
// consuming a token if so.
func (p *PeerRateLimiter) Allow(peerID string) bool {
	return p.limiterFor(peerID).Allow()
}

func (p *PeerRateLimiter) limiterFor(peerID string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[peerID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.perMinute)), p.perMinute)
		p.limiters[peerID] = l
	}
	return l
}

// Forget drops a peer's limiter state, e.g. once a connection closes.
func (p *PeerRateLimiter) Forget(peerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.limiters, peerID)
}
