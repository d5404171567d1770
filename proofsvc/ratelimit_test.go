package proofsvc

import "testing"

func TestPeerRateLimiterEnforcesPerPeerCeiling(t *testing.T) {
	l := NewPeerRateLimiter(2)

	if !l.Allow("peer-a") {
		t.Fatalf("expected first request from peer-a to be allowed")
	}
	if !l.Allow("peer-a") {
		t.Fatalf("expected second request from peer-a to be allowed")
	}
	if l.Allow("peer-a") {
		t.Fatalf("expected third request from peer-a within the burst to be rejected")
	}
}

func TestPeerRateLimiterTracksPeersIndependently(t *testing.T) {
	l := NewPeerRateLimiter(1)
	if !l.Allow("peer-a") {
		t.Fatalf("expected peer-a's first request to be allowed")
	}
	if !l.Allow("peer-b") {
		t.Fatalf("expected peer-b's first request to be allowed independently of peer-a")
	}
}

func TestPeerRateLimiterForgetResetsState(t *testing.T) {
	l := NewPeerRateLimiter(1)
	l.Allow("peer-a")
	if l.Allow("peer-a") {
		t.Fatalf("expected peer-a to be rate limited before Forget")
	}
	l.Forget("peer-a")
	if !l.Allow("peer-a") {
		t.Fatalf("expected peer-a's limiter to reset after Forget")
	}
}

func TestNewPeerRateLimiterDefaultsNonPositive(t *testing.T) {
	l := NewPeerRateLimiter(0)
	if l.perMinute != DefaultRateLimitPerMinute {
		t.Fatalf("expected default rate of %d, got %d", DefaultRateLimitPerMinute, l.perMinute)
	}
}
