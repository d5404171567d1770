package proofsvc

import "time"

const (
	// SuspendThreshold is the score at which a peer is temporarily
	// refused service regardless of its rate-limit bucket having
	// refilled — a second line of defense against a peer that sits
	// right at the per-minute ceiling indefinitely.
	SuspendThreshold = 100

	// violationPenalty is added each time a peer is rejected for
	// exceeding its rate limit.
	violationPenalty = 20

	// scoreDecayPerMinute mirrors the linear time-decay the teacher
	// applies to connection ban scores, reskinned to proof-service
	// rate-limit violations instead of P2P protocol violations.
	scoreDecayPerMinute = 5
)

// PeerScore tracks a peer's accumulated rate-limit violations with
// linear time decay, the same shape as the teacher's connection-level
// BanScore but scoped to repeated rate-limited PROOF_REQUEST rejections
// rather than malformed wire frames.
type PeerScore struct {
	score       int
	lastUpdated time.Time
}

// RecordViolation adds violationPenalty and returns the updated score.
func (p *PeerScore) RecordViolation(now time.Time) int {
	p.decayTo(now)
	p.score += violationPenalty
	return p.score
}

// Score returns the current, decay-adjusted score without mutating it
// beyond applying decay.
func (p *PeerScore) Score(now time.Time) int {
	p.decayTo(now)
	return p.score
}

// Suspended reports whether the peer has crossed SuspendThreshold.
func (p *PeerScore) Suspended(now time.Time) bool {
	return p.Score(now) >= SuspendThreshold
}

func (p *PeerScore) decayTo(now time.Time) {
	if p.lastUpdated.IsZero() {
		p.lastUpdated = now
		return
	}
	if now.Before(p.lastUpdated) {
		p.lastUpdated = now
		return
	}
	minutes := int(now.Sub(p.lastUpdated) / time.Minute)
	if minutes <= 0 {
		return
	}
	p.score -= minutes * scoreDecayPerMinute
	if p.score < 0 {
		p.score = 0
	}
	p.lastUpdated = now
}
