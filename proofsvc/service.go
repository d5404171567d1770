package proofsvc

import (
	"log/slog"
	"sync"
	"time"

	"commitledger.dev/ledger"
	"commitledger.dev/node"
	"commitledger.dev/store"
)

// Config tunes a Service beyond what it inherits from the underlying
// node.Store.
type Config struct {
	// RateLimitPerMinute is the per-peer request ceiling. 0 uses
	// DefaultRateLimitPerMinute.
	RateLimitPerMinute int

	// MinConfirmations is the default confirmation threshold applied to
	// a PROOF_REQUEST when the request itself doesn't override it with
	// Options.MinConfirmations. minConfirmations is enforced here rather
	// than in node.Store (spec.md §9's Open Question, resolved in favor
	// of the proof-service boundary). Any value > 0 only requires that
	// the binding anchor has a recorded block height; the number of
	// confirmations is not computed or compared against the value.
	MinConfirmations int
}

// Service dispatches proof-protocol messages against one node.Store,
// applying per-peer rate limiting before ever touching the store
// (spec.md §6: "the handler applies per-peer rate limiting before
// invoking the core").
type Service struct {
	store   *node.Store
	cfg     Config
	limiter *PeerRateLimiter
	metrics *node.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	scores map[string]*PeerScore
}

// NewService wires a Service around store. metrics may be nil.
func NewService(st *node.Store, cfg Config, metrics *node.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		cfg:     cfg,
		limiter: NewPeerRateLimiter(cfg.RateLimitPerMinute),
		metrics: metrics,
		logger:  logger,
		scores:  make(map[string]*PeerScore),
	}
}

func (s *Service) scoreFor(peerID string) *PeerScore {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scores[peerID]
	if !ok {
		sc = &PeerScore{}
		s.scores[peerID] = sc
	}
	return sc
}

// HandleRequest answers one PROOF_REQUEST from peerID, enforcing rate
// limiting and the request's (or the Service's default)
// minConfirmations threshold before returning results.
func (s *Service) HandleRequest(peerID string, req ProofRequest) any {
	now := time.Now()
	score := s.scoreFor(peerID)
	if score.Suspended(now) {
		return newErrorFor(req.RequestID, "", CodeRateLimited, "peer suspended for repeated rate-limit violations")
	}
	if !s.limiter.Allow(peerID) {
		score.RecordViolation(now)
		if s.metrics != nil {
			s.metrics.ProofRateLimitedTotal.Inc()
		}
		return newErrorFor(req.RequestID, "", CodeRateLimited, "rate limit exceeded")
	}

	if s.metrics != nil {
		s.metrics.ProofRequestsTotal.Inc()
	}

	minConf := s.cfg.MinConfirmations
	opts := req.Options
	if opts != nil && opts.MinConfirmations > 0 {
		minConf = opts.MinConfirmations
	}

	switch {
	case req.CommitmentID != "":
		return s.answerByID(req, minConf)
	case req.Query != nil:
		return s.answerByQuery(req, minConf)
	default:
		return newErrorFor(req.RequestID, "", CodeInvalidRequest, "request must set commitmentId or query")
	}
}

func (s *Service) answerByID(req ProofRequest, minConfirmations int) any {
	c, proof, anchor, err := s.store.Prove(req.CommitmentID)
	if ledger.CodeOf(err) == ledger.ErrNotFound {
		return newErrorFor(req.RequestID, "", CodeNotFound, err.Error())
	}
	if ledger.CodeOf(err) == ledger.ErrNotAnchored {
		if req.Options != nil && req.Options.RequireAnchored {
			return newErrorFor(req.RequestID, "", CodeNotAnchored, err.Error())
		}
		unanchored, _, getErr := s.store.Get(req.CommitmentID)
		if getErr != nil {
			return newErrorFor(req.RequestID, "", CodeInternal, getErr.Error())
		}
		return s.respond(req, []ProofEntry{{Commitment: unanchored}})
	}
	if err != nil {
		return newErrorFor(req.RequestID, "", CodeInternal, err.Error())
	}
	if !s.meetsConfirmations(anchor, minConfirmations) {
		return newErrorFor(req.RequestID, "", CodeNotAnchored, "anchor has not reached the requested confirmation depth")
	}
	return s.respond(req, []ProofEntry{{Commitment: c, Proof: proof, Anchor: anchor}})
}

func (s *Service) answerByQuery(req ProofRequest, minConfirmations int) any {
	q := req.Query
	if q.Limit <= 0 || q.Limit > store.MaxQueryLimit {
		return newErrorFor(req.RequestID, "", CodeInvalidRequest, "query.limit must be in [1,100]")
	}

	filter := store.QueryFilter{
		Type:         ledger.CommitmentType(q.Type),
		Subject:      q.Subject,
		Counterparty: q.Counterparty,
		Since:        q.Since,
		Until:        q.Until,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}
	commitments, err := s.store.Query(filter)
	if err != nil {
		return newErrorFor(req.RequestID, "", CodeInvalidRequest, err.Error())
	}

	requireAnchored := req.Options != nil && req.Options.RequireAnchored
	entries := make([]ProofEntry, 0, len(commitments))
	for _, c := range commitments {
		proven, proof, anchor, err := s.store.Prove(c.ID)
		switch {
		case err == nil:
			if !s.meetsConfirmations(anchor, minConfirmations) {
				continue
			}
			entries = append(entries, ProofEntry{Commitment: proven, Proof: proof, Anchor: anchor})
		case ledger.CodeOf(err) == ledger.ErrNotAnchored:
			if requireAnchored {
				continue
			}
			entries = append(entries, ProofEntry{Commitment: c})
		default:
			return newErrorFor(req.RequestID, "", CodeInternal, err.Error())
		}
	}
	return s.respond(req, entries)
}

// meetsConfirmations treats any threshold > 0 as "the anchor has a
// recorded block height"; it does not count confirmations.
func (s *Service) meetsConfirmations(anchor ledger.Anchor, minConfirmations int) bool {
	if minConfirmations <= 0 {
		return true
	}
	return anchor.BlockHeight != nil
}

func (s *Service) respond(req ProofRequest, entries []ProofEntry) *ProofResponse {
	resp := &ProofResponse{
		Kind:      KindProofResponse,
		RequestID: req.RequestID,
		Proofs:    entries,
		Total:     len(entries),
	}
	if req.Options != nil && req.Options.IncludePublicKey {
		resp.PublicKey = s.store.PublicKey()
	}
	return resp
}

// HandlePush verifies an incoming PROOF_PUSH against the pusher's
// claimed public key and acknowledges it. It does not persist the
// pushed commitment: PROOF_PUSH is a notification, not a write path
// into this store's own tree.
func (s *Service) HandlePush(push ProofPush) *ProofAck {
	ok, err := node.Verify(push.Proof.Commitment, push.Proof.Proof, push.PublicKey)
	if err != nil {
		return &ProofAck{Kind: KindProofAck, PushID: push.PushID, Accepted: false, Error: err.Error()}
	}
	verified := ok
	return &ProofAck{Kind: KindProofAck, PushID: push.PushID, Accepted: ok, Verified: &verified}
}

func newErrorFor(requestID, pushID string, code ErrorCode, message string) *ProofErrorMsg {
	return &ProofErrorMsg{Kind: KindProofError, RequestID: requestID, PushID: pushID, Code: code, Message: message}
}
