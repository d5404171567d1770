// Package proofsvc implements the proof request/response protocol that
// sits on top of a node.Store: message grammar, per-peer rate limiting,
// and handler dispatch (spec.md §6). It owns no transport of its own —
// callers frame proofsvc messages over whatever connection they have
// using WriteFrame/ReadFrame and DecodeMessage.
package proofsvc

import "commitledger.dev/ledger"

// Kind tags the five proof-protocol message variants.
type Kind string

const (
	KindProofRequest  Kind = "PROOF_REQUEST"
	KindProofResponse Kind = "PROOF_RESPONSE"
	KindProofPush     Kind = "PROOF_PUSH"
	KindProofAck      Kind = "PROOF_ACK"
	KindProofError    Kind = "PROOF_ERROR"
)

// ErrorCode enumerates the closed set of proof-protocol error codes
// (spec.md §6), distinct from ledger.ErrorCode because UNAUTHORIZED has
// no analogue in the core's error taxonomy.
type ErrorCode string

const (
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeNotAnchored    ErrorCode = "NOT_ANCHORED"
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeRateLimited    ErrorCode = "RATE_LIMITED"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// QuerySpec mirrors store.QueryFilter's fields at the wire level so a
// request can carry a query without importing the store package's
// internal type.
type QuerySpec struct {
	Type         string `json:"type,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	Since        int64  `json:"since,omitempty"`
	Until        int64  `json:"until,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// RequestOptions are the modifiers spec.md §6 defines for PROOF_REQUEST.
type RequestOptions struct {
	RequireAnchored  bool `json:"requireAnchored,omitempty"`
	MinConfirmations int  `json:"minConfirmations,omitempty"`
	IncludePublicKey bool `json:"includePublicKey,omitempty"`
}

// ProofRequest asks for a proof either by commitment id or by query. A
// well-formed request sets exactly one of CommitmentID or Query.
type ProofRequest struct {
	Kind         Kind            `json:"kind"`
	RequestID    string          `json:"requestId"`
	CommitmentID string          `json:"commitmentId,omitempty"`
	Query        *QuerySpec      `json:"query,omitempty"`
	Options      *RequestOptions `json:"options,omitempty"`
}

// ProofEntry pairs one commitment with its inclusion proof and binding
// anchor, the unit PROOF_RESPONSE and PROOF_PUSH carry.
type ProofEntry struct {
	Commitment ledger.Commitment `json:"commitment"`
	Proof      ledger.Proof      `json:"proof"`
	Anchor     ledger.Anchor     `json:"anchor"`
}

// ProofResponse answers a ProofRequest.
type ProofResponse struct {
	Kind      Kind         `json:"kind"`
	RequestID string       `json:"requestId"`
	Proofs    []ProofEntry `json:"proofs"`
	PublicKey string       `json:"publicKey,omitempty"`
	Total     int          `json:"total"`
}

// ProofPush unilaterally delivers a proof to a peer, e.g. to notify a
// counterparty that a commitment naming them has been anchored.
type ProofPush struct {
	Kind      Kind       `json:"kind"`
	PushID    string     `json:"pushId"`
	Proof     ProofEntry `json:"proof"`
	PublicKey string     `json:"publicKey"`
	Reason    string     `json:"reason,omitempty"`
}

// ProofAck answers a ProofPush.
type ProofAck struct {
	Kind     Kind   `json:"kind"`
	PushID   string `json:"pushId"`
	Accepted bool   `json:"accepted"`
	Verified *bool  `json:"verified,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ProofErrorMsg reports a protocol-level failure against either a
// request or a push.
type ProofErrorMsg struct {
	Kind      Kind      `json:"kind"`
	RequestID string    `json:"requestId,omitempty"`
	PushID    string    `json:"pushId,omitempty"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
}
