package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CommitmentType is the closed set of commitment kinds (spec.md §3). It
// carries no semantics beyond query filtering.
type CommitmentType string

const (
	TypeAgreement   CommitmentType = "agreement"
	TypeAttestation CommitmentType = "attestation"
	TypeState       CommitmentType = "state"
	TypeCustom      CommitmentType = "custom"
)

func ValidCommitmentType(t CommitmentType) bool {
	switch t {
	case TypeAgreement, TypeAttestation, TypeState, TypeCustom:
		return true
	default:
		return false
	}
}

// Payload is the statement content of a commitment.
type Payload struct {
	Subject      string
	Content      string
	Counterparty *string
	Metadata     map[string]Value
}

// Commitment is the immutable record defined in spec.md §3.
type Commitment struct {
	ID        string
	Type      CommitmentType
	Payload   Payload
	Timestamp int64 // milliseconds since epoch
	Signature string // hex; empty until signed

	// LeafHash and TreeIndex are populated exactly when the commitment has
	// been inserted into the tree and persisted (spec.md §3 invariant).
	// TreeIndex of -1 means "not yet inserted".
	LeafHash  string
	TreeIndex int64
}

// Inserted reports whether this commitment has been appended to the tree.
func (c Commitment) Inserted() bool {
	return c.TreeIndex >= 0 && c.LeafHash != ""
}

func payloadValue(p Payload) (Value, error) {
	obj := map[string]Value{
		"subject": NewString(p.Subject),
		"content": NewString(p.Content),
	}
	if p.Counterparty != nil {
		obj["counterparty"] = NewString(*p.Counterparty)
	}
	if p.Metadata != nil {
		obj["metadata"] = NewObject(p.Metadata)
	}
	return NewObject(obj), nil
}

// canonicalValue builds the fixed-shape commitment object with the given
// signature string substituted in (empty for the unsigned image, hex for
// the signed image).
func canonicalValue(c Commitment, signatureHex string) (Value, error) {
	payloadVal, err := payloadValue(c.Payload)
	if err != nil {
		return Value{}, err
	}
	obj := map[string]Value{
		"id":        NewString(c.ID),
		"payload":   payloadVal,
		"signature": NewString(signatureHex),
		"timestamp": NewNumberFromInt64(c.Timestamp),
		"type":      NewString(string(c.Type)),
	}
	return NewObject(obj), nil
}

// UnsignedImage is the canonical image with signature forced to the empty
// string — the exact bytes signed with the identity key.
func UnsignedImage(c Commitment) ([]byte, error) {
	v, err := canonicalValue(c, "")
	if err != nil {
		return nil, err
	}
	return v.CanonicalBytes()
}

// SignedImage is the canonical image with signature set to sigHex — its
// SHA-256 (domain-separated) is the leaf hash.
func SignedImage(c Commitment, sigHex string) ([]byte, error) {
	v, err := canonicalValue(c, sigHex)
	if err != nil {
		return nil, err
	}
	return v.CanonicalBytes()
}

const (
	domainLeaf     byte = 0x00
	domainInternal byte = 0x01
)

// ComputeLeafHash hashes the signed canonical image with the leaf domain
// separation prefix.
func ComputeLeafHash(signedImage []byte) [32]byte {
	buf := make([]byte, 0, 1+len(signedImage))
	buf = append(buf, domainLeaf)
	buf = append(buf, signedImage...)
	return sha256.Sum256(buf)
}

// InternalHash computes the domain-separated parent hash of two child hex
// hashes. Order matters: InternalHash(l, r) != InternalHash(r, l).
func InternalHash(leftHex, rightHex string) (string, error) {
	l, err := hex.DecodeString(leftHex)
	if err != nil || len(l) != 32 {
		return "", fmt.Errorf("ledger: invalid left hash %q", leftHex)
	}
	r, err := hex.DecodeString(rightHex)
	if err != nil || len(r) != 32 {
		return "", fmt.Errorf("ledger: invalid right hash %q", rightHex)
	}
	buf := make([]byte, 0, 1+32+32)
	buf = append(buf, domainInternal)
	buf = append(buf, l...)
	buf = append(buf, r...)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// SignCommitment signs the unsigned canonical image with signer, fills in
// Signature and LeafHash (TreeIndex is left to the caller — it is only
// known once the tree has accepted the leaf), and returns the updated
// commitment plus its leaf hash hex.
func SignCommitment(c Commitment, signer interface {
	Sign(msg []byte) ([]byte, error)
}) (Commitment, string, error) {
	unsigned, err := UnsignedImage(c)
	if err != nil {
		return Commitment{}, "", err
	}
	sig, err := signer.Sign(unsigned)
	if err != nil {
		return Commitment{}, "", NewErrorf(ErrInternal, "sign commitment: %v", err)
	}
	sigHex := hex.EncodeToString(sig)
	c.Signature = sigHex

	signed, err := SignedImage(c, sigHex)
	if err != nil {
		return Commitment{}, "", err
	}
	leaf := ComputeLeafHash(signed)
	leafHex := hex.EncodeToString(leaf[:])
	c.LeafHash = leafHex
	return c, leafHex, nil
}
