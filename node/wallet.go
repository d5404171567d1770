package node

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Wallet is the external-collaborator boundary spec.md §1 draws around
// on-chain broadcast: the core never constructs, funds, or signs a
// transaction itself, it only hands the 79-byte payload to a Wallet and
// records whatever txid comes back.
type Wallet interface {
	Broadcast(ctx context.Context, payload []byte) (txid string, err error)
}

// DryRunWallet never touches a network. It derives a deterministic txid
// from the payload (hex of its SHA-256), which both satisfies the
// anchor-payload's requirement of a 32-byte previous-txid field and
// makes dry-run anchoring fully reproducible in tests.
type DryRunWallet struct{}

func (DryRunWallet) Broadcast(_ context.Context, payload []byte) (string, error) {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
