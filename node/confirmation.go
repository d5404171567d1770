package node

import (
	"context"

	"commitledger.dev/ledger"
)

// ConfirmationSource is the external-collaborator boundary around
// block-explorer lookups: given a txid, report whether it has
// confirmed and at what height. RefreshAnchor is the only caller.
type ConfirmationSource interface {
	Confirm(ctx context.Context, txid string) (confirmed bool, height uint64, err error)
}

// NoConfirmationSource is used when a Store is opened without a real
// block-explorer collaborator configured. RefreshAnchor against it
// always fails with ErrExternalUnavailable rather than silently
// reporting unconfirmed, so callers can tell "not wired up" apart from
// "checked, still pending".
type NoConfirmationSource struct{}

func (NoConfirmationSource) Confirm(_ context.Context, _ string) (bool, uint64, error) {
	return false, 0, ledger.NewError(ledger.ErrExternalUnavailable, "node: no confirmation source configured")
}
