package store

import "commitledger.dev/ledger"

// Error is the store package's error type. Store failures (not-found,
// integrity, bad input) belong to the same taxonomy ledger defines for
// the tree and canonicalizer, so store reuses the type directly rather
// than duplicating the enum.
type Error = ledger.Error

const (
	ErrNotFound        = ledger.ErrNotFound
	ErrIntegrity       = ledger.ErrIntegrity
	ErrInputValidation = ledger.ErrInputValidation
	ErrInternal        = ledger.ErrInternal
)
