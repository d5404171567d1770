// Package node binds the ledger canonicalizer/tree, the bbolt store, and
// the identity key into the Store facade spec.md §6 describes as the
// "local API surface", and draws the two external-collaborator
// boundaries (Wallet, ConfirmationSource) through which all network I/O
// passes.
package node

import (
	"context"
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"commitledger.dev/crypto"
	"commitledger.dev/ledger"
	"commitledger.dev/store"

	"github.com/google/uuid"
)

// Store is the process-local facade over one data directory: one
// identity key, one bbolt database, one Merkle tree. Commit, Anchor,
// RecordAnchor, and RefreshAnchor are serialized against each other
// (spec.md §5); Get, Query, Prove, and ListAnchors are read-only and
// safe to interleave with writers and each other.
type Store struct {
	cfg           Config
	db            *store.DB
	identity      *crypto.IdentityKey
	wallet        Wallet
	confirmations ConfirmationSource
	metrics       *Metrics
	logger        *slog.Logger

	mu sync.Mutex
}

// Option customizes Open beyond what Config captures.
type Option func(*Store)

// WithWallet overrides the default DryRunWallet.
func WithWallet(w Wallet) Option {
	return func(s *Store) { s.wallet = w }
}

// WithConfirmationSource overrides the default NoConfirmationSource.
func WithConfirmationSource(c ConfirmationSource) Option {
	return func(s *Store) { s.confirmations = c }
}

// WithMetrics attaches a Metrics set created by NewMetrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger overrides the default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open validates cfg, loads or creates the identity key, opens the
// bbolt store (running its rebuild-on-reopen integrity check), and
// returns a ready-to-use Store.
func Open(cfg Config, passphrase []byte, opts ...Option) (*Store, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, ledger.NewErrorf(ledger.ErrInputValidation, "invalid config: %v", err)
	}

	identity, err := crypto.LoadOrCreateIdentityKey(keyFilePath(cfg.DataDir), passphrase)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:           cfg,
		db:            db,
		identity:      identity,
		wallet:        DryRunWallet{},
		confirmations: NoConfirmationSource{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func keyFilePath(dataDir string) string {
	return filepath.Join(dataDir, "identity.json")
}

// Close releases the underlying database handle. Closing a Store while
// a Commit/Anchor/RecordAnchor/RefreshAnchor call is in flight on
// another goroutine is a usage error (spec.md §5).
func (s *Store) Close() error {
	return s.db.Close()
}

// PublicKey returns the store's signing identity as compressed hex.
func (s *Store) PublicKey() string {
	return s.identity.PublicKeyHex()
}

// Commit validates, canonicalizes, signs, and durably appends a new
// commitment (spec.md §3, §4.1, §4.3).
func (s *Store) Commit(typ ledger.CommitmentType, payload ledger.Payload) (ledger.Commitment, error) {
	if !ledger.ValidCommitmentType(typ) {
		return ledger.Commitment{}, ledger.NewErrorf(ledger.ErrInputValidation, "unknown commitment type %q", typ)
	}
	if strings.TrimSpace(payload.Subject) == "" {
		return ledger.Commitment{}, ledger.NewError(ledger.ErrInputValidation, "payload.subject is required")
	}
	if strings.TrimSpace(payload.Content) == "" {
		return ledger.Commitment{}, ledger.NewError(ledger.ErrInputValidation, "payload.content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.db.TreeState()
	if err != nil {
		return ledger.Commitment{}, err
	}

	unsigned := ledger.Commitment{
		ID:        "commit_" + uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		TreeIndex: -1,
	}
	signed, _, err := ledger.SignCommitment(unsigned, s.identity)
	if err != nil {
		return ledger.Commitment{}, err
	}
	signed.TreeIndex = state.LeafCount

	if _, err := s.db.PutCommitment(signed); err != nil {
		return ledger.Commitment{}, err
	}

	s.logger.Info("commitment stored", "id", signed.ID, "type", signed.Type, "treeIndex", signed.TreeIndex)
	if s.metrics != nil {
		s.metrics.CommitsTotal.Inc()
		s.refreshUnanchoredGaugeLocked()
	}
	return signed, nil
}

// Get looks up a commitment by id.
func (s *Store) Get(id string) (ledger.Commitment, bool, error) {
	return s.db.GetCommitment(id)
}

// Query runs an AND-composed filtered, paginated read (spec.md §4.3).
func (s *Store) Query(filter store.QueryFilter) ([]ledger.Commitment, error) {
	return s.db.Query(filter)
}

// Count reports how many commitments match filter, ignoring pagination.
func (s *Store) Count(filter store.QueryFilter) (int, error) {
	return s.db.Count(filter)
}

// GetUnanchoredCount reports how many of the most recently committed
// leaves fall past the latest anchor's commitment count.
func (s *Store) GetUnanchoredCount() (int64, error) {
	state, err := s.db.TreeState()
	if err != nil {
		return 0, err
	}
	return s.unanchoredCountFor(state)
}

// unanchoredCountFor computes GetUnanchoredCount's result against an
// already-loaded TreeState, for callers that hold the lock and already
// have state in hand.
func (s *Store) unanchoredCountFor(state ledger.TreeState) (int64, error) {
	if state.LastAnchorIndex < 0 {
		return state.LeafCount, nil
	}
	anchor, ok, err := s.db.GetAnchor(state.LastAnchorIndex)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ledger.NewErrorf(ledger.ErrIntegrity, "store: tree_state references missing anchor %d", state.LastAnchorIndex)
	}
	return state.LeafCount - anchor.CommitmentCount, nil
}

// BuildAnchorPayload assembles the 79-byte OP_RETURN-style payload for
// the next anchor, covering every commitment currently in the tree
// (spec.md §4.4). It does not record anything; RecordAnchor does.
func (s *Store) BuildAnchorPayload() ([]byte, ledger.TreeState, error) {
	state, err := s.db.TreeState()
	if err != nil {
		return nil, state, err
	}
	unanchored, err := s.unanchoredCountFor(state)
	if err != nil {
		return nil, state, err
	}
	if unanchored == 0 {
		return nil, state, ledger.NewError(ledger.ErrInputValidation, "node: nothing to anchor: tree is empty or unchanged since the last anchor")
	}

	root, err := ledger.HashToBytes32(state.RootHash)
	if err != nil {
		return nil, state, err
	}

	var prevTxidHex string
	if state.LastAnchorIndex >= 0 {
		prev, ok, err := s.db.GetAnchor(state.LastAnchorIndex)
		if err != nil {
			return nil, state, err
		}
		if !ok {
			return nil, state, ledger.NewErrorf(ledger.ErrIntegrity, "store: tree_state references missing anchor %d", state.LastAnchorIndex)
		}
		prevTxidHex = prev.Txid
	}
	prevTxid, err := ledger.TxidToBytes32(prevTxidHex)
	if err != nil {
		return nil, state, err
	}

	payload := ledger.BuildAnchorPayload(root, uint32(state.LeafCount), prevTxid)
	return payload, state, nil
}

// Anchor builds the next anchor payload, broadcasts it through the
// configured Wallet, and records the resulting anchor (spec.md §4.4).
// It calls BuildAnchorPayload and then records the anchor the same way
// RecordAnchor does, for callers (the CLI) that don't need the payload
// itself. Root and commitment count come from the state captured when
// the payload was built.
func (s *Store) Anchor(ctx context.Context) (ledger.Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, state, err := s.BuildAnchorPayload()
	if err != nil {
		return ledger.Anchor{}, err
	}

	txid, err := s.wallet.Broadcast(ctx, payload)
	if err != nil {
		return ledger.Anchor{}, ledger.NewErrorf(ledger.ErrExternalUnavailable, "node: wallet broadcast failed: %v", err)
	}

	anchorIndex := state.LastAnchorIndex + 1
	var previousAnchor string
	if state.LastAnchorIndex >= 0 {
		prev, ok, err := s.db.GetAnchor(state.LastAnchorIndex)
		if err != nil {
			return ledger.Anchor{}, err
		}
		if ok {
			previousAnchor = prev.Txid
		}
	}

	anchor := ledger.Anchor{
		AnchorIndex:     anchorIndex,
		Txid:            txid,
		Timestamp:       time.Now().UnixMilli(),
		RootHash:        state.RootHash,
		CommitmentCount: state.LeafCount,
		PreviousAnchor:  previousAnchor,
	}
	if err := s.db.PutAnchor(anchor); err != nil {
		return ledger.Anchor{}, err
	}

	s.logger.Info("anchor recorded", "anchorIndex", anchor.AnchorIndex, "txid", anchor.Txid, "commitmentCount", anchor.CommitmentCount)
	if s.metrics != nil {
		s.metrics.AnchorsTotal.Inc()
		s.refreshUnanchoredGaugeLocked()
	}
	return anchor, nil
}

// RecordAnchor persists an anchor whose txid was obtained out of band
// (e.g. a wallet broadcast performed by a separate process). The
// anchor's root and commitment count are taken from the tree's current
// state at the time of the call.
func (s *Store) RecordAnchor(txid string) (ledger.Anchor, error) {
	if strings.TrimSpace(txid) == "" {
		return ledger.Anchor{}, ledger.NewError(ledger.ErrInputValidation, "node: txid is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.db.TreeState()
	if err != nil {
		return ledger.Anchor{}, err
	}
	unanchored, err := s.unanchoredCountFor(state)
	if err != nil {
		return ledger.Anchor{}, err
	}
	if unanchored == 0 {
		return ledger.Anchor{}, ledger.NewError(ledger.ErrInputValidation, "node: nothing to anchor: tree is empty or unchanged since the last anchor")
	}

	anchorIndex := state.LastAnchorIndex + 1
	var previousAnchor string
	if state.LastAnchorIndex >= 0 {
		prev, ok, err := s.db.GetAnchor(state.LastAnchorIndex)
		if err != nil {
			return ledger.Anchor{}, err
		}
		if ok {
			previousAnchor = prev.Txid
		}
	}

	anchor := ledger.Anchor{
		AnchorIndex:     anchorIndex,
		Txid:            txid,
		Timestamp:       time.Now().UnixMilli(),
		RootHash:        state.RootHash,
		CommitmentCount: state.LeafCount,
		PreviousAnchor:  previousAnchor,
	}
	if err := s.db.PutAnchor(anchor); err != nil {
		return ledger.Anchor{}, err
	}
	if s.metrics != nil {
		s.metrics.AnchorsTotal.Inc()
		s.refreshUnanchoredGaugeLocked()
	}
	return anchor, nil
}

// RefreshAnchor polls the configured ConfirmationSource for anchorIndex
// and, if newly confirmed, persists the observed block height.
func (s *Store) RefreshAnchor(ctx context.Context, anchorIndex int64) (ledger.Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	anchor, ok, err := s.db.GetAnchor(anchorIndex)
	if err != nil {
		return ledger.Anchor{}, err
	}
	if !ok {
		return ledger.Anchor{}, ledger.NewErrorf(ledger.ErrNotFound, "node: anchor %d not found", anchorIndex)
	}

	confirmed, height, err := s.confirmations.Confirm(ctx, anchor.Txid)
	if err != nil {
		return ledger.Anchor{}, err
	}
	if !confirmed {
		return anchor, nil
	}

	anchor.BlockHeight = &height
	if err := s.db.UpdateAnchor(anchor); err != nil {
		return ledger.Anchor{}, err
	}
	return anchor, nil
}

// PollConfirmations calls RefreshAnchor for every anchor that has not
// yet observed a block height, stopping at the first error.
func (s *Store) PollConfirmations(ctx context.Context) ([]ledger.Anchor, error) {
	anchors, err := s.db.ListAnchors()
	if err != nil {
		return nil, err
	}
	var refreshed []ledger.Anchor
	for _, a := range anchors {
		if a.BlockHeight != nil {
			continue
		}
		updated, err := s.RefreshAnchor(ctx, a.AnchorIndex)
		if err != nil {
			return refreshed, err
		}
		refreshed = append(refreshed, updated)
	}
	return refreshed, nil
}

// GetLatestAnchor returns the highest-indexed anchor, if any.
func (s *Store) GetLatestAnchor() (ledger.Anchor, bool, error) {
	return s.db.LatestAnchor()
}

// ListAnchors returns every anchor in ascending index order.
func (s *Store) ListAnchors() ([]ledger.Anchor, error) {
	return s.db.ListAnchors()
}

// Prove regenerates the inclusion proof for a stored commitment, along
// with the anchor that binds it (the earliest anchor whose
// CommitmentCount exceeds the commitment's TreeIndex, per spec.md
// §4.4's binding rule). If no such anchor exists yet the commitment is
// unanchored and ErrNotAnchored is returned.
//
// The proof is regenerated by replaying leaves into a fresh in-memory
// tree truncated to the binding anchor's CommitmentCount rather than
// read out of the live tree_nodes bucket: once the tree grows past
// that size, rightmost-duplicate placeholders above the anchor's
// boundary get overwritten by real sibling hashes, so the live bucket
// no longer reflects the tree shape the anchor actually committed to.
func (s *Store) Prove(id string) (ledger.Commitment, ledger.Proof, ledger.Anchor, error) {
	c, ok, err := s.db.GetCommitment(id)
	if err != nil {
		return ledger.Commitment{}, ledger.Proof{}, ledger.Anchor{}, err
	}
	if !ok {
		return ledger.Commitment{}, ledger.Proof{}, ledger.Anchor{}, ledger.NewErrorf(ledger.ErrNotFound, "node: commitment %q not found", id)
	}

	anchor, ok, err := s.findBindingAnchor(c.TreeIndex)
	if err != nil {
		return ledger.Commitment{}, ledger.Proof{}, ledger.Anchor{}, err
	}
	if !ok {
		return c, ledger.Proof{}, ledger.Anchor{}, ledger.NewErrorf(ledger.ErrNotAnchored, "node: commitment %q is not yet covered by any anchor", id)
	}

	nodes, root, err := s.db.RebuildNodesUpTo(anchor.CommitmentCount)
	if err != nil {
		return ledger.Commitment{}, ledger.Proof{}, ledger.Anchor{}, err
	}
	if root != anchor.RootHash {
		return ledger.Commitment{}, ledger.Proof{}, ledger.Anchor{}, ledger.NewErrorf(ledger.ErrIntegrity, "node: rebuilt root %s for anchor %d does not match recorded root %s", root, anchor.AnchorIndex, anchor.RootHash)
	}

	proof, err := ledger.GenerateProof(nodes, c.TreeIndex, anchor.CommitmentCount)
	if err != nil {
		return ledger.Commitment{}, ledger.Proof{}, ledger.Anchor{}, err
	}
	return c, proof, anchor, nil
}

// findBindingAnchor returns the earliest anchor whose CommitmentCount
// is strictly greater than treeIndex (spec.md §4.4).
func (s *Store) findBindingAnchor(treeIndex int64) (ledger.Anchor, bool, error) {
	anchors, err := s.db.ListAnchors()
	if err != nil {
		return ledger.Anchor{}, false, err
	}
	for _, a := range anchors {
		if a.CommitmentCount > treeIndex {
			return a, true, nil
		}
	}
	return ledger.Anchor{}, false, nil
}

// Verify checks a proof's inclusion path and, if publicKey is non-empty,
// also checks the commitment's signature under that key (spec.md §6's
// offline-verifiable "verify(proof, publicKey?)" surface). It requires
// no Store at all beyond the static arguments, so it is also what the
// offline CLI verifier calls.
func Verify(c ledger.Commitment, proof ledger.Proof, publicKey string) (bool, error) {
	signedImage, err := ledger.SignedImage(c, c.Signature)
	if err != nil {
		return false, err
	}
	leaf := ledger.ComputeLeafHash(signedImage)
	leafHex := hex.EncodeToString(leaf[:])
	if proof.LeafHash != leafHex {
		return false, nil
	}
	if !ledger.VerifyProof(proof.LeafHash, proof.Siblings, proof.RootHash) {
		return false, nil
	}
	if publicKey == "" {
		return true, nil
	}

	unsigned, err := ledger.UnsignedImage(c)
	if err != nil {
		return false, err
	}
	sigBytes, err := hex.DecodeString(c.Signature)
	if err != nil {
		return false, ledger.NewErrorf(ledger.ErrInputValidation, "node: bad signature hex: %v", err)
	}
	return crypto.VerifySignature(publicKey, unsigned, sigBytes)
}

// Stats summarizes the store for the CLI's status command and the
// proof service's health reporting.
type Stats struct {
	PublicKey       string
	LeafCount       int64
	RootHash        string
	AnchorCount     int64
	LastAnchorIndex int64
	UnanchoredCount int64
}

// Stats snapshots the current tree and anchor state.
func (s *Store) Stats() (Stats, error) {
	state, err := s.db.TreeState()
	if err != nil {
		return Stats{}, err
	}
	unanchored, err := s.GetUnanchoredCount()
	if err != nil {
		return Stats{}, err
	}
	anchors, err := s.db.ListAnchors()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		PublicKey:       s.PublicKey(),
		LeafCount:       state.LeafCount,
		RootHash:        state.RootHash,
		AnchorCount:     int64(len(anchors)),
		LastAnchorIndex: state.LastAnchorIndex,
		UnanchoredCount: unanchored,
	}, nil
}

func (s *Store) refreshUnanchoredGaugeLocked() {
	count, err := s.GetUnanchoredCount()
	if err != nil {
		return
	}
	s.metrics.UnanchoredCommitmentsGauge.Set(float64(count))
}
