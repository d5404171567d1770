package store

import (
	"testing"

	"commitledger.dev/ledger"

	bolt "go.etcd.io/bbolt"
)

type fakeSigner struct{ sig []byte }

func (f fakeSigner) Sign(msg []byte) ([]byte, error) { return f.sig, nil }

func makeCommitment(t *testing.T, id string, treeIndex int64, typ ledger.CommitmentType, subject string, counterparty *string, timestamp int64) ledger.Commitment {
	t.Helper()
	sig := make([]byte, 64)
	sig[0] = byte(treeIndex + 1)
	c := ledger.Commitment{
		ID:        id,
		Type:      typ,
		Payload:   ledger.Payload{Subject: subject, Content: "content-" + id, Counterparty: counterparty},
		Timestamp: timestamp,
	}
	signed, _, err := ledger.SignCommitment(c, fakeSigner{sig: sig})
	if err != nil {
		t.Fatalf("SignCommitment: %v", err)
	}
	signed.TreeIndex = treeIndex
	return signed
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutAndGetCommitmentRoundTrip(t *testing.T) {
	db := openTestDB(t)
	c := makeCommitment(t, "commit_1", 0, ledger.TypeAgreement, "code-review", nil, 100)

	root, err := db.PutCommitment(c)
	if err != nil {
		t.Fatalf("PutCommitment: %v", err)
	}
	if root != c.LeafHash {
		t.Fatalf("single-leaf root should equal leaf hash: got %s want %s", root, c.LeafHash)
	}

	got, ok, err := db.GetCommitment("commit_1")
	if err != nil || !ok {
		t.Fatalf("GetCommitment: ok=%v err=%v", ok, err)
	}
	if got.ID != c.ID || got.LeafHash != c.LeafHash || got.TreeIndex != c.TreeIndex {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, c)
	}

	state, err := db.TreeState()
	if err != nil {
		t.Fatalf("TreeState: %v", err)
	}
	if state.LeafCount != 1 || state.RootHash != root {
		t.Fatalf("unexpected tree state: %+v", state)
	}
}

func TestPutCommitmentRejectsUnsigned(t *testing.T) {
	db := openTestDB(t)
	c := ledger.Commitment{ID: "x", Type: ledger.TypeState, Payload: ledger.Payload{Subject: "s", Content: "c"}}
	if _, err := db.PutCommitment(c); err == nil {
		t.Fatalf("expected error for un-inserted commitment")
	}
}

func TestPutCommitmentRejectsDuplicateID(t *testing.T) {
	db := openTestDB(t)
	c0 := makeCommitment(t, "dup", 0, ledger.TypeState, "s", nil, 1)
	if _, err := db.PutCommitment(c0); err != nil {
		t.Fatalf("PutCommitment: %v", err)
	}
	c1 := makeCommitment(t, "dup", 1, ledger.TypeState, "s2", nil, 2)
	if _, err := db.PutCommitment(c1); ledger.CodeOf(err) != ErrIntegrity {
		t.Fatalf("expected ErrIntegrity for duplicate id, got %v", err)
	}
}

func TestQueryFiltersOrderingAndPagination(t *testing.T) {
	db := openTestDB(t)
	peer := "peerX"
	for i := int64(0); i < 5; i++ {
		typ := ledger.TypeAgreement
		if i%2 == 0 {
			typ = ledger.TypeAttestation
		}
		var cp *string
		if i == 3 {
			cp = &peer
		}
		c := makeCommitment(t, "c"+string(rune('a'+i)), i, typ, "subject-"+string(rune('a'+i)), cp, 100+i)
		if _, err := db.PutCommitment(c); err != nil {
			t.Fatalf("PutCommitment %d: %v", i, err)
		}
	}

	all, err := db.Query(QueryFilter{Limit: 100})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 commitments, got %d", len(all))
	}
	for i := 0; i+1 < len(all); i++ {
		if all[i].Timestamp < all[i+1].Timestamp {
			t.Fatalf("expected descending timestamp order, got %v then %v", all[i].Timestamp, all[i+1].Timestamp)
		}
	}

	attestations, err := db.Query(QueryFilter{Type: ledger.TypeAttestation, Limit: 100})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(attestations) != 3 {
		t.Fatalf("expected 3 attestations, got %d", len(attestations))
	}

	byPeer, err := db.Query(QueryFilter{Counterparty: peer, Limit: 100})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byPeer) != 1 || byPeer[0].TreeIndex != 3 {
		t.Fatalf("expected single counterparty match at tree index 3, got %+v", byPeer)
	}

	page, err := db.Query(QueryFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 results for paginated query, got %d", len(page))
	}
	if page[0].TreeIndex != all[1].TreeIndex {
		t.Fatalf("pagination offset mismatch")
	}
}

func TestQueryRejectsOverLimit(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Query(QueryFilter{Limit: MaxQueryLimit + 1}); ledger.CodeOf(err) != ErrInputValidation {
		t.Fatalf("expected ErrInputValidation for over-limit query, got %v", err)
	}
}

func TestPutAnchorAndDuplicateTxid(t *testing.T) {
	db := openTestDB(t)
	a := ledger.Anchor{AnchorIndex: 0, Txid: "tx1", Timestamp: 1, RootHash: "r1", CommitmentCount: 1}
	if err := db.PutAnchor(a); err != nil {
		t.Fatalf("PutAnchor: %v", err)
	}
	got, ok, err := db.GetAnchorByTxid("tx1")
	if err != nil || !ok || got.RootHash != "r1" {
		t.Fatalf("GetAnchorByTxid: ok=%v err=%v got=%+v", ok, err, got)
	}

	dup := ledger.Anchor{AnchorIndex: 1, Txid: "tx1", Timestamp: 2, RootHash: "r2", CommitmentCount: 2}
	if err := db.PutAnchor(dup); ledger.CodeOf(err) != ErrIntegrity {
		t.Fatalf("expected ErrIntegrity for duplicate txid, got %v", err)
	}

	state, err := db.TreeState()
	if err != nil {
		t.Fatalf("TreeState: %v", err)
	}
	if state.LastAnchorIndex != 0 {
		t.Fatalf("expected LastAnchorIndex 0, got %d", state.LastAnchorIndex)
	}
}

func TestListAndLatestAnchors(t *testing.T) {
	db := openTestDB(t)
	for i := int64(0); i < 3; i++ {
		a := ledger.Anchor{AnchorIndex: i, Txid: "tx" + string(rune('a'+i)), Timestamp: i, RootHash: "r", CommitmentCount: i + 1}
		if err := db.PutAnchor(a); err != nil {
			t.Fatalf("PutAnchor %d: %v", i, err)
		}
	}
	list, err := db.ListAnchors()
	if err != nil || len(list) != 3 {
		t.Fatalf("ListAnchors: len=%d err=%v", len(list), err)
	}
	latest, ok, err := db.LatestAnchor()
	if err != nil || !ok || latest.AnchorIndex != 2 {
		t.Fatalf("LatestAnchor: ok=%v err=%v got=%+v", ok, err, latest)
	}
}

func TestRebuildOnReopenDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := makeCommitment(t, "c0", 0, ledger.TypeState, "s", nil, 1)
	if _, err := db.PutCommitment(c); err != nil {
		t.Fatalf("PutCommitment: %v", err)
	}
	if err := db.db.Update(func(tx *bolt.Tx) error {
		state, err := getTreeStateTx(tx)
		if err != nil {
			return err
		}
		state.RootHash = "0000000000000000000000000000000000000000000000000000000000000000"
		return putTreeStateTx(tx, state)
	}); err != nil {
		t.Fatalf("corrupt tree_state: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = Open(dir)
	if ledger.CodeOf(err) != ErrIntegrity {
		t.Fatalf("expected ErrIntegrity on reopen after corruption, got %v", err)
	}
}

func TestGetNodeServesLedgerNodeSource(t *testing.T) {
	db := openTestDB(t)
	c0 := makeCommitment(t, "c0", 0, ledger.TypeState, "s", nil, 1)
	c1 := makeCommitment(t, "c1", 1, ledger.TypeState, "s", nil, 2)
	if _, err := db.PutCommitment(c0); err != nil {
		t.Fatalf("PutCommitment: %v", err)
	}
	root, err := db.PutCommitment(c1)
	if err != nil {
		t.Fatalf("PutCommitment: %v", err)
	}

	proof, err := ledger.GenerateProof(db, 0, 2)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	if proof.RootHash != root {
		t.Fatalf("proof root mismatch: got %s want %s", proof.RootHash, root)
	}
	if !ledger.VerifyProof(proof.LeafHash, proof.Siblings, root) {
		t.Fatalf("proof failed to verify")
	}
}

func TestConfigGetSet(t *testing.T) {
	db := openTestDB(t)
	if _, ok, err := db.GetConfig("missing"); err != nil || ok {
		t.Fatalf("expected missing key: ok=%v err=%v", ok, err)
	}
	if err := db.SetConfig("strategy", "default"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	v, ok, err := db.GetConfig("strategy")
	if err != nil || !ok || v != "default" {
		t.Fatalf("GetConfig: v=%q ok=%v err=%v", v, ok, err)
	}
}
