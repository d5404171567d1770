package store

import (
	"bytes"
	"encoding/json"
	"strings"

	"commitledger.dev/ledger"

	bolt "go.etcd.io/bbolt"
)

// PutCommitment writes a signed, inserted commitment (TreeIndex and
// LeafHash already set) along with every tree-node row on the path to
// the root and the advanced tree state, all within one transaction
// (spec.md §4.3's atomicity rule).
func (d *DB) PutCommitment(c ledger.Commitment) (newRoot string, err error) {
	if !c.Inserted() {
		return "", ledger.NewError(ErrInputValidation, "store: commitment must be signed and assigned a tree index before persisting")
	}

	err = d.db.Update(func(tx *bolt.Tx) error {
		byID := tx.Bucket(bucketCommitmentsByID)
		if existing := byID.Get([]byte(c.ID)); existing != nil {
			return ledger.NewErrorf(ErrIntegrity, "store: commitment id %q already exists", c.ID)
		}

		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		key := treeIndexKey(c.TreeIndex)
		if err := tx.Bucket(bucketCommitments).Put(key, raw); err != nil {
			return err
		}
		if err := byID.Put([]byte(c.ID), key); err != nil {
			return err
		}
		if err := tx.Bucket(bucketCommitmentsByTyp).Put(typeIndexKey(c.Type, c.TreeIndex), []byte(c.ID)); err != nil {
			return err
		}

		ns := &txNodeStore{tx: tx}
		root, err := ledger.AppendLeaf(ns, c.TreeIndex, c.LeafHash)
		if err != nil {
			return err
		}

		state := ledger.TreeState{RootHash: root, LeafCount: c.TreeIndex + 1, LastAnchorIndex: -1}
		if existing, err := getTreeStateTx(tx); err == nil {
			state.LastAnchorIndex = existing.LastAnchorIndex
		}
		if err := putTreeStateTx(tx, state); err != nil {
			return err
		}

		newRoot = root
		return nil
	})
	return newRoot, err
}

// GetCommitment looks up a commitment by id.
func (d *DB) GetCommitment(id string) (ledger.Commitment, bool, error) {
	var out ledger.Commitment
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketCommitmentsByID).Get([]byte(id))
		if key == nil {
			return nil
		}
		raw := tx.Bucket(bucketCommitments).Get(key)
		if raw == nil {
			return ledger.NewErrorf(ErrIntegrity, "store: dangling commitment id index for %q", id)
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
		found = true
		return nil
	})
	return out, found, err
}

func (d *DB) getCommitmentByTreeIndex(i int64) (ledger.Commitment, bool, error) {
	var out ledger.Commitment
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCommitments).Get(treeIndexKey(i))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
		found = true
		return nil
	})
	return out, found, err
}

// QueryFilter holds the AND-composed predicates spec.md §4.3 defines
// over the commitments relation.
type QueryFilter struct {
	Type         ledger.CommitmentType // "" means no filter
	Subject      string                // substring match, "" means no filter
	Counterparty string                // equality, "" means no filter
	Since        int64                 // timestamp >=, 0 means no filter
	Until        int64                 // timestamp <=, 0 means no filter
	Limit        int                   // required, 1..100
	Offset       int                   // >= 0
}

const MaxQueryLimit = 100

// Query returns commitments matching filter, ordered by timestamp
// descending with limit/offset pagination (spec.md §4.3). When a type
// filter is set, the walk uses the commitments_by_type secondary index
// instead of scanning every commitment; tree-index order doubles as
// timestamp-descending order since commitments are appended in
// arrival order.
func (d *DB) Query(filter QueryFilter) ([]ledger.Commitment, error) {
	if filter.Limit <= 0 || filter.Limit > MaxQueryLimit {
		return nil, ledger.NewErrorf(ErrInputValidation, "store: limit must be in [1,%d], got %d", MaxQueryLimit, filter.Limit)
	}
	if filter.Offset < 0 {
		return nil, ledger.NewError(ErrInputValidation, "store: offset must be >= 0")
	}

	var out []ledger.Commitment
	err := d.db.View(func(tx *bolt.Tx) error {
		skipped := 0
		visit := func(raw []byte) (bool, error) {
			var cm ledger.Commitment
			if err := json.Unmarshal(raw, &cm); err != nil {
				return false, err
			}
			if !matchesFilter(cm, filter) {
				return true, nil
			}
			if skipped < filter.Offset {
				skipped++
				return true, nil
			}
			out = append(out, cm)
			return len(out) < filter.Limit, nil
		}

		if filter.Type != "" {
			return walkByType(tx, filter.Type, visit)
		}
		return walkAllDescending(tx, visit)
	})
	return out, err
}

// walkAllDescending visits every commitment in reverse tree-index
// (descending timestamp) order until visit returns false or an error.
func walkAllDescending(tx *bolt.Tx, visit func(raw []byte) (bool, error)) error {
	c := tx.Bucket(bucketCommitments).Cursor()
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		keepGoing, err := visit(v)
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

// walkByType visits commitments of the given type, descending, by
// resolving tree indices through the commitments_by_type secondary
// index rather than scanning the whole commitments bucket.
func walkByType(tx *bolt.Tx, typ ledger.CommitmentType, visit func(raw []byte) (bool, error)) error {
	commitments := tx.Bucket(bucketCommitments)
	cursor := tx.Bucket(bucketCommitmentsByTyp).Cursor()
	prefix := append([]byte(typ), 0)

	var keys [][]byte
	for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for i := len(keys) - 1; i >= 0; i-- {
		treeIndexSuffix := keys[i][len(keys[i])-8:]
		raw := commitments.Get(treeIndexSuffix)
		if raw == nil {
			return ledger.NewError(ErrIntegrity, "store: dangling commitments_by_type index entry")
		}
		keepGoing, err := visit(raw)
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

// Count reports how many commitments match filter's predicates, ignoring
// Limit/Offset.
func (d *DB) Count(filter QueryFilter) (int, error) {
	count := 0
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommitments).ForEach(func(_, v []byte) error {
			var cm ledger.Commitment
			if err := json.Unmarshal(v, &cm); err != nil {
				return err
			}
			if matchesFilter(cm, filter) {
				count++
			}
			return nil
		})
	})
	return count, err
}

func matchesFilter(c ledger.Commitment, f QueryFilter) bool {
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.Subject != "" && !strings.Contains(c.Payload.Subject, f.Subject) {
		return false
	}
	if f.Counterparty != "" {
		if c.Payload.Counterparty == nil || *c.Payload.Counterparty != f.Counterparty {
			return false
		}
	}
	if f.Since != 0 && c.Timestamp < f.Since {
		return false
	}
	if f.Until != 0 && c.Timestamp > f.Until {
		return false
	}
	return true
}
