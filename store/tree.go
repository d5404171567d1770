package store

import (
	bolt "go.etcd.io/bbolt"
)

// txNodeStore implements ledger.NodeStore against an in-flight bbolt
// transaction, used internally by PutCommitment so leaf insertion and
// path recomputation land in the same transaction as the commitment
// row (spec.md §4.3's atomicity rule).
type txNodeStore struct {
	tx *bolt.Tx
}

func (n *txNodeStore) GetNode(level int, index int64) (string, bool, error) {
	v := n.tx.Bucket(bucketTreeNodes).Get(nodeKey(level, index))
	if v == nil {
		return "", false, nil
	}
	return string(v), true, nil
}

func (n *txNodeStore) PutNode(level int, index int64, hash string) error {
	return n.tx.Bucket(bucketTreeNodes).Put(nodeKey(level, index), []byte(hash))
}

// GetNode implements ledger.NodeSource directly against the database,
// independent of any open transaction, so *DB can be handed to
// ledger.GenerateProof as-is.
func (d *DB) GetNode(level int, index int64) (string, bool, error) {
	var hash string
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTreeNodes).Get(nodeKey(level, index))
		if v != nil {
			hash = string(v)
			ok = true
		}
		return nil
	})
	return hash, ok, err
}
