package store

import (
	"encoding/json"

	"commitledger.dev/ledger"

	bolt "go.etcd.io/bbolt"
)

func getTreeStateTx(tx *bolt.Tx) (ledger.TreeState, error) {
	raw := tx.Bucket(bucketTreeState).Get([]byte(treeStateKey))
	if raw == nil {
		return ledger.TreeState{LastAnchorIndex: -1}, nil
	}
	var s ledger.TreeState
	if err := json.Unmarshal(raw, &s); err != nil {
		return ledger.TreeState{}, err
	}
	return s, nil
}

func putTreeStateTx(tx *bolt.Tx, s ledger.TreeState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketTreeState).Put([]byte(treeStateKey), raw)
}

// getTreeState reads the current tree state outside of any caller
// transaction, defaulting LastAnchorIndex to -1 ("no anchor yet") when
// the store has never been written to.
func (d *DB) getTreeState() (ledger.TreeState, error) {
	var s ledger.TreeState
	err := d.db.View(func(tx *bolt.Tx) error {
		var err error
		s, err = getTreeStateTx(tx)
		return err
	})
	return s, err
}

// TreeState returns the current tree summary.
func (d *DB) TreeState() (ledger.TreeState, error) {
	return d.getTreeState()
}

func setLastAnchorIndex(tx *bolt.Tx, anchorIndex int64) error {
	s, err := getTreeStateTx(tx)
	if err != nil {
		return err
	}
	s.LastAnchorIndex = anchorIndex
	return putTreeStateTx(tx, s)
}
