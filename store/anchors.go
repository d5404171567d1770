package store

import (
	"encoding/json"

	"commitledger.dev/ledger"

	bolt "go.etcd.io/bbolt"
)

// PutAnchor persists a new anchor record and advances tree_state's
// lastAnchorIndex, atomically. Duplicate txid is an integrity error
// (spec.md §9 open question, resolved in favor of rejecting at write
// time via the anchors_by_txid secondary index).
func (d *DB) PutAnchor(a ledger.Anchor) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		byTxid := tx.Bucket(bucketAnchorsByTxid)
		if existing := byTxid.Get([]byte(a.Txid)); existing != nil {
			return ledger.NewErrorf(ErrIntegrity, "store: anchor txid %q already recorded", a.Txid)
		}

		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		key := anchorIndexKey(a.AnchorIndex)
		if err := tx.Bucket(bucketAnchors).Put(key, raw); err != nil {
			return err
		}
		if err := byTxid.Put([]byte(a.Txid), key); err != nil {
			return err
		}
		return setLastAnchorIndex(tx, a.AnchorIndex)
	})
}

// UpdateAnchor overwrites an existing anchor record in place (used by
// RefreshAnchor to persist confirmation/block-height updates). The
// anchor must already exist.
func (d *DB) UpdateAnchor(a ledger.Anchor) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		key := anchorIndexKey(a.AnchorIndex)
		if tx.Bucket(bucketAnchors).Get(key) == nil {
			return ledger.NewErrorf(ErrNotFound, "store: anchor %d not found", a.AnchorIndex)
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAnchors).Put(key, raw)
	})
}

// GetAnchor looks up an anchor by its index.
func (d *DB) GetAnchor(anchorIndex int64) (ledger.Anchor, bool, error) {
	var out ledger.Anchor
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAnchors).Get(anchorIndexKey(anchorIndex))
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

// GetAnchorByTxid looks up an anchor by its broadcast txid.
func (d *DB) GetAnchorByTxid(txid string) (ledger.Anchor, bool, error) {
	var out ledger.Anchor
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketAnchorsByTxid).Get([]byte(txid))
		if key == nil {
			return nil
		}
		raw := tx.Bucket(bucketAnchors).Get(key)
		if raw == nil {
			return ledger.NewErrorf(ErrIntegrity, "store: dangling anchor txid index for %q", txid)
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
		found = true
		return nil
	})
	return out, found, err
}

// LatestAnchor returns the highest-indexed anchor, if any.
func (d *DB) LatestAnchor() (ledger.Anchor, bool, error) {
	var out ledger.Anchor
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		_, raw := tx.Bucket(bucketAnchors).Cursor().Last()
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

// ListAnchors returns every anchor in ascending anchorIndex order.
func (d *DB) ListAnchors() ([]ledger.Anchor, error) {
	var out []ledger.Anchor
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAnchors).ForEach(func(_, v []byte) error {
			var a ledger.Anchor
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
	})
	return out, err
}
