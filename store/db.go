package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"commitledger.dev/ledger"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCommitments      = []byte("commitments")
	bucketCommitmentsByID  = []byte("commitments_by_id")
	bucketCommitmentsByTyp = []byte("commitments_by_type")
	bucketTreeNodes        = []byte("tree_nodes")
	bucketTreeState        = []byte("tree_state")
	bucketAnchors          = []byte("anchors")
	bucketAnchorsByTxid    = []byte("anchors_by_txid")
	bucketConfig           = []byte("config")
)

var allBuckets = [][]byte{
	bucketCommitments,
	bucketCommitmentsByID,
	bucketCommitmentsByTyp,
	bucketTreeNodes,
	bucketTreeState,
	bucketAnchors,
	bucketAnchorsByTxid,
	bucketConfig,
}

const treeStateKey = "state"

// DB is the bbolt-backed persistent store for commitments, tree nodes,
// tree state, anchors, and configuration (spec.md §4.3).
type DB struct {
	path     string
	db       *bolt.DB
	readOnly bool
}

// Open opens (creating if absent) the store at dataDir/commitledger.db,
// creates every bucket, and runs the rebuild-on-reopen integrity check.
// A mismatch between the recomputed root and the persisted tree_state
// root returns ledger.ErrIntegrity and the database is closed again.
func Open(dataDir string) (*DB, error) {
	return open(dataDir, false)
}

// OpenReadOnly opens the store without creating missing buckets and
// without allowing writes, but still performs and reports the same
// integrity check as Open.
func OpenReadOnly(dataDir string) (*DB, error) {
	return open(dataDir, true)
}

func open(dataDir string, readOnly bool) (*DB, error) {
	if dataDir == "" {
		return nil, ledger.NewError(ErrInputValidation, "store: dataDir required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dataDir, err)
	}

	path := filepath.Join(dataDir, "commitledger.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:  1 * time.Second,
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}

	d := &DB{path: path, db: bdb, readOnly: readOnly}

	if !readOnly {
		if err := d.db.Update(func(tx *bolt.Tx) error {
			for _, b := range allBuckets {
				if _, err := tx.CreateBucketIfNotExists(b); err != nil {
					return fmt.Errorf("create bucket %s: %w", string(b), err)
				}
			}
			return nil
		}); err != nil {
			_ = bdb.Close()
			return nil, err
		}
	}

	if err := d.checkIntegrity(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Path() string { return d.path }

// checkIntegrity recomputes the root from persisted leaf hashes in
// treeIndex order and compares it against the persisted tree_state
// root (spec.md §4.3's rebuild-on-reopen rule).
func (d *DB) checkIntegrity() error {
	state, err := d.getTreeState()
	if err != nil {
		return err
	}
	if state.LeafCount == 0 {
		if state.RootHash != "" {
			return ledger.NewError(ErrIntegrity, "store: tree_state has a root hash but zero leaves")
		}
		return nil
	}

	_, root, err := d.RebuildNodesUpTo(state.LeafCount)
	if err != nil {
		return err
	}
	if root != state.RootHash {
		return ledger.NewErrorf(ErrIntegrity, "store: rebuilt root %s does not match persisted root %s", root, state.RootHash)
	}
	return nil
}

func treeIndexKey(i int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

func anchorIndexKey(i int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

func nodeKey(level int, index int64) []byte {
	b := make([]byte, 9)
	b[0] = byte(level)
	binary.BigEndian.PutUint64(b[1:], uint64(index))
	return b
}

func typeIndexKey(t ledger.CommitmentType, treeIndex int64) []byte {
	b := make([]byte, len(t)+1+8)
	copy(b, t)
	b[len(t)] = 0
	binary.BigEndian.PutUint64(b[len(t)+1:], uint64(treeIndex))
	return b
}
