package store

import "commitledger.dev/ledger"

// RebuildNodesUpTo replays the first n leaves (by tree index) into a
// fresh in-memory node tree and returns it along with its root hash.
//
// The live tree_nodes bucket only reflects the current (largest) tree
// size: once a leaf's sibling arrives, the rightmost-duplicate
// placeholder above it is overwritten with the real internal hash.
// Proofs bound to an older anchor therefore cannot be read out of the
// live bucket once the tree has grown past that anchor's leaf count —
// they must be regenerated against a tree rebuilt to exactly n leaves.
func (d *DB) RebuildNodesUpTo(n int64) (ledger.MemoryNodes, string, error) {
	if n <= 0 {
		return nil, "", ledger.NewErrorf(ErrInputValidation, "store: rebuild requires n > 0, got %d", n)
	}
	nodes := ledger.MemoryNodes{}
	var root string
	for i := int64(0); i < n; i++ {
		c, ok, err := d.getCommitmentByTreeIndex(i)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return nil, "", ledger.NewErrorf(ErrIntegrity, "store: missing commitment at tree index %d during rebuild", i)
		}
		root, err = ledger.AppendLeaf(nodes, i, c.LeafHash)
		if err != nil {
			return nil, "", ledger.NewErrorf(ErrIntegrity, "store: rebuild failed at index %d: %v", i, err)
		}
	}
	return nodes, root, nil
}
