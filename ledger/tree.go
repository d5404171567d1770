package ledger

import (
	"fmt"
	"math/bits"
)

// NodeSource reads tree nodes by (level, index). store.DB implements this
// directly against persisted bbolt rows; MemoryNodes implements it for
// tests and for trees rebuilt in memory (store.RebuildNodesUpTo).
type NodeSource interface {
	GetNode(level int, index int64) (hash string, ok bool, err error)
}

// NodeSink writes tree nodes. Append needs both read and write access.
type NodeSink interface {
	PutNode(level int, index int64, hash string) error
}

// NodeStore is the read/write pair Append needs.
type NodeStore interface {
	NodeSource
	NodeSink
}

// MemoryNodes is an in-memory NodeStore, used by tests and by
// store.RebuildNodesUpTo to replay persisted leaves into a fresh tree
// (spec.md §9: "prefer the in-memory structure as a cache rebuilt from
// persisted state"). Offline proof verification (VerifyProof) needs no
// NodeSource at all.
type MemoryNodes map[[2]int64]string

func (m MemoryNodes) GetNode(level int, index int64) (string, bool, error) {
	h, ok := m[[2]int64{int64(level), index}]
	return h, ok, nil
}

func (m MemoryNodes) PutNode(level int, index int64, hash string) error {
	m[[2]int64{int64(level), index}] = hash
	return nil
}

// Height returns ceil(log2(max(leafCount, 1))), the tree's height for a
// given leaf count. The root always lives at (Height(leafCount), 0).
func Height(leafCount int64) int {
	if leafCount <= 1 {
		return 0
	}
	return bits.Len64(uint64(leafCount - 1))
}

// AppendLeaf stores leafHashHex at (0, newLeafIndex) and rebuilds every
// node on the path to the root, applying the rightmost-path rule (a
// missing right child is treated as a copy of the left child) wherever a
// level is unbalanced. It returns the new root hash hex.
func AppendLeaf(ns NodeStore, newLeafIndex int64, leafHashHex string) (string, error) {
	if newLeafIndex < 0 {
		return "", fmt.Errorf("ledger: negative leaf index %d", newLeafIndex)
	}
	if err := ns.PutNode(0, newLeafIndex, leafHashHex); err != nil {
		return "", err
	}

	newLeafCount := newLeafIndex + 1
	height := Height(newLeafCount)
	idx := newLeafIndex
	for level := 0; level < height; level++ {
		parentIdx := idx / 2
		leftIdx := parentIdx * 2
		rightIdx := leftIdx + 1

		left, ok, err := ns.GetNode(level, leftIdx)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("ledger: tree corrupt: missing left child at level %d index %d", level, leftIdx)
		}

		right, ok, err := ns.GetNode(level, rightIdx)
		if err != nil {
			return "", err
		}

		var parentHash string
		if ok {
			parentHash, err = InternalHash(left, right)
		} else {
			parentHash, err = InternalHash(left, left)
		}
		if err != nil {
			return "", err
		}
		if err := ns.PutNode(level+1, parentIdx, parentHash); err != nil {
			return "", err
		}
		idx = parentIdx
	}

	root, ok, err := ns.GetNode(height, 0)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("ledger: tree corrupt: root missing after append")
	}
	return root, nil
}

// GenerateProof produces the inclusion proof for leafIndex against a tree
// holding leafCount leaves. Single-leaf trees return an empty sibling
// list (leaf equals root trivially).
func GenerateProof(ns NodeSource, leafIndex, leafCount int64) (Proof, error) {
	if leafCount <= 0 {
		return Proof{}, fmt.Errorf("ledger: empty tree has no proofs")
	}
	if leafIndex < 0 || leafIndex >= leafCount {
		return Proof{}, fmt.Errorf("ledger: leaf index %d out of range [0,%d)", leafIndex, leafCount)
	}

	leafHash, ok, err := ns.GetNode(0, leafIndex)
	if err != nil {
		return Proof{}, err
	}
	if !ok {
		return Proof{}, fmt.Errorf("ledger: missing leaf node at index %d", leafIndex)
	}

	height := Height(leafCount)
	siblings := make([]ProofStep, 0, height)
	idx := leafIndex
	for level := 0; level < height; level++ {
		siblingIdx := idx ^ 1
		cur, ok, err := ns.GetNode(level, idx)
		if err != nil {
			return Proof{}, err
		}
		if !ok {
			return Proof{}, fmt.Errorf("ledger: missing node at level %d index %d", level, idx)
		}

		sib, ok, err := ns.GetNode(level, siblingIdx)
		if err != nil {
			return Proof{}, err
		}
		if ok {
			pos := PositionRight
			if idx%2 != 0 {
				pos = PositionLeft
			}
			siblings = append(siblings, ProofStep{Hash: sib, Position: pos})
		} else {
			siblings = append(siblings, ProofStep{Hash: cur, Position: PositionRight})
		}
		idx = idx / 2
	}

	root, ok, err := ns.GetNode(height, 0)
	if err != nil {
		return Proof{}, err
	}
	if !ok {
		return Proof{}, fmt.Errorf("ledger: missing root at height %d", height)
	}

	return Proof{
		LeafIndex: leafIndex,
		LeafHash:  leafHash,
		Siblings:  siblings,
		RootHash:  root,
	}, nil
}

// VerifyProof folds the sibling list left-to-right starting from leafHash
// and reports whether the result equals rootHash. It is stateless: it
// depends on nothing but its arguments.
func VerifyProof(leafHash string, siblings []ProofStep, rootHash string) bool {
	acc := leafHash
	for _, s := range siblings {
		var next string
		var err error
		switch s.Position {
		case PositionLeft:
			next, err = InternalHash(s.Hash, acc)
		case PositionRight:
			next, err = InternalHash(acc, s.Hash)
		default:
			return false
		}
		if err != nil {
			return false
		}
		acc = next
	}
	return acc == rootHash
}

// VerifyProofStruct is a convenience wrapper over VerifyProof for a Proof
// value, checking the proof's own RootHash as well as an externally
// supplied expected root (e.g. a bound anchor's root).
func VerifyProofStruct(p Proof, expectedRoot string) bool {
	if p.RootHash != expectedRoot {
		return false
	}
	return VerifyProof(p.LeafHash, p.Siblings, expectedRoot)
}
