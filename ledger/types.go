package ledger

// TreeState is the tree's summary: root hash (absent iff leafCount==0),
// the number of leaves appended so far, and the index of the last anchor
// recorded against this tree (-1 if none).
type TreeState struct {
	RootHash        string // "" iff LeafCount == 0
	LeafCount       int64
	LastAnchorIndex int64 // -1 if no anchor recorded yet
}

// Anchor is the immutable record binding a tree root and commitment count
// to an externally broadcast transaction id (spec.md §3).
type Anchor struct {
	AnchorIndex     int64
	Txid            string
	Timestamp       int64 // milliseconds since epoch
	BlockHeight     *uint64
	RootHash        string
	CommitmentCount int64
	PreviousAnchor  string // "" iff AnchorIndex == 0
}

// Position records which side of the hash fold a proof sibling sits on.
type Position int

const (
	PositionLeft Position = iota
	PositionRight
)

// ProofStep is one sibling hash on the path from a leaf to the root.
type ProofStep struct {
	Hash     string
	Position Position
}

// Proof is a compact inclusion proof for one leaf against a tree root.
type Proof struct {
	LeafIndex int64
	LeafHash  string
	Siblings  []ProofStep
	RootHash  string
}
