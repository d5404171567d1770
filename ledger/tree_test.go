package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
)

func leafHashFor(s string) string {
	sum := sha256.Sum256(append([]byte{domainLeaf}, []byte(s)...))
	return hex.EncodeToString(sum[:])
}

func buildTree(t *testing.T, n int) (MemoryNodes, []string) {
	t.Helper()
	ns := MemoryNodes{}
	leaves := make([]string, n)
	for i := 0; i < n; i++ {
		h := leafHashFor(fmt.Sprintf("leaf-%d", i))
		leaves[i] = h
		if _, err := AppendLeaf(ns, int64(i), h); err != nil {
			t.Fatalf("AppendLeaf(%d): %v", i, err)
		}
	}
	return ns, leaves
}

func TestTreeAppendAndProofAllSizes(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 16, 17} {
		ns, leaves := buildTree(t, n)
		root, ok, err := ns.GetNode(Height(int64(n)), 0)
		if err != nil || !ok {
			t.Fatalf("n=%d: root missing: ok=%v err=%v", n, ok, err)
		}
		for i := 0; i < n; i++ {
			proof, err := GenerateProof(ns, int64(i), int64(n))
			if err != nil {
				t.Fatalf("n=%d i=%d: GenerateProof: %v", n, i, err)
			}
			if proof.LeafHash != leaves[i] {
				t.Fatalf("n=%d i=%d: leaf hash mismatch", n, i)
			}
			if proof.RootHash != root {
				t.Fatalf("n=%d i=%d: proof root mismatch", n, i)
			}
			if !VerifyProof(proof.LeafHash, proof.Siblings, root) {
				t.Fatalf("n=%d i=%d: proof failed to verify", n, i)
			}
		}
	}
}

func TestSingleLeafProofIsEmpty(t *testing.T) {
	ns, leaves := buildTree(t, 1)
	proof, err := GenerateProof(ns, 0, 1)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	if len(proof.Siblings) != 0 {
		t.Fatalf("expected empty sibling list for single-leaf tree, got %d", len(proof.Siblings))
	}
	if proof.RootHash != leaves[0] {
		t.Fatalf("expected root to equal the sole leaf hash")
	}
}

func TestOddCountTreeMatchesSpecFormula(t *testing.T) {
	// Three leaves: root == h( h(h0,h1), h(h2,h2) ) (spec.md §8 scenario 2).
	ns, leaves := buildTree(t, 3)
	h01, err := InternalHash(leaves[0], leaves[1])
	if err != nil {
		t.Fatalf("InternalHash: %v", err)
	}
	h22, err := InternalHash(leaves[2], leaves[2])
	if err != nil {
		t.Fatalf("InternalHash: %v", err)
	}
	want, err := InternalHash(h01, h22)
	if err != nil {
		t.Fatalf("InternalHash: %v", err)
	}
	root, ok, err := ns.GetNode(Height(3), 0)
	if err != nil || !ok {
		t.Fatalf("root missing: ok=%v err=%v", ok, err)
	}
	if root != want {
		t.Fatalf("root mismatch: got %s want %s", root, want)
	}
}

func TestOrderingChangesRoot(t *testing.T) {
	nsA := MemoryNodes{}
	a0 := leafHashFor("A")
	a1 := leafHashFor("B")
	if _, err := AppendLeaf(nsA, 0, a0); err != nil {
		t.Fatal(err)
	}
	rootA, err := AppendLeaf(nsA, 1, a1)
	if err != nil {
		t.Fatal(err)
	}

	nsB := MemoryNodes{}
	if _, err := AppendLeaf(nsB, 0, a1); err != nil {
		t.Fatal(err)
	}
	rootB, err := AppendLeaf(nsB, 1, a0)
	if err != nil {
		t.Fatal(err)
	}

	if rootA == rootB {
		t.Fatalf("expected different roots for different append orders")
	}
}

func TestMutatedProofFailsVerification(t *testing.T) {
	ns, leaves := buildTree(t, 5)
	proof, err := GenerateProof(ns, 2, 5)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	if !VerifyProof(proof.LeafHash, proof.Siblings, proof.RootHash) {
		t.Fatalf("expected valid proof to verify")
	}

	mutatedLeaf := flipHexByte(leaves[2])
	if VerifyProof(mutatedLeaf, proof.Siblings, proof.RootHash) {
		t.Fatalf("expected mutated leaf hash to fail verification")
	}

	if len(proof.Siblings) > 0 {
		mutated := append([]ProofStep(nil), proof.Siblings...)
		mutated[0].Hash = flipHexByte(mutated[0].Hash)
		if VerifyProof(proof.LeafHash, mutated, proof.RootHash) {
			t.Fatalf("expected mutated sibling hash to fail verification")
		}
	}

	mutatedRoot := flipHexByte(proof.RootHash)
	if VerifyProof(proof.LeafHash, proof.Siblings, mutatedRoot) {
		t.Fatalf("expected mutated root hash to fail verification")
	}
}

func flipHexByte(h string) string {
	b, err := hex.DecodeString(h)
	if err != nil {
		panic(err)
	}
	b[0] ^= 0xFF
	return hex.EncodeToString(b)
}

func TestHeightFormula(t *testing.T) {
	cases := map[int64]int{0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 7: 3, 8: 3, 16: 4, 17: 5}
	for n, want := range cases {
		if got := Height(n); got != want {
			t.Errorf("Height(%d) = %d, want %d", n, got, want)
		}
	}
}
