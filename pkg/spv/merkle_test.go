// Copyright 2025 Certen Protocol

package spv

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func leafHash(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func headerWithRoot(root chainhash.Hash) *wire.BlockHeader {
	return &wire.BlockHeader{MerkleRoot: root}
}

// buildFullTree constructs a PartialMerkleTree that matches exactly the leaves
// flagged in matched, by mirroring bitcoind's own TraverseAndBuild against the
// given leaves. This
// gives us a known-good tree to extract from without hand-encoding flags.
func buildFullTree(leaves []chainhash.Hash, matched []bool) *PartialMerkleTree {
	numTx := uint32(len(leaves))
	height := treeHeight(numTx)

	var bits []bool
	var hashes []chainhash.Hash

	var build func(h uint, pos uint32) chainhash.Hash
	build = func(h uint, pos uint32) chainhash.Hash {
		anyMatch := false
		if h == 0 {
			anyMatch = matched[pos]
		} else {
			lo := pos << h
			hi := lo + (uint32(1) << h)
			if hi > numTx {
				hi = numTx
			}
			for i := lo; i < hi; i++ {
				if matched[i] {
					anyMatch = true
					break
				}
			}
		}
		bits = append(bits, anyMatch)

		if h == 0 || !anyMatch {
			var leaf chainhash.Hash
			if h == 0 {
				leaf = leaves[pos]
			} else {
				leaf = subtreeHash(leaves, h, pos, numTx)
			}
			hashes = append(hashes, leaf)
			return leaf
		}

		left := build(h-1, pos*2)
		var right chainhash.Hash
		if rightExists(h-1, pos*2+1, numTx) {
			right = build(h-1, pos*2+1)
		} else {
			right = left
		}
		return hashPair(left, right)
	}

	build(height, 0)

	flags := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			flags[i/8] |= 1 << uint(i%8)
		}
	}

	return &PartialMerkleTree{NumTransactions: numTx, Hashes: hashes, Flags: flags}
}

// subtreeHash computes the root hash of the subtree rooted at (h, pos)
// directly from leaves, without consulting any flags -- used only to seed
// buildFullTree's "not matched" hash shortcut.
func subtreeHash(leaves []chainhash.Hash, h uint, pos uint32, numTx uint32) chainhash.Hash {
	if h == 0 {
		return leaves[pos]
	}
	left := subtreeHash(leaves, h-1, pos*2, numTx)
	var right chainhash.Hash
	if rightExists(h-1, pos*2+1, numTx) {
		right = subtreeHash(leaves, h-1, pos*2+1, numTx)
	} else {
		right = left
	}
	return hashPair(left, right)
}

func TestExtractMatchesSingleLeaf(t *testing.T) {
	leaves := []chainhash.Hash{leafHash(1)}
	tree := buildFullTree(leaves, []bool{true})

	root, matches, err := ExtractMatches(tree)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if root != leaves[0] {
		t.Fatalf("root = %x, want %x (single-leaf tree is its own root)", root, leaves[0])
	}
	if len(matches) != 1 || matches[0].Hash != leaves[0] || matches[0].Index != 0 {
		t.Fatalf("matches = %v, want [{%x 0}]", matches, leaves[0])
	}
}

func TestExtractMatchesFourLeavesOneMatch(t *testing.T) {
	leaves := []chainhash.Hash{leafHash(1), leafHash(2), leafHash(3), leafHash(4)}
	matched := []bool{false, true, false, false}
	tree := buildFullTree(leaves, matched)

	wantRoot := subtreeHash(leaves, treeHeight(4), 0, 4)

	root, matches, err := ExtractMatches(tree)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if root != wantRoot {
		t.Fatalf("root mismatch: got %x want %x", root, wantRoot)
	}
	if len(matches) != 1 || matches[0].Hash != leaves[1] || matches[0].Index != 1 {
		t.Fatalf("matches = %v, want [{%x 1}]", matches, leaves[1])
	}
}

func TestExtractMatchesThreeLeavesOddCount(t *testing.T) {
	leaves := []chainhash.Hash{leafHash(1), leafHash(2), leafHash(3)}
	matched := []bool{false, false, true}
	tree := buildFullTree(leaves, matched)

	wantRoot := subtreeHash(leaves, treeHeight(3), 0, 3)

	root, matches, err := ExtractMatches(tree)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if root != wantRoot {
		t.Fatalf("root mismatch: got %x want %x", root, wantRoot)
	}
	if len(matches) != 1 || matches[0].Hash != leaves[2] || matches[0].Index != 2 {
		t.Fatalf("matches = %v, want [{%x 2}]", matches, leaves[2])
	}
}

func TestExtractMatchesTamperedHashChangesRoot(t *testing.T) {
	leaves := []chainhash.Hash{leafHash(1), leafHash(2), leafHash(3), leafHash(4)}
	tree := buildFullTree(leaves, []bool{false, true, false, false})
	tree.Hashes[0][0] ^= 0xff

	root, _, err := ExtractMatches(tree)
	if err != nil {
		t.Fatalf("extract should still succeed structurally: %v", err)
	}
	wantRoot := subtreeHash(leaves, treeHeight(4), 0, 4)
	if root == wantRoot {
		t.Fatalf("tampering a hash should change the recomputed root")
	}
}

func TestExtractMatchesEmptyTreeRejected(t *testing.T) {
	if _, _, err := ExtractMatches(&PartialMerkleTree{NumTransactions: 0}); err != ErrEmptyProof {
		t.Fatalf("got err=%v, want ErrEmptyProof", err)
	}
}

func TestVerifyAgainstHeaderRejectsRootMismatch(t *testing.T) {
	leaves := []chainhash.Hash{leafHash(1), leafHash(2)}
	tree := buildFullTree(leaves, []bool{true, false})

	hdr := &EnrichedHeader{Header: headerWithRoot(leafHash(0xee))}
	if err := VerifyAgainstHeader(hdr, tree, leaves[0], 0); err != ErrRootMismatch {
		t.Fatalf("got err=%v, want ErrRootMismatch", err)
	}
}

func TestVerifyAgainstHeaderRejectsWrongBlockIndex(t *testing.T) {
	leaves := []chainhash.Hash{leafHash(1), leafHash(2), leafHash(3), leafHash(4)}
	tree := buildFullTree(leaves, []bool{false, true, false, false})
	wantRoot := subtreeHash(leaves, treeHeight(4), 0, 4)
	hdr := &EnrichedHeader{Header: headerWithRoot(wantRoot)}

	if err := VerifyAgainstHeader(hdr, tree, leaves[1], 2); err == nil {
		t.Fatal("expected mismatch: proof commits leaves[1] at index 1, not 2")
	}
	if err := VerifyAgainstHeader(hdr, tree, leaves[1], 1); err != nil {
		t.Fatalf("correct (txid, index) pair should verify: %v", err)
	}
}
