// Copyright 2025 Certen Protocol
//
// Partial Merkle tree verification, per Bitcoin's BIP37 encoding. A deposit
// transaction carries one of these proofs to show its txid
// was included in the block the header cache already accepted; this file
// recomputes the block's merkle root from the proof and compares it
// against the cached header.

package spv

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Common errors returned during partial merkle tree verification.
var (
	ErrEmptyProof      = errors.New("spv: empty partial merkle tree")
	ErrTooManyHashes   = errors.New("spv: more hashes than transactions in tree")
	ErrNotAllBitsUsed  = errors.New("spv: not all flag bits consumed")
	ErrNotAllHashUsed  = errors.New("spv: not all hashes consumed")
	ErrRootMismatch    = errors.New("spv: recomputed merkle root does not match header")
)

// PartialMerkleTree is Bitcoin's compact encoding of a merkle branch proving
// a subset of a block's transactions were included, per BIP37: a flag
// bitfield plus the minimal set of hashes needed to recompute the root.
type PartialMerkleTree struct {
	NumTransactions uint32
	Hashes          []chainhash.Hash
	Flags           []byte
}

// Match is one transaction the partial tree commits to: its hash and its
// position among the block's transactions, left to right starting at 0.
// Binding both together is what lets a caller verify a proof actually
// commits to a specific (txid, index) pair rather than just "txid is
// somewhere in this block".
type Match struct {
	Hash  chainhash.Hash
	Index uint32
}

// traversal walks the implied binary tree the same way the hashes/flags
// were produced, consuming bits and hashes depth-first, left-to-right.
type traversal struct {
	tree      *PartialMerkleTree
	bitUsed   int
	hashUsed  int
	matches   []Match
	badHashes bool
}

func (t *traversal) bit() bool {
	byteIdx := t.bitUsed / 8
	bitIdx := uint(t.bitUsed % 8)
	b := false
	if byteIdx < len(t.tree.Flags) {
		b = (t.tree.Flags[byteIdx]>>bitIdx)&1 == 1
	}
	t.bitUsed++
	return b
}

func (t *traversal) hash() (chainhash.Hash, bool) {
	if t.hashUsed >= len(t.tree.Hashes) {
		t.badHashes = true
		return chainhash.Hash{}, false
	}
	h := t.tree.Hashes[t.hashUsed]
	t.hashUsed++
	return h, true
}

// treeHeight is the number of levels above the leaves for n transactions.
func treeHeight(n uint32) uint {
	height := uint(0)
	for (uint32(1) << height) < n {
		height++
	}
	return height
}

// recurse mirrors the bitcoind TraverseAndBuild / TraverseAndExtract
// algorithm: at each node, a flag bit says whether the subtree contains a
// matched transaction; leaves always carry a hash, and interior nodes
// either carry a hash (flag clear, subtree untouched) or are expanded into
// their two children (flag set).
func (t *traversal) recurse(height uint, pos uint32) (chainhash.Hash, error) {
	parentOfMatch := t.bit()

	if height == 0 || !parentOfMatch {
		h, ok := t.hash()
		if !ok {
			return chainhash.Hash{}, ErrNotAllHashUsed
		}
		if height == 0 && parentOfMatch {
			t.matches = append(t.matches, Match{Hash: h, Index: pos})
		}
		return h, nil
	}

	left, err := t.recurse(height-1, pos*2)
	if err != nil {
		return chainhash.Hash{}, err
	}

	var right chainhash.Hash
	// A right child exists only if its index is still within range at this
	// height; otherwise the left child is duplicated, matching Bitcoin's
	// odd-leaf-count convention.
	rightPos := pos*2 + 1
	if rightExists(height-1, rightPos, t.tree.NumTransactions) {
		right, err = t.recurse(height-1, rightPos)
		if err != nil {
			return chainhash.Hash{}, err
		}
	} else {
		right = left
	}

	return hashPair(left, right), nil
}

func rightExists(height uint, pos uint32, numTx uint32) bool {
	return pos*(1<<height) < numTx
}

func hashPair(left, right chainhash.Hash) chainhash.Hash {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return chainhash.DoubleHashH(buf[:])
}

// ExtractMatches recomputes the merkle root implied by the partial tree and
// returns the matched transactions, each paired with its leaf index, plus
// the recomputed root. It does not itself compare the root against a
// header -- see VerifyAgainstHeader.
func ExtractMatches(tree *PartialMerkleTree) (root chainhash.Hash, matches []Match, err error) {
	if tree.NumTransactions == 0 {
		return root, nil, ErrEmptyProof
	}
	if uint32(len(tree.Hashes)) > tree.NumTransactions {
		return root, nil, ErrTooManyHashes
	}

	height := treeHeight(tree.NumTransactions)
	tr := &traversal{tree: tree}
	root, err = tr.recurse(height, 0)
	if err != nil {
		return chainhash.Hash{}, nil, err
	}
	if tr.badHashes {
		return chainhash.Hash{}, nil, ErrNotAllHashUsed
	}
	if tr.hashUsed != len(tree.Hashes) {
		return chainhash.Hash{}, nil, ErrNotAllHashUsed
	}
	// Remaining flag bits, if any, must all be zero padding.
	for i := tr.bitUsed; i < len(tree.Flags)*8; i++ {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		if (tree.Flags[byteIdx]>>bitIdx)&1 == 1 {
			return chainhash.Hash{}, nil, ErrNotAllBitsUsed
		}
	}

	return root, tr.matches, nil
}

// VerifyAgainstHeader checks that tree's recomputed root matches header's
// MerkleRoot and that the proof commits to exactly the (txid, blockIndex)
// pair presented -- not merely that txid appears somewhere in the proof.
// It is the entry point the deposit handler uses to validate a deposit proof
// against the header cache.
func VerifyAgainstHeader(header *EnrichedHeader, tree *PartialMerkleTree, txid chainhash.Hash, blockIndex uint32) error {
	root, matches, err := ExtractMatches(tree)
	if err != nil {
		return err
	}
	if root != header.Header.MerkleRoot {
		return ErrRootMismatch
	}
	for _, m := range matches {
		if m.Hash == txid && m.Index == blockIndex {
			return nil
		}
	}
	return fmt.Errorf("spv: txid %s at index %d not present in proof", txid, blockIndex)
}
