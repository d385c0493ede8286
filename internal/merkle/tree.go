// tree.go - Client-side mirror of the on-chain incremental Merkle accumulator.
//
// The on-chain program appends commitment leaves into a fixed-height tree using
// filled subtrees and a zero-hash ladder, and keeps a sliding window of recent
// roots. The client rebuilds the same tree from its locally known commitment
// list so it can produce inclusion paths the verifier will accept. Leaves are
// never removed and never reindexed; the position assigned at insertion is
// authoritative.

package merkle

import (
	"bytes"
	"errors"
	"fmt"

	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

const (
	// DefaultHeight matches the deployed accumulator (16384 leaves).
	DefaultHeight = 14
	// RootHistory is the number of recent roots the verifier accepts.
	RootHistory = 32
)

var (
	// ErrTreeFull is returned when the accumulator capacity is exhausted.
	ErrTreeFull = errors.New("merkle: tree is full")
	// ErrStaleRoot marks a proof built against a root that has fallen out of
	// the verifier's root window. Retryable after a leaf resync.
	ErrStaleRoot = errors.New("merkle: proof root no longer accepted on-chain")
)

// hashNodes combines two sibling nodes. The same two-element MiMC hash is
// re-folded inside the circuits.
func hashNodes(left, right []byte) []byte {
	h := mimcNative.NewMiMC()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// Tree is the client's append-only view of the accumulator.
type Tree struct {
	height         int
	leaves         [][]byte
	filledSubtrees [][]byte
	zeroHashes     [][]byte
	roots          [][]byte // sliding window, oldest first
}

// NewTree creates an empty tree of the given height.
func NewTree(height int) *Tree {
	if height <= 0 {
		height = DefaultHeight
	}
	zeros := zeroHashes(height)
	t := &Tree{
		height:         height,
		zeroHashes:     zeros,
		filledSubtrees: make([][]byte, height),
	}
	copy(t.filledSubtrees, zeros)
	t.pushRoot(hashNodes(zeros[height-1], zeros[height-1]))
	return t
}

// FromLeaves rebuilds the tree from an ordered commitment list, preserving the
// insertion order exactly.
func FromLeaves(height int, leaves [][]byte) (*Tree, error) {
	t := NewTree(height)
	for i, leaf := range leaves {
		if _, err := t.Append(leaf); err != nil {
			return nil, fmt.Errorf("appending leaf %d: %w", i, err)
		}
	}
	return t, nil
}

// zeroHashes builds the ladder of empty-subtree hashes: level 0 is the empty
// leaf, level l+1 hashes two copies of level l.
func zeroHashes(height int) [][]byte {
	zeros := make([][]byte, height)
	current := make([]byte, 32)
	for i := 0; i < height; i++ {
		zeros[i] = current
		current = hashNodes(current, current)
	}
	return zeros
}

// Append inserts a leaf at the next free index and returns the new root.
func (t *Tree) Append(leaf []byte) ([]byte, error) {
	idx := uint64(len(t.leaves))
	if idx >= uint64(1)<<t.height {
		return nil, ErrTreeFull
	}
	t.leaves = append(t.leaves, leaf)

	current := leaf
	for level := 0; level < t.height; level++ {
		if idx%2 == 0 {
			t.filledSubtrees[level] = current
			current = hashNodes(current, t.zeroHashes[level])
		} else {
			current = hashNodes(t.filledSubtrees[level], current)
		}
		idx /= 2
	}
	t.pushRoot(current)
	return current, nil
}

// Root returns the latest root.
func (t *Tree) Root() []byte {
	return t.roots[len(t.roots)-1]
}

// ContainsRoot reports whether root is still inside the accepted window.
func (t *Tree) ContainsRoot(root []byte) bool {
	for _, r := range t.roots {
		if bytes.Equal(r, root) {
			return true
		}
	}
	return false
}

// LeafCount returns the number of inserted leaves.
func (t *Tree) LeafCount() uint64 {
	return uint64(len(t.leaves))
}

// Height returns the tree height.
func (t *Tree) Height() int {
	return t.height
}

// Leaf returns the leaf at index.
func (t *Tree) Leaf(index uint64) ([]byte, error) {
	if index >= uint64(len(t.leaves)) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range", index)
	}
	return t.leaves[index], nil
}

// IndexOf returns the insertion index of a commitment.
func (t *Tree) IndexOf(commitment []byte) (uint64, bool) {
	for i, leaf := range t.leaves {
		if bytes.Equal(leaf, commitment) {
			return uint64(i), true
		}
	}
	return 0, false
}

func (t *Tree) pushRoot(root []byte) {
	if len(t.roots) >= RootHistory {
		t.roots = t.roots[1:]
	}
	t.roots = append(t.roots, root)
}
