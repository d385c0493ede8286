// proof.go - Inclusion proof construction and folding.

package merkle

import (
	"bytes"
	"fmt"
)

// Proof is an inclusion path from a leaf to an accumulator root. All notes
// spent together inside one circuit invocation must resolve to the same Root.
type Proof struct {
	Root         []byte
	LeafIndex    uint64
	PathElements [][]byte // sibling hash per level, leaf level first
	PathIndices  []int    // 0 = leaf side is left, 1 = leaf side is right
}

// Prove builds the inclusion proof for the leaf at index against the current
// local view of the tree. The returned proof can go stale if the authoritative
// tree has advanced past the local root window; the caller treats that as a
// retryable resync condition, not a fatal error.
func (t *Tree) Prove(index uint64) (*Proof, error) {
	if index >= uint64(len(t.leaves)) {
		return nil, fmt.Errorf("merkle: cannot prove unknown leaf index %d", index)
	}

	// Reconstruct each level from the leaf layer up. Missing right siblings
	// are the zero hash for that level, matching the on-chain append rule.
	level := make([][]byte, len(t.leaves))
	copy(level, t.leaves)

	proof := &Proof{
		LeafIndex:    index,
		PathElements: make([][]byte, t.height),
		PathIndices:  make([]int, t.height),
	}
	idx := index
	for l := 0; l < t.height; l++ {
		sibIdx := idx ^ 1
		sibling := t.zeroHashes[l]
		if sibIdx < uint64(len(level)) {
			sibling = level[sibIdx]
		}
		// Copy so callers cannot reach into shared tree state through the proof.
		proof.PathElements[l] = append([]byte(nil), sibling...)
		proof.PathIndices[l] = int(idx % 2)

		next := make([][]byte, (len(level)+1)/2)
		for i := 0; i < len(next); i++ {
			left := level[2*i]
			right := t.zeroHashes[l]
			if 2*i+1 < len(level) {
				right = level[2*i+1]
			}
			next[i] = hashNodes(left, right)
		}
		level = next
		idx /= 2
	}
	proof.Root = level[0]
	return proof, nil
}

// Fold recomputes the root implied by the proof for the given leaf.
func (p *Proof) Fold(leaf []byte) []byte {
	current := leaf
	for l, sibling := range p.PathElements {
		if p.PathIndices[l] == 0 {
			current = hashNodes(current, sibling)
		} else {
			current = hashNodes(sibling, current)
		}
	}
	return current
}

// Verify checks that folding leaf through the path reproduces the root.
func (p *Proof) Verify(leaf []byte) bool {
	return bytes.Equal(p.Fold(leaf), p.Root)
}
