// memory.go - In-process chain state.
//
// Memory mirrors the on-chain program's observable behavior: an append-only
// incremental accumulator with a bounded root window, a nullifier set that
// rejects reuse, and published encrypted payloads. It backs tests and local
// development; the production reader talks to a relay node over HTTP.

package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/noctura/shield/internal/delivery"
	"github.com/noctura/shield/internal/merkle"
)

// ErrNullifierUsed mirrors the program's double-spend rejection.
var ErrNullifierUsed = errors.New("chain: nullifier already used")

// Memory is an in-process implementation of the shield program's state.
type Memory struct {
	mu         sync.Mutex
	tree       *merkle.Tree
	nullifiers map[string]bool
	spentOrder [][]byte
	payloads   []delivery.Candidate
	sigCounter int
}

// NewMemory creates an empty chain with an accumulator of the given height.
func NewMemory(height int) *Memory {
	return &Memory{
		tree:       merkle.NewTree(height),
		nullifiers: make(map[string]bool),
	}
}

// AppendLeaf inserts a commitment and returns its assigned leaf index.
func (m *Memory) AppendLeaf(commitment []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := m.tree.LeafCount()
	if _, err := m.tree.Append(commitment); err != nil {
		return 0, err
	}
	return index, nil
}

// SpendNullifier records a nullifier, rejecting reuse.
func (m *Memory) SpendNullifier(nullifier []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(nullifier)
	if m.nullifiers[key] {
		return ErrNullifierUsed
	}
	m.nullifiers[key] = true
	m.spentOrder = append(m.spentOrder, append([]byte(nil), nullifier...))
	return nil
}

// PublishPayload records an encrypted payload as transaction metadata.
func (m *Memory) PublishPayload(p *delivery.Encrypted, signature string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, delivery.Candidate{Payload: p, Signature: signature})
}

// NextSignature issues a synthetic transaction signature.
func (m *Memory) NextSignature() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sigCounter++
	return fmt.Sprintf("memsig-%06d", m.sigCounter)
}

// Leaves implements StateReader.
func (m *Memory) Leaves(context.Context) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, m.tree.LeafCount())
	for i := range out {
		leaf, err := m.tree.Leaf(uint64(i))
		if err != nil {
			return nil, err
		}
		out[i] = leaf
	}
	return out, nil
}

// ContainsRoot implements StateReader.
func (m *Memory) ContainsRoot(_ context.Context, root []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.ContainsRoot(root), nil
}

// IsNullifierSpent implements StateReader.
func (m *Memory) IsNullifierSpent(_ context.Context, nullifier []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nullifiers[string(nullifier)], nil
}

// SpentNullifiers implements StateReader.
func (m *Memory) SpentNullifiers(context.Context) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.spentOrder))
	for i, nf := range m.spentOrder {
		out[i] = append([]byte(nil), nf...)
	}
	return out, nil
}

// EncryptedPayloads implements delivery.PayloadSource.
func (m *Memory) EncryptedPayloads(context.Context) ([]delivery.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]delivery.Candidate, len(m.payloads))
	copy(out, m.payloads)
	return out, nil
}

// LeafCount returns the number of inserted leaves.
func (m *Memory) LeafCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.LeafCount()
}
