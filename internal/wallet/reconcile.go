// reconcile.go - Alignment of wallet state with on-chain ground truth.
//
// Local spent flags are an optimistic cache: a note is flagged at submission
// time, but the chain's nullifier set is the authority. Reconciliation walks
// the authoritative sets and repairs both directions of drift, including
// leaf positions for privately received notes.

package wallet

import (
	"context"

	"github.com/pkg/errors"

	"github.com/noctura/shield/internal/chain"
	"github.com/noctura/shield/internal/delivery"
	"github.com/noctura/shield/internal/note"
)

var _ delivery.Store = (*Wallet)(nil)

// HasNote reports whether a commitment is already recorded.
func (w *Wallet) HasNote(commitment []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.findLocked(commitment) != nil
}

// AddDiscovered records a note claimed by the delivery scanner. The leaf
// index is unknown until the next leaf sync.
func (w *Wallet) AddDiscovered(_ context.Context, n *note.Note, signature string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.findLocked(n.Commitment) != nil {
		return nil
	}
	rec := note.NewRecord(n, w.Owner(), w.symbolFor(n.TokenMint), note.UnknownLeaf, signature)
	w.Records = append(w.Records, rec)
	return nil
}

// SyncLeaves resolves unknown leaf indices against the on-chain commitment
// list and returns the ordered leaves for tree rebuilding.
func (w *Wallet) SyncLeaves(ctx context.Context, reader chain.StateReader) ([][]byte, error) {
	leaves, err := reader.Leaves(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching accumulator leaves")
	}

	byCommitment := make(map[string]int64, len(leaves))
	for i, leaf := range leaves {
		byCommitment[string(leaf)] = int64(i)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rec := range w.Records {
		if rec.LeafIndex != note.UnknownLeaf {
			continue
		}
		if idx, ok := byCommitment[string(rec.Note.Commitment)]; ok {
			rec.LeafIndex = idx
		}
	}
	return leaves, nil
}

// ReconcileSpent repairs spent flags against the on-chain nullifier set. A
// locally unspent note whose nullifier is on-chain was spent elsewhere; a
// locally spent note whose nullifier never landed is spendable again.
func (w *Wallet) ReconcileSpent(ctx context.Context, reader chain.StateReader) error {
	spent, err := reader.SpentNullifiers(ctx)
	if err != nil {
		return errors.Wrap(err, "fetching spent nullifiers")
	}
	onChain := make(map[string]struct{}, len(spent))
	for _, nf := range spent {
		onChain[string(nf)] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rec := range w.Records {
		_, isSpent := onChain[string(rec.Note.Nullifier())]
		rec.Spent = isSpent
	}
	return nil
}
