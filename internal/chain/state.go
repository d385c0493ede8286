// state.go - On-chain state accessor contract.
//
// The accumulator and nullifier set are authoritative on-chain; the client's
// tree is a cache of them. This package defines the narrow read surface the
// engine needs to keep that cache honest.

package chain

import "context"

// StateReader exposes the shield program's public state.
type StateReader interface {
	// Leaves returns the ordered commitment list of the accumulator. The
	// on-chain insertion order is authoritative and must not be reindexed.
	Leaves(ctx context.Context) ([][]byte, error)

	// ContainsRoot reports whether root is inside the verifier's accepted
	// root window.
	ContainsRoot(ctx context.Context, root []byte) (bool, error)

	// IsNullifierSpent reports whether a nullifier is already on-chain.
	IsNullifierSpent(ctx context.Context, nullifier []byte) (bool, error)

	// SpentNullifiers returns every nullifier recorded on-chain, used to
	// reconcile local spent flags against ground truth.
	SpentNullifiers(ctx context.Context) ([][]byte, error)
}
