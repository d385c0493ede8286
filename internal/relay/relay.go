// relay.go - Relay/submit service contract.
//
// The relay forwards proofs to the shield program. Submission is not
// idempotent: a retry must check on-chain nullifier state first, otherwise a
// slow first attempt plus a retry double-submits. A nullifier already present
// on-chain for our own inputs is a race with a prior successful submission and
// is recovered by marking local state spent, not surfaced as failure.
//
// Privacy-sensitive paths never fall back to a non-private submission path on
// relay failure; that would leak the signer.

package relay

import (
	"context"
	"errors"
	"math/big"

	"github.com/noctura/shield/internal/delivery"
)

var (
	// ErrNullifierSpent means the program rejected an input nullifier as
	// already consumed.
	ErrNullifierSpent = errors.New("relay: nullifier already spent on-chain")
	// ErrStaleRoot means the proof's root fell out of the accepted window.
	ErrStaleRoot = errors.New("relay: proof root not accepted on-chain")
	// ErrUnavailable means the relay could not be reached. Retried with
	// backoff after a nullifier-state check.
	ErrUnavailable = errors.New("relay: service unavailable")
)

// TransferRequest relays a transfer-shaped proof: input nullifiers, output
// commitments and, for private delivery, the encrypted payload published as
// transaction metadata.
type TransferRequest struct {
	Proof             []byte
	Root              []byte
	Nullifiers        [][]byte
	OutputCommitments [][]byte
	EncryptedPayload  *delivery.Encrypted // nil unless shielded-to-shielded
}

// WithdrawRequest relays a withdraw-shaped proof paying out to a public
// address.
type WithdrawRequest struct {
	Proof      []byte
	Root       []byte
	Amount     *big.Int
	Nullifier  []byte
	Recipient  string
	Mint       *big.Int
	CollectFee bool
}

// DepositRequest shields a public amount into a fresh commitment.
type DepositRequest struct {
	Commitment []byte
	Amount     *big.Int
	Mint       *big.Int
	Priority   bool
	Proof      []byte
}

// Receipt is the transaction signature of an accepted submission.
type Receipt struct {
	Signature string
	// LeafIndices are the accumulator positions assigned to the request's
	// output commitments, in order.
	LeafIndices []uint64
}

// Relayer submits shield operations on-chain.
type Relayer interface {
	RelayTransfer(ctx context.Context, req *TransferRequest) (*Receipt, error)
	RelayWithdraw(ctx context.Context, req *WithdrawRequest) (*Receipt, error)
	RelayDeposit(ctx context.Context, req *DepositRequest) (*Receipt, error)
}
