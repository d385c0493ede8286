// plan.go - Request, pipeline state and result types for the orchestrator.
//
// A logical user request is one of a small set of shapes. The pipeline threads
// one explicit typed state object through its steps; there is no shared
// mutable slot between them.

package engine

import (
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/google/uuid"

	"github.com/noctura/shield/internal/delivery"
	"github.com/noctura/shield/internal/note"
)

// Kind selects the pipeline shape for a request.
type Kind string

const (
	// KindWithdraw pays a note's full value out to a public recipient. When
	// no exactly sized note exists the pipeline degrades to the partial
	// shape transparently.
	KindWithdraw Kind = "withdraw"
	// KindPartialTransfer splits inputs into (recipient share, change) and
	// then withdraws the recipient share to a public address.
	KindPartialTransfer Kind = "partial-transfer"
	// KindShieldedToShielded moves value to another shielded wallet, the
	// recipient note travelling encrypted in transaction metadata. Covers
	// single- and multi-note funding alike.
	KindShieldedToShielded Kind = "shielded-to-shielded"
	// KindConsolidation folds fragmented notes back under the input cap.
	KindConsolidation Kind = "consolidation"
)

// State is the pipeline position of a request.
type State string

const (
	StatePlanning        State = "planning"
	StateProofGeneration State = "proof-generation"
	StateSubmitting      State = "submitting"
	StateReconciling     State = "reconciling"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Request describes one logical transfer.
type Request struct {
	ID        uuid.UUID
	Kind      Kind
	TokenType string
	Amount    *big.Int

	// Recipient is the public payout address for withdraw shapes.
	Recipient string
	// RecipientKey is the delivery public key for shielded shapes.
	RecipientKey *bls12377.G1Affine
}

// NewRequest allocates a request with a fresh identifier.
func NewRequest(kind Kind, tokenType string, amount *big.Int) *Request {
	return &Request{ID: uuid.New(), Kind: kind, TokenType: tokenType, Amount: amount}
}

// CommittedStep records one submission that landed on-chain. Failed pipelines
// still report their committed prefix so the caller never has to guess what
// the chain observed.
type CommittedStep struct {
	Name       string
	Signature  string
	Nullifiers [][]byte
	Outputs    [][]byte
}

// Result is the terminal report of one request.
type Result struct {
	ID    uuid.UUID
	State State
	Steps []CommittedStep

	// Outgoing tracks the delivery state machine for shielded shapes.
	Outgoing *delivery.Outgoing
	// Change is the change record registered to the wallet, if any.
	Change *note.Record
	// Recovered is set when a nullifier race with our own earlier
	// submission was resolved as success.
	Recovered bool
}
