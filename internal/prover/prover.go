// prover.go - Proving backend abstraction.
//
// Every shielded operation ends in a Groth16 proof over one of a fixed set of
// circuits. The Prover interface hides whether proving happens in-process or
// is delegated, so the orchestrator and tests can swap backends freely.

package prover

import (
	"context"

	"github.com/consensys/gnark/frontend"
	"github.com/pkg/errors"
)

// Circuit names accepted by a Prover.
const (
	CircuitDeposit     = "deposit"
	CircuitWithdraw    = "withdraw"
	CircuitTransfer    = "transfer"
	CircuitConsolidate = "consolidate"
)

// ErrUnknownCircuit is returned for a circuit name outside the fixed set.
var ErrUnknownCircuit = errors.New("prover: unknown circuit")

// Proof carries a serialized Groth16 proof together with its serialized
// public witness, ready to travel in a relay request.
type Proof struct {
	Circuit       string `json:"circuit"`
	ProofBytes    []byte `json:"proof"`
	PublicWitness []byte `json:"publicWitness"`
}

// Prover turns a populated circuit assignment into a proof. Prove is CPU
// heavy; implementations honor ctx cancellation between phases.
type Prover interface {
	Prove(ctx context.Context, circuit string, assignment frontend.Circuit) (*Proof, error)
}

// Verifier checks a proof against the named circuit's verifying key.
type Verifier interface {
	Verify(circuit string, proof *Proof) error
}
