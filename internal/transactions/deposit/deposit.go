// deposit.go - Witness construction for the deposit circuit.

package deposit

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/noctura/shield/internal/note"
)

// Assignment is a populated deposit witness plus the public material the
// relay request needs.
type Assignment struct {
	Circuit    *CircuitDeposit
	Note       *note.Note
	Commitment []byte
}

// BuildWitness mints a fresh note for the shielded amount and assembles its
// well-formedness witness.
func BuildWitness(amount, mint *big.Int, ownerSecret []byte) (*Assignment, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("deposit: amount must be positive, got %s", amount)
	}
	n := note.New(amount, mint, ownerSecret)

	c := &CircuitDeposit{
		Commitment: varFromBytes(n.Commitment),
		Amount:     amount.String(),
		TokenMint:  mint.String(),
		Secret:     varFromBytes(n.Secret),
		Blinding:   varFromBytes(n.Blinding),
		Rho:        varFromBytes(n.Rho),
	}
	return &Assignment{Circuit: c, Note: n, Commitment: n.Commitment}, nil
}

func varFromBytes(b []byte) frontend.Variable {
	return new(big.Int).SetBytes(b).String()
}
