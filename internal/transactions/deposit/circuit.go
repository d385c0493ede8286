// circuit.go - Deposit circuit: proves a fresh commitment is well formed over
// a publicly declared amount and token mint.
//
// Deposits shield public funds, so the value is not hidden; the proof only
// binds the commitment to the declared amount before the leaf is inserted.

package deposit

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// CircuitDeposit binds Commitment to the public (Amount, TokenMint) pair
// under a private opening.
type CircuitDeposit struct {
	// Public
	Commitment frontend.Variable `gnark:",public"`
	Amount     frontend.Variable `gnark:",public"`
	TokenMint  frontend.Variable `gnark:",public"`

	// Private
	Secret   frontend.Variable
	Blinding frontend.Variable
	Rho      frontend.Variable
}

func (c *CircuitDeposit) Define(api frontend.API) error {
	api.ToBinary(c.Amount, 64)

	h, _ := mimc.NewMiMC(api)
	h.Write(c.Amount)
	h.Write(c.TokenMint)
	h.Write(c.Secret)
	h.Write(c.Blinding)
	h.Write(c.Rho)
	api.AssertIsEqual(c.Commitment, h.Sum())
	return nil
}
