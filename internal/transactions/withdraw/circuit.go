// circuit.go - Withdraw circuit: one shielded input, one public payout.
//
// Withdraw is always a full spend: the public amount equals the input note's
// amount and no change note exists. The recipient address is bound into the
// public signals so the relay cannot redirect the payout.

package withdraw

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"github.com/noctura/shield/internal/merkle"
)

// TreeDepth matches the on-chain accumulator height.
const TreeDepth = merkle.DefaultHeight

// CircuitWithdraw proves knowledge of the opening of a committed note and
// releases its full amount to a public recipient.
type CircuitWithdraw struct {
	// Public
	Root      frontend.Variable `gnark:",public"`
	TokenMint frontend.Variable `gnark:",public"`
	Amount    frontend.Variable `gnark:",public"`
	Nullifier frontend.Variable `gnark:",public"`
	Recipient frontend.Variable `gnark:",public"`

	// Private
	Secret       frontend.Variable
	Blinding     frontend.Variable
	Rho          frontend.Variable
	PathElements [TreeDepth]frontend.Variable
	PathIndices  [TreeDepth]frontend.Variable
}

func (c *CircuitWithdraw) Define(api frontend.API) error {
	api.ToBinary(c.Amount, 64)

	// (1) Commitment over the full public amount.
	hasher, _ := mimc.NewMiMC(api)
	hasher.Write(c.Amount)
	hasher.Write(c.TokenMint)
	hasher.Write(c.Secret)
	hasher.Write(c.Blinding)
	hasher.Write(c.Rho)
	cm := hasher.Sum()

	// (2) Membership of the commitment under the public root.
	current := cm
	for l := 0; l < TreeDepth; l++ {
		api.AssertIsBoolean(c.PathIndices[l])
		left := api.Select(c.PathIndices[l], c.PathElements[l], current)
		right := api.Select(c.PathIndices[l], current, c.PathElements[l])
		h, _ := mimc.NewMiMC(api)
		h.Write(left)
		h.Write(right)
		current = h.Sum()
	}
	api.AssertIsEqual(c.Root, current)

	// (3) Nullifier PRF.
	api.AssertIsEqual(c.Nullifier, PRF(api, c.Secret, c.Rho))

	// (4) Tie the recipient into the constraint system so the proof cannot
	// be replayed with a different payout address.
	_ = api.Mul(c.Recipient, c.Recipient)

	return nil
}

// PRF computes the spend nullifier inside the circuit.
func PRF(api frontend.API, secret, rho frontend.Variable) frontend.Variable {
	h, _ := mimc.NewMiMC(api)
	h.Write(secret)
	h.Write(rho)
	return h.Sum()
}
