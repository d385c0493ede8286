// circuit.go - Transfer circuit: up to MaxInputs shielded inputs, two
// shielded outputs (recipient and change), one token type per proof.
//
// Unused input slots are disabled: their amounts are constrained to zero and
// their membership check is skipped, but their nullifier PRF is still bound so
// the public signal layout stays fixed.

package transfer

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"github.com/noctura/shield/internal/merkle"
)

const (
	// MaxInputs is the circuit's input arity.
	MaxInputs = 4
	// TreeDepth matches the on-chain accumulator height.
	TreeDepth = merkle.DefaultHeight
)

// InputNote is the private opening of one spent note plus its inclusion path.
type InputNote struct {
	Amount       frontend.Variable
	Secret       frontend.Variable
	Blinding     frontend.Variable
	Rho          frontend.Variable
	PathElements [TreeDepth]frontend.Variable
	PathIndices  [TreeDepth]frontend.Variable
	Enabled      frontend.Variable
}

// OutputNote is the private opening of one created note.
type OutputNote struct {
	Amount   frontend.Variable
	Secret   frontend.Variable
	Blinding frontend.Variable
	Rho      frontend.Variable
}

// CircuitTransfer proves a balanced spend of up to MaxInputs notes into two
// outputs under one accumulator root.
type CircuitTransfer struct {
	// Public inputs
	Root           frontend.Variable            `gnark:",public"`
	TokenMint      frontend.Variable            `gnark:",public"`
	Fee            frontend.Variable            `gnark:",public"`
	Nullifiers     [MaxInputs]frontend.Variable `gnark:",public"`
	OutCommitments [2]frontend.Variable         `gnark:",public"`

	// Private inputs
	Inputs  [MaxInputs]InputNote
	Outputs [2]OutputNote
}

func (c *CircuitTransfer) Define(api frontend.API) error {
	sum := frontend.Variable(0)
	for i := 0; i < MaxInputs; i++ {
		in := c.Inputs[i]
		api.AssertIsBoolean(in.Enabled)

		// Disabled slots contribute nothing to the balance.
		api.AssertIsEqual(api.Mul(in.Amount, api.Sub(1, in.Enabled)), 0)
		api.ToBinary(in.Amount, 64)

		// cm = H(amount, mint, secret, blinding, rho)
		cm := commitment(api, in.Amount, c.TokenMint, in.Secret, in.Blinding, in.Rho)

		// Membership: fold the path; enforce only for enabled slots.
		root := foldPath(api, cm, in.PathElements, in.PathIndices)
		api.AssertIsEqual(api.Select(in.Enabled, root, c.Root), c.Root)

		// nf = H'(secret, rho), bound for every slot.
		api.AssertIsEqual(c.Nullifiers[i], nullifier(api, in.Secret, in.Rho))

		sum = api.Add(sum, in.Amount)
	}

	outSum := frontend.Variable(0)
	for j := 0; j < 2; j++ {
		out := c.Outputs[j]
		api.ToBinary(out.Amount, 64)
		cm := commitment(api, out.Amount, c.TokenMint, out.Secret, out.Blinding, out.Rho)
		api.AssertIsEqual(c.OutCommitments[j], cm)
		outSum = api.Add(outSum, out.Amount)
	}

	// Conservation: inputs = recipient + change + fee (fee token only; the
	// witness builder sets Fee to zero for other tokens).
	api.AssertIsEqual(sum, api.Add(outSum, c.Fee))
	return nil
}

// commitment computes the note commitment inside the circuit.
func commitment(api frontend.API, amount, mint, secret, blinding, rho frontend.Variable) frontend.Variable {
	h, _ := mimc.NewMiMC(api)
	h.Write(amount)
	h.Write(mint)
	h.Write(secret)
	h.Write(blinding)
	h.Write(rho)
	return h.Sum()
}

// nullifier computes the spend PRF inside the circuit.
func nullifier(api frontend.API, secret, rho frontend.Variable) frontend.Variable {
	h, _ := mimc.NewMiMC(api)
	h.Write(secret)
	h.Write(rho)
	return h.Sum()
}

// foldPath recomputes the root implied by a leaf and its sibling path.
func foldPath(api frontend.API, leaf frontend.Variable, elements, indices [TreeDepth]frontend.Variable) frontend.Variable {
	current := leaf
	for l := 0; l < TreeDepth; l++ {
		api.AssertIsBoolean(indices[l])
		left := api.Select(indices[l], elements[l], current)
		right := api.Select(indices[l], current, elements[l])
		h, _ := mimc.NewMiMC(api)
		h.Write(left)
		h.Write(right)
		current = h.Sum()
	}
	return current
}
