// circuit.go - Consolidation circuit: up to BatchInputs notes of one token
// merged into a single output plus a zero-value dummy note.
//
// Consolidation is the transfer shape widened for input arity: it exists so a
// wallet fragmented into many small notes can be folded back under the
// transfer circuit's input cap.

package consolidate

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"github.com/noctura/shield/internal/merkle"
)

const (
	// BatchInputs is the per-step input cap, tunable independently from the
	// transfer circuit's arity.
	BatchInputs = 8
	// TreeDepth matches the on-chain accumulator height.
	TreeDepth = merkle.DefaultHeight
)

// InputNote is the private opening of one consumed note plus its path.
type InputNote struct {
	Amount       frontend.Variable
	Secret       frontend.Variable
	Blinding     frontend.Variable
	Rho          frontend.Variable
	PathElements [TreeDepth]frontend.Variable
	PathIndices  [TreeDepth]frontend.Variable
	Enabled      frontend.Variable
}

// CircuitConsolidate proves that the output note carries exactly the combined
// value of the consumed batch. The dummy output is fixed at zero value.
type CircuitConsolidate struct {
	// Public
	Root           frontend.Variable             `gnark:",public"`
	TokenMint      frontend.Variable             `gnark:",public"`
	Nullifiers     [BatchInputs]frontend.Variable `gnark:",public"`
	OutCommitment  frontend.Variable             `gnark:",public"`
	DummyCommitment frontend.Variable            `gnark:",public"`

	// Private
	Inputs [BatchInputs]InputNote

	OutAmount   frontend.Variable
	OutSecret   frontend.Variable
	OutBlinding frontend.Variable
	OutRho      frontend.Variable

	DummySecret   frontend.Variable
	DummyBlinding frontend.Variable
	DummyRho      frontend.Variable
}

func (c *CircuitConsolidate) Define(api frontend.API) error {
	sum := frontend.Variable(0)
	for i := 0; i < BatchInputs; i++ {
		in := c.Inputs[i]
		api.AssertIsBoolean(in.Enabled)
		api.AssertIsEqual(api.Mul(in.Amount, api.Sub(1, in.Enabled)), 0)
		api.ToBinary(in.Amount, 64)

		cm := hash5(api, in.Amount, c.TokenMint, in.Secret, in.Blinding, in.Rho)
		root := foldPath(api, cm, in.PathElements, in.PathIndices)
		api.AssertIsEqual(api.Select(in.Enabled, root, c.Root), c.Root)

		api.AssertIsEqual(c.Nullifiers[i], hash2(api, in.Secret, in.Rho))
		sum = api.Add(sum, in.Amount)
	}

	api.ToBinary(c.OutAmount, 64)
	api.AssertIsEqual(c.OutCommitment,
		hash5(api, c.OutAmount, c.TokenMint, c.OutSecret, c.OutBlinding, c.OutRho))
	api.AssertIsEqual(c.DummyCommitment,
		hash5(api, 0, c.TokenMint, c.DummySecret, c.DummyBlinding, c.DummyRho))

	// Conservation: the whole batch value lands in the single output.
	api.AssertIsEqual(sum, c.OutAmount)
	return nil
}

func hash5(api frontend.API, amount, mint, secret, blinding, rho frontend.Variable) frontend.Variable {
	h, _ := mimc.NewMiMC(api)
	h.Write(amount)
	h.Write(mint)
	h.Write(secret)
	h.Write(blinding)
	h.Write(rho)
	return h.Sum()
}

func hash2(api frontend.API, secret, rho frontend.Variable) frontend.Variable {
	h, _ := mimc.NewMiMC(api)
	h.Write(secret)
	h.Write(rho)
	return h.Sum()
}

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
