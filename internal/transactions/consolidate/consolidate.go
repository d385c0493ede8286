// consolidate.go - Witness construction for the consolidation circuit.

package consolidate

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/noctura/shield/internal/merkle"
	"github.com/noctura/shield/internal/note"
)

// Input pairs a consumed note with its inclusion proof. All inputs of one
// batch must prove against the same root and carry the same token mint.
type Input struct {
	Note  *note.Note
	Proof *merkle.Proof
}

// Assignment is a populated consolidation witness plus the public material
// the relay request needs.
type Assignment struct {
	Circuit    *CircuitConsolidate
	Root       []byte
	Nullifiers [][]byte // nullifiers of the enabled inputs, in slot order
	Output     *note.Note
	Dummy      *note.Note
}

// BuildWitness folds a batch of at most BatchInputs notes into a single
// output owned by ownerSecret and carrying their combined value. The dummy
// output is minted here at zero value so each step lands the fixed
// two-commitment shape on chain.
func BuildWitness(inputs []Input, ownerSecret []byte) (*Assignment, error) {
	if len(inputs) < 2 || len(inputs) > BatchInputs {
		return nil, fmt.Errorf("consolidate: want 2..%d inputs, got %d", BatchInputs, len(inputs))
	}
	mint := inputs[0].Note.TokenMint
	root := inputs[0].Proof.Root

	total := new(big.Int)
	for i, in := range inputs {
		if in.Note.TokenMint.Cmp(mint) != 0 {
			return nil, fmt.Errorf("consolidate: input %d has a different token mint", i)
		}
		if !bytes.Equal(in.Proof.Root, root) {
			return nil, fmt.Errorf("consolidate: input %d proves against a different root", i)
		}
		if len(in.Proof.PathElements) != TreeDepth {
			return nil, fmt.Errorf("consolidate: input %d proof depth %d, want %d", i, len(in.Proof.PathElements), TreeDepth)
		}
		if !in.Proof.Verify(in.Note.Commitment) {
			return nil, fmt.Errorf("consolidate: input %d inclusion proof does not fold to its root", i)
		}
		total.Add(total, in.Note.Amount)
	}

	out := note.New(total, mint, ownerSecret)
	dummy := note.New(new(big.Int), mint, note.RandomBytes(32))

	c := &CircuitConsolidate{
		Root:            varFromBytes(root),
		TokenMint:       mint.String(),
		OutCommitment:   varFromBytes(out.Commitment),
		DummyCommitment: varFromBytes(dummy.Commitment),
		OutAmount:       out.Amount.String(),
		OutSecret:       varFromBytes(out.Secret),
		OutBlinding:     varFromBytes(out.Blinding),
		OutRho:          varFromBytes(out.Rho),
		DummySecret:     varFromBytes(dummy.Secret),
		DummyBlinding:   varFromBytes(dummy.Blinding),
		DummyRho:        varFromBytes(dummy.Rho),
	}

	asn := &Assignment{Circuit: c, Root: root, Output: out, Dummy: dummy}
	for i := 0; i < BatchInputs; i++ {
		var n *note.Note
		var proof *merkle.Proof
		enabled := i < len(inputs)
		if enabled {
			n = inputs[i].Note
			proof = inputs[i].Proof
		} else {
			n = note.New(new(big.Int), mint, note.RandomBytes(32))
			proof = &merkle.Proof{
				PathElements: make([][]byte, TreeDepth),
				PathIndices:  make([]int, TreeDepth),
			}
			for l := range proof.PathElements {
				proof.PathElements[l] = []byte{0}
			}
		}

		slot := InputNote{
			Amount:   n.Amount.String(),
			Secret:   varFromBytes(n.Secret),
			Blinding: varFromBytes(n.Blinding),
			Rho:      varFromBytes(n.Rho),
			Enabled:  boolVar(enabled),
		}
		for l := 0; l < TreeDepth; l++ {
			slot.PathElements[l] = varFromBytes(proof.PathElements[l])
			slot.PathIndices[l] = proof.PathIndices[l]
		}
		c.Inputs[i] = slot
		c.Nullifiers[i] = varFromBytes(n.Nullifier())
		if enabled {
			asn.Nullifiers = append(asn.Nullifiers, n.Nullifier())
		}
	}
	return asn, nil
}

func varFromBytes(b []byte) frontend.Variable {
	return new(big.Int).SetBytes(b).String()
}

func boolVar(b bool) frontend.Variable {
	if b {
		return 1
	}
	return 0
}
