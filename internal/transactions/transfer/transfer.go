// transfer.go - Witness construction for the transfer circuit.

package transfer

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/noctura/shield/internal/merkle"
	"github.com/noctura/shield/internal/note"
)

// Input pairs a spent note with its inclusion proof. All inputs of one
// witness must prove against the same root and carry the same token mint.
type Input struct {
	Note  *note.Note
	Proof *merkle.Proof
}

// Assignment is a fully populated transfer witness plus the derived public
// material the relay request needs.
type Assignment struct {
	Circuit    *CircuitTransfer
	Root       []byte
	Nullifiers [][]byte // nullifiers of the enabled inputs, in slot order
}

// BuildWitness assembles the circuit assignment for spending inputs into
// (recipient, change). fee must be zero unless the moved token is the fee
// token; conservation is checked here, before any proving time is spent.
func BuildWitness(inputs []Input, outputs [2]*note.Note, fee *big.Int) (*Assignment, error) {
	if len(inputs) == 0 || len(inputs) > MaxInputs {
		return nil, fmt.Errorf("transfer: want 1..%d inputs, got %d", MaxInputs, len(inputs))
	}
	mint := inputs[0].Note.TokenMint
	root := inputs[0].Proof.Root

	inSum := new(big.Int)
	for i, in := range inputs {
		if in.Note.TokenMint.Cmp(mint) != 0 {
			return nil, fmt.Errorf("transfer: input %d has a different token mint", i)
		}
		if !bytes.Equal(in.Proof.Root, root) {
			return nil, fmt.Errorf("transfer: input %d proves against a different root", i)
		}
		if len(in.Proof.PathElements) != TreeDepth {
			return nil, fmt.Errorf("transfer: input %d proof depth %d, want %d", i, len(in.Proof.PathElements), TreeDepth)
		}
		if !in.Proof.Verify(in.Note.Commitment) {
			return nil, fmt.Errorf("transfer: input %d inclusion proof does not fold to its root", i)
		}
		inSum.Add(inSum, in.Note.Amount)
	}
	for j, out := range outputs {
		if out.TokenMint.Cmp(mint) != 0 {
			return nil, fmt.Errorf("transfer: output %d has a different token mint", j)
		}
	}

	outSum := new(big.Int).Add(outputs[0].Amount, outputs[1].Amount)
	outSum.Add(outSum, fee)
	if inSum.Cmp(outSum) != 0 {
		return nil, fmt.Errorf("transfer: conservation violated: inputs %s != outputs+fee %s", inSum, outSum)
	}

	c := &CircuitTransfer{
		Root:      varFromBytes(root),
		TokenMint: mint.String(),
		Fee:       fee.String(),
	}

	asn := &Assignment{Circuit: c, Root: root}
	for i := 0; i < MaxInputs; i++ {
		var n *note.Note
		var proof *merkle.Proof
		enabled := i < len(inputs)
		if enabled {
			n = inputs[i].Note
			proof = inputs[i].Proof
		} else {
			// Dummy slot: zero amount, fresh randomness, path unused.
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

	for j, out := range outputs {
		c.Outputs[j] = OutputNote{
			Amount:   out.Amount.String(),
			Secret:   varFromBytes(out.Secret),
			Blinding: varFromBytes(out.Blinding),
			Rho:      varFromBytes(out.Rho),
		}
		c.OutCommitments[j] = varFromBytes(out.Commitment)
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
