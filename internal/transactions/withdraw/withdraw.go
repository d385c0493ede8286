// withdraw.go - Witness construction for the withdraw circuit.

package withdraw

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/noctura/shield/internal/merkle"
	"github.com/noctura/shield/internal/note"
)

// Assignment is a fully populated withdraw witness plus the derived public
// material the relay request needs.
type Assignment struct {
	Circuit   *CircuitWithdraw
	Root      []byte
	Nullifier []byte
}

// BuildWitness assembles the circuit assignment for a full spend of n paying
// out to recipient (an opaque public address string, hashed into the field).
func BuildWitness(n *note.Note, proof *merkle.Proof, recipient string) (*Assignment, error) {
	if !proof.Verify(n.Commitment) {
		return nil, fmt.Errorf("withdraw: inclusion proof does not fold to its root")
	}
	if len(proof.PathElements) != TreeDepth {
		return nil, fmt.Errorf("withdraw: proof depth %d, want %d", len(proof.PathElements), TreeDepth)
	}

	c := &CircuitWithdraw{
		Root:      new(big.Int).SetBytes(proof.Root).String(),
		TokenMint: n.TokenMint.String(),
		Amount:    n.Amount.String(),
		Nullifier: new(big.Int).SetBytes(n.Nullifier()).String(),
		Recipient: RecipientField(recipient).String(),
		Secret:    new(big.Int).SetBytes(n.Secret).String(),
		Blinding:  new(big.Int).SetBytes(n.Blinding).String(),
		Rho:       new(big.Int).SetBytes(n.Rho).String(),
	}
	for l := 0; l < TreeDepth; l++ {
		c.PathElements[l] = new(big.Int).SetBytes(proof.PathElements[l]).String()
		c.PathIndices[l] = proof.PathIndices[l]
	}

	return &Assignment{
		Circuit:   c,
		Root:      proof.Root,
		Nullifier: n.Nullifier(),
	}, nil
}

// RecipientField maps a public address string onto a field element. The same
// mapping runs on-chain, so the bound value and the payout target agree.
func RecipientField(recipient string) *big.Int {
	sum := sha256.Sum256([]byte(recipient))
	// Drop the top byte to stay below the scalar field modulus.
	return new(big.Int).SetBytes(sum[1:])
}
