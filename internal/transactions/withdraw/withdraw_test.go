package withdraw

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noctura/shield/internal/merkle"
	"github.com/noctura/shield/internal/note"
)

func provenNote(t *testing.T, amount int64) (*note.Note, *merkle.Proof) {
	t.Helper()
	n := note.New(big.NewInt(amount), big.NewInt(3), note.RandomBytes(32))
	tree := merkle.NewTree(TreeDepth)
	_, err := tree.Append(n.Commitment)
	require.NoError(t, err)
	proof, err := tree.Prove(0)
	require.NoError(t, err)
	return n, proof
}

func TestBuildWitnessFullSpend(t *testing.T) {
	n, proof := provenNote(t, 250)

	asn, err := BuildWitness(n, proof, "pub-address-1")
	require.NoError(t, err)
	assert.Equal(t, proof.Root, asn.Root)
	assert.Equal(t, n.Nullifier(), asn.Nullifier)
}

func TestBuildWitnessRejectsTamperedProof(t *testing.T) {
	n, proof := provenNote(t, 250)
	proof.PathElements[3] = note.RandomBytes(32)

	_, err := BuildWitness(n, proof, "pub-address-1")
	require.Error(t, err)
}

func TestRecipientFieldIsStableAndDistinct(t *testing.T) {
	a := RecipientField("addr-a")
	assert.Zero(t, a.Cmp(RecipientField("addr-a")))
	assert.NotZero(t, a.Cmp(RecipientField("addr-b")))
}
