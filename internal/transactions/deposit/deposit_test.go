package deposit

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noctura/shield/internal/note"
)

func TestBuildWitnessMintsOwnedNote(t *testing.T) {
	secret := note.RandomBytes(32)

	asn, err := BuildWitness(big.NewInt(500), big.NewInt(3), secret)
	require.NoError(t, err)
	assert.Equal(t, asn.Note.Commitment, asn.Commitment)
	assert.Equal(t, secret, asn.Note.Secret)
	assert.Zero(t, asn.Note.Amount.Cmp(big.NewInt(500)))
}

func TestBuildWitnessFreshRandomnessPerCall(t *testing.T) {
	secret := note.RandomBytes(32)

	a, err := BuildWitness(big.NewInt(500), big.NewInt(3), secret)
	require.NoError(t, err)
	b, err := BuildWitness(big.NewInt(500), big.NewInt(3), secret)
	require.NoError(t, err)
	assert.NotEqual(t, a.Commitment, b.Commitment)
}

func TestBuildWitnessRejectsNonPositiveAmount(t *testing.T) {
	secret := note.RandomBytes(32)

	_, err := BuildWitness(big.NewInt(0), big.NewInt(3), secret)
	require.Error(t, err)
	_, err = BuildWitness(big.NewInt(-5), big.NewInt(3), secret)
	require.Error(t, err)
}
