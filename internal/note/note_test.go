package note

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitmentDeterminism(t *testing.T) {
	amount := big.NewInt(12345)
	mint := MintForToken("NOC")
	secret := []byte("wallet-secret-0000000000000000aa")
	blinding := []byte("blinding-000000000000000000000bb")
	rho := []byte("rho-0000000000000000000000000(cc")

	cm1 := ComputeCommitment(amount, mint, secret, blinding, rho)
	cm2 := ComputeCommitment(amount, mint, secret, blinding, rho)
	require.Equal(t, cm1, cm2)

	nf1 := ComputeNullifier(secret, rho)
	nf2 := ComputeNullifier(secret, rho)
	require.Equal(t, nf1, nf2)

	// Changing any single input changes the derived value.
	assert.NotEqual(t, cm1, ComputeCommitment(big.NewInt(12346), mint, secret, blinding, rho))
	assert.NotEqual(t, cm1, ComputeCommitment(amount, MintForToken("USDC"), secret, blinding, rho))
	assert.NotEqual(t, cm1, ComputeCommitment(amount, mint, []byte("other-secret"), blinding, rho))
	assert.NotEqual(t, cm1, ComputeCommitment(amount, mint, secret, []byte("other-blinding"), rho))
	assert.NotEqual(t, cm1, ComputeCommitment(amount, mint, secret, blinding, []byte("other-rho")))
	assert.NotEqual(t, nf1, ComputeNullifier([]byte("other-secret"), rho))
	assert.NotEqual(t, nf1, ComputeNullifier(secret, []byte("other-rho")))
}

func TestCommitmentSampleCollisionCheck(t *testing.T) {
	mint := MintForToken("NOC")
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		n := New(big.NewInt(int64(i)), mint, RandomBytes(32))
		cm := string(n.Commitment)
		require.False(t, seen[cm], "commitment collision at sample %d", i)
		seen[cm] = true
		nf := string(n.Nullifier())
		require.False(t, seen[nf], "nullifier collided with a commitment at sample %d", i)
		seen[nf] = true
	}
}

func TestNullifierUnlinkableToCommitment(t *testing.T) {
	n := New(big.NewInt(500), MintForToken("NOC"), RandomBytes(32))
	// The nullifier is a different derivation than the commitment.
	assert.NotEqual(t, n.Commitment, n.Nullifier())
}

func TestMintForTokenCanonical(t *testing.T) {
	require.Equal(t, MintForToken("NOC"), MintForToken("NOC"))
	require.NotEqual(t, MintForToken("NOC"), MintForToken("USDC"))
}

func TestNewNotePopulatesAllFields(t *testing.T) {
	n := New(big.NewInt(42), MintForToken("NOC"), RandomBytes(32))
	require.NotEmpty(t, n.Secret)
	require.NotEmpty(t, n.Blinding)
	require.NotEmpty(t, n.Rho)
	require.NotEmpty(t, n.Commitment)
	require.NotEqual(t, n.Blinding, n.Rho)
	assert.Equal(t, n.Commitment,
		ComputeCommitment(n.Amount, n.TokenMint, n.Secret, n.Blinding, n.Rho))
}
