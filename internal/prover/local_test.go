package prover

import (
	"context"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noctura/shield/internal/note"
	"github.com/noctura/shield/internal/transactions/deposit"
)

func TestDepositProveVerifyRoundTrip(t *testing.T) {
	l := NewLocal("")
	asn, err := deposit.BuildWitness(big.NewInt(750), big.NewInt(3), note.RandomBytes(32))
	require.NoError(t, err)

	pf, err := l.Prove(context.Background(), CircuitDeposit, asn.Circuit)
	require.NoError(t, err)
	assert.Equal(t, CircuitDeposit, pf.Circuit)
	require.NoError(t, l.Verify(CircuitDeposit, pf))

	// A proof only verifies against the public inputs it was made for.
	tampered := &Proof{
		Circuit:       pf.Circuit,
		ProofBytes:    pf.ProofBytes,
		PublicWitness: append([]byte(nil), pf.PublicWitness...),
	}
	tampered.PublicWitness[len(tampered.PublicWitness)-1] ^= 0xFF
	require.Error(t, l.Verify(CircuitDeposit, tampered))
}

func TestProveRejectsUnknownCircuit(t *testing.T) {
	l := NewLocal("")

	_, err := l.Prove(context.Background(), "melt", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCircuit))
}

func TestProveHonorsCancelledContext(t *testing.T) {
	l := NewLocal("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Prove(ctx, CircuitDeposit, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
