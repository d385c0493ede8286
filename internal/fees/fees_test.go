package fees

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noctura/shield/internal/note"
)

func feeNotes(token string, amounts ...int64) []*note.Record {
	mint := note.MintForToken(token)
	out := make([]*note.Record, len(amounts))
	for i, a := range amounts {
		n := note.New(big.NewInt(a), mint, note.RandomBytes(32))
		out[i] = note.NewRecord(n, "owner", token, int64(i), "")
	}
	return out
}

func TestPlanFeeInlineForFeeToken(t *testing.T) {
	a := NewAccountant("NOC", big.NewInt(100), 30, 50)
	plan, err := a.PlanFee("NOC", nil)
	require.NoError(t, err)
	require.Equal(t, FundInline, plan.Mode)
	require.Equal(t, int64(100), plan.Fee.Int64())
	require.Nil(t, plan.FeeNote)
	require.Nil(t, plan.Split)
}

func TestPlanFeeExactNote(t *testing.T) {
	a := NewAccountant("NOC", big.NewInt(100), 30, 50)
	notes := feeNotes("NOC", 500, 100, 90)
	plan, err := a.PlanFee("USDC", notes)
	require.NoError(t, err)
	require.Equal(t, FundSeparateNote, plan.Mode)
	require.NotNil(t, plan.FeeNote)
	require.Equal(t, int64(100), plan.FeeNote.Note.Amount.Int64())
	require.Nil(t, plan.Split, "exact note needs no manufacture step")
}

func TestPlanFeeManufactureFromSmallestCoveringNote(t *testing.T) {
	a := NewAccountant("NOC", big.NewInt(100), 30, 50)
	notes := feeNotes("NOC", 900, 150, 90)
	plan, err := a.PlanFee("USDC", notes)
	require.NoError(t, err)
	require.Equal(t, FundSeparateNote, plan.Mode)
	require.Nil(t, plan.FeeNote, "fee note exists only after the split step runs")
	require.NotNil(t, plan.Split)
	require.Equal(t, int64(150), plan.Split.Source.Note.Amount.Int64())
	require.Equal(t, int64(100), plan.Split.Fee.Int64())
	require.Equal(t, int64(50), plan.Split.Change.Int64())
}

func TestPlanFeeInsufficientFeeFunds(t *testing.T) {
	a := NewAccountant("NOC", big.NewInt(100), 30, 50)
	notes := feeNotes("NOC", 90, 60) // 150 total, but no single note covers 100
	_, err := a.PlanFee("USDC", notes)
	require.ErrorIs(t, err, ErrInsufficientFeeFunds)
}

func TestPlanFeeIgnoresSpentNotes(t *testing.T) {
	a := NewAccountant("NOC", big.NewInt(100), 30, 50)
	notes := feeNotes("NOC", 100)
	notes[0].Spent = true
	_, err := a.PlanFee("USDC", notes)
	require.ErrorIs(t, err, ErrInsufficientFeeFunds)
}

func TestPlanFeeRejectsWrongMint(t *testing.T) {
	a := NewAccountant("NOC", big.NewInt(100), 30, 50)
	notes := feeNotes("USDC", 100)
	_, err := a.PlanFee("USDC", notes)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInsufficientFeeFunds)
}

func TestDepositFeeBps(t *testing.T) {
	a := NewAccountant("NOC", big.NewInt(100), 30, 50)
	require.Equal(t, int64(30), a.DepositFee(big.NewInt(100_000), false).Int64())
	require.Equal(t, int64(50), a.DepositFee(big.NewInt(100_000), true).Int64())
	// Rounds down on small amounts.
	require.Equal(t, int64(0), a.DepositFee(big.NewInt(100), false).Int64())
}

func TestPriorityFeeNeverUndercutsBase(t *testing.T) {
	a := NewAccountant("NOC", big.NewInt(100), 80, 20)
	require.Equal(t, a.DepositFee(big.NewInt(100_000), false), a.DepositFee(big.NewInt(100_000), true))
}
