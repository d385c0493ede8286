package wallet

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noctura/shield/internal/chain"
	"github.com/noctura/shield/internal/note"
)

func newTestWallet(t *testing.T) *Wallet {
	t.Helper()
	w, err := New("alice")
	require.NoError(t, err)
	return w
}

func mintNote(w *Wallet, symbol string, amount int64) *note.Record {
	mint := w.RegisterToken(symbol)
	n := note.New(big.NewInt(amount), mint, w.OwnerSecret)
	rec := note.NewRecord(n, w.Owner(), symbol, note.UnknownLeaf, "sig-test")
	w.AddRecord(rec)
	return rec
}

func TestWalletSaveLoadRoundTrip(t *testing.T) {
	w := newTestWallet(t)
	mintNote(w, "USDC", 500)

	path := filepath.Join(t.TempDir(), "alice_wallet.json")
	require.NoError(t, w.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, w.Name, loaded.Name)
	assert.Equal(t, w.Owner(), loaded.Owner())
	assert.Equal(t, w.OwnerSecret, loaded.OwnerSecret)
	require.Len(t, loaded.Records, 1)
	assert.Equal(t, w.Records[0].Note.Commitment, loaded.Records[0].Note.Commitment)
	assert.Equal(t, big.NewInt(500), loaded.Records[0].Note.Amount)
}

func TestBalanceCountsOnlyUnspentOfToken(t *testing.T) {
	w := newTestWallet(t)
	mintNote(w, "USDC", 5)
	mintNote(w, "USDC", 3)
	spent := mintNote(w, "USDC", 100)
	mintNote(w, "SOL", 7)

	require.NoError(t, w.MarkSpent(spent.Note.Commitment))

	assert.Equal(t, big.NewInt(8), w.Balance("USDC"))
	assert.Equal(t, big.NewInt(7), w.Balance("SOL"))
	assert.Len(t, w.UnspentByToken("USDC"), 2)
}

func TestMarkSpentUnknownCommitment(t *testing.T) {
	w := newTestWallet(t)
	err := w.MarkSpent([]byte("nope"))
	assert.ErrorIs(t, err, ErrNoSuchNote)
}

func TestAddDiscoveredIsIdempotent(t *testing.T) {
	w := newTestWallet(t)
	mint := w.RegisterToken("USDC")
	n := note.New(big.NewInt(42), mint, w.OwnerSecret)

	ctx := context.Background()
	require.NoError(t, w.AddDiscovered(ctx, n, "sig-1"))
	require.NoError(t, w.AddDiscovered(ctx, n, "sig-2"))

	require.Len(t, w.Records, 1)
	assert.True(t, w.HasNote(n.Commitment))
	assert.Equal(t, "USDC", w.Records[0].TokenType)
	assert.Equal(t, note.UnknownLeaf, w.Records[0].LeafIndex)
}

func TestSyncLeavesResolvesUnknownPositions(t *testing.T) {
	w := newTestWallet(t)
	mem := chain.NewMemory(0)

	rec := mintNote(w, "USDC", 10)
	idx, err := mem.AppendLeaf(rec.Note.Commitment)
	require.NoError(t, err)

	leaves, err := w.SyncLeaves(context.Background(), mem)
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, int64(idx), rec.LeafIndex)
}

func TestReconcileSpentFollowsChainBothWays(t *testing.T) {
	w := newTestWallet(t)
	mem := chain.NewMemory(0)
	ctx := context.Background()

	spentElsewhere := mintNote(w, "USDC", 10)
	falselySpent := mintNote(w, "USDC", 20)
	falselySpent.Spent = true

	require.NoError(t, mem.SpendNullifier(spentElsewhere.Note.Nullifier()))
	require.NoError(t, w.ReconcileSpent(ctx, mem))

	assert.True(t, spentElsewhere.Spent, "note spent on-chain must be flagged locally")
	assert.False(t, falselySpent.Spent, "note whose spend never landed must be spendable again")
}

func TestPipelineLockIsExclusive(t *testing.T) {
	w := newTestWallet(t)

	require.NoError(t, w.BeginPipeline())
	assert.ErrorIs(t, w.BeginPipeline(), ErrPipelineBusy)

	w.EndPipeline()
	assert.NoError(t, w.BeginPipeline())
}
