package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/consensys/gnark/frontend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noctura/shield/internal/chain"
	"github.com/noctura/shield/internal/delivery"
	"github.com/noctura/shield/internal/fees"
	"github.com/noctura/shield/internal/note"
	"github.com/noctura/shield/internal/prover"
	"github.com/noctura/shield/internal/relay"
	"github.com/noctura/shield/internal/wallet"
)

// fakeProver records circuit names; the Local relayer provides the state
// rules under test.
type fakeProver struct {
	circuits []string
}

func (f *fakeProver) Prove(_ context.Context, circuit string, _ frontend.Circuit) (*prover.Proof, error) {
	f.circuits = append(f.circuits, circuit)
	return &prover.Proof{Circuit: circuit, ProofBytes: []byte("fake-proof")}, nil
}

type fixture struct {
	wallet *wallet.Wallet
	mem    *chain.Memory
	prover *fakeProver
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	w, err := wallet.New("alice")
	require.NoError(t, err)
	mem := chain.NewMemory(0)
	fp := &fakeProver{}
	acct := fees.NewAccountant("NOC", big.NewInt(2), 50, 100)
	return &fixture{
		wallet: w,
		mem:    mem,
		prover: fp,
		engine: New(w, fp, relay.NewLocal(mem), mem, acct, 0),
	}
}

func (f *fixture) seed(t *testing.T, symbol string, amounts ...int64) {
	t.Helper()
	mint := f.wallet.RegisterToken(symbol)
	for _, amt := range amounts {
		n := note.New(big.NewInt(amt), mint, f.wallet.OwnerSecret)
		idx, err := f.mem.AppendLeaf(n.Commitment)
		require.NoError(t, err)
		f.wallet.AddRecord(note.NewRecord(n, f.wallet.Owner(), symbol, int64(idx), "sig-seed"))
	}
}

func stepNames(res *Result) []string {
	names := make([]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		names = append(names, s.Name)
	}
	return names
}

func TestDepositMintsNetOfShieldFee(t *testing.T) {
	f := newFixture(t)

	rec, err := f.engine.Deposit(context.Background(), "USDC", big.NewInt(1000), false)
	require.NoError(t, err)

	// 50 bps of 1000 is 5; the note carries the net.
	assert.Equal(t, big.NewInt(995), rec.Note.Amount)
	assert.NotEqual(t, note.UnknownLeaf, rec.LeafIndex)
	assert.Equal(t, big.NewInt(995), f.wallet.Balance("USDC"))
	assert.Equal(t, []string{prover.CircuitDeposit}, f.prover.circuits)
}

func TestDepositPriorityPaysHigherRate(t *testing.T) {
	f := newFixture(t)

	rec, err := f.engine.Deposit(context.Background(), "USDC", big.NewInt(1000), true)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(990), rec.Note.Amount)
}

func TestShieldedTransferDeliversToRecipient(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "NOC", 5, 3, 2)

	bob, err := wallet.New("bob")
	require.NoError(t, err)
	bob.RegisterToken("NOC")

	req := NewRequest(KindShieldedToShielded, "NOC", big.NewInt(4))
	req.RecipientKey = bob.Pk
	res, err := f.engine.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	require.NotNil(t, res.Outgoing)
	assert.Equal(t, delivery.StatusConfirmed, res.Outgoing.Status)

	// Fee token moved: fee folds inline. Inputs [5,3] cover 4+2; change 2
	// plus the untouched 2-note remain.
	assert.Equal(t, big.NewInt(4), f.wallet.Balance("NOC"))

	// Bob claims the note through ordinary discovery.
	scanner := delivery.NewScanner(bob.Keys(), f.mem, bob, 0)
	claimed, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, big.NewInt(4), bob.Balance("NOC"))
}

func TestSelfTransferSkipsDeliveryRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "NOC", 5, 3)

	req := NewRequest(KindShieldedToShielded, "NOC", big.NewInt(4))
	req.RecipientKey = f.wallet.Pk
	res, err := f.engine.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Nil(t, res.Outgoing, "self transfer must not run the delivery state machine")
	payloads, err := f.mem.EncryptedPayloads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, payloads, "self transfer must not publish a payload")

	// 8 in, 2 fee out: recipient share 4 and change 2 both stay ours.
	assert.Equal(t, big.NewInt(6), f.wallet.Balance("NOC"))
}

func TestNonFeeTokenPaysViaSeparateFeeNote(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "USDC", 10)
	f.seed(t, "NOC", 7)

	req := NewRequest(KindShieldedToShielded, "USDC", big.NewInt(4))
	req.RecipientKey = f.wallet.Pk
	res, err := f.engine.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"fee-note-split", "fee-note-spend", "transfer"}, stepNames(res))
	assert.Equal(t, big.NewInt(5), f.wallet.Balance("NOC"), "7 splits into fee 2 and change 5")
	assert.Equal(t, big.NewInt(10), f.wallet.Balance("USDC"), "no cross-token deduction")
}

func TestFeeShortfallFailsBeforeAnyProof(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "USDC", 10)
	f.seed(t, "NOC", 1)

	req := NewRequest(KindShieldedToShielded, "USDC", big.NewInt(4))
	req.RecipientKey = f.wallet.Pk
	res, err := f.engine.Execute(context.Background(), req)

	assert.ErrorIs(t, err, fees.ErrInsufficientFeeFunds)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, f.prover.circuits, "fee planning must fail before proving time is spent")
}

func TestTooManyNotesTriggersConsolidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "NOC", 2, 2, 2, 2, 2, 2)

	// 9 + fee 2 = 11 needs six 2-notes; no 4-subset covers it.
	req := NewRequest(KindShieldedToShielded, "NOC", big.NewInt(9))
	req.RecipientKey = f.wallet.Pk
	res, err := f.engine.Execute(context.Background(), req)
	require.NoError(t, err)

	names := stepNames(res)
	require.NotEmpty(t, names)
	assert.Equal(t, "consolidate", names[0])
	assert.Equal(t, "transfer", names[len(names)-1])
	assert.Equal(t, big.NewInt(10), f.wallet.Balance("NOC"))
}

func TestWithdrawExactNoteSpendsInFull(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "NOC", 5, 3)

	req := NewRequest(KindWithdraw, "NOC", big.NewInt(5))
	req.Recipient = "noc1publicaddress"
	res, err := f.engine.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"withdraw"}, stepNames(res))
	assert.Equal(t, big.NewInt(3), f.wallet.Balance("NOC"))
	assert.Equal(t, []string{prover.CircuitWithdraw}, f.prover.circuits)
}

func TestWithdrawWithoutExactNoteDegradesToPartial(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "NOC", 5, 3)

	req := NewRequest(KindWithdraw, "NOC", big.NewInt(4))
	req.Recipient = "noc1publicaddress"
	res, err := f.engine.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"partial-split", "withdraw"}, stepNames(res))
	// 8 funded, 4 withdrawn, 2 fee: change 2 remains.
	assert.Equal(t, big.NewInt(2), f.wallet.Balance("NOC"))
}

func TestNullifierRaceRecoversAsSuccess(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "NOC", 5)
	rec := f.wallet.UnspentByToken("NOC")[0]

	// A previous submission of ours already landed this nullifier.
	require.NoError(t, f.mem.SpendNullifier(rec.Note.Nullifier()))

	req := NewRequest(KindWithdraw, "NOC", big.NewInt(5))
	req.Recipient = "noc1publicaddress"
	res, err := f.engine.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.True(t, res.Recovered)
	assert.True(t, rec.Spent, "reconciliation must adopt the on-chain spend")
}

func TestWithdrawWithoutAmountFailsCleanly(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "NOC", 10)

	req := NewRequest(KindWithdraw, "NOC", nil)
	req.Recipient = "pub-address-1"
	res, err := f.engine.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, f.prover.circuits)

	req = NewRequest(KindWithdraw, "NOC", big.NewInt(-4))
	req.Recipient = "pub-address-1"
	_, err = f.engine.Execute(context.Background(), req)
	require.Error(t, err)
}

func TestInsufficientBalanceIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "NOC", 5, 3, 2)

	req := NewRequest(KindShieldedToShielded, "NOC", big.NewInt(11))
	req.RecipientKey = f.wallet.Pk
	_, err := f.engine.Execute(context.Background(), req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, wallet.ErrPipelineBusy)
}

func TestConcurrentPipelineIsRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "NOC", 5)

	require.NoError(t, f.wallet.BeginPipeline())
	defer f.wallet.EndPipeline()

	req := NewRequest(KindWithdraw, "NOC", big.NewInt(5))
	_, err := f.engine.Execute(context.Background(), req)
	assert.ErrorIs(t, err, wallet.ErrPipelineBusy)
}

func TestConsolidationKindFoldsFragments(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "NOC", 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)

	res, err := f.engine.Execute(context.Background(), NewRequest(KindConsolidation, "NOC", nil))
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.NotEmpty(t, res.Steps)
	assert.Equal(t, big.NewInt(10), f.wallet.Balance("NOC"))
	assert.LessOrEqual(t, len(f.wallet.UnspentByToken("NOC")), 4)
}
