// deposit.go - Shielding public funds into the pool.

package engine

import (
	"context"
	"math/big"

	"github.com/pkg/errors"

	"github.com/noctura/shield/internal/note"
	"github.com/noctura/shield/internal/prover"
	"github.com/noctura/shield/internal/relay"
	"github.com/noctura/shield/internal/transactions/deposit"
)

// Deposit shields a public amount into a fresh note. The basis-point shield
// fee comes off the top, so the minted note carries the net value; the
// priority lane pays its higher rate for earlier inclusion.
func (e *Engine) Deposit(ctx context.Context, tokenType string, amount *big.Int, priority bool) (*note.Record, error) {
	if err := e.wallet.BeginPipeline(); err != nil {
		return nil, err
	}
	defer e.wallet.EndPipeline()

	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("engine: deposit amount must be positive")
	}
	fee := e.fees.DepositFee(amount, priority)
	net := new(big.Int).Sub(amount, fee)
	if net.Sign() <= 0 {
		return nil, errors.Errorf("engine: deposit of %s is consumed entirely by the %s shield fee", amount, fee)
	}

	mint := e.wallet.RegisterToken(tokenType)
	asn, err := deposit.BuildWitness(net, mint, e.wallet.OwnerSecret)
	if err != nil {
		return nil, err
	}
	pf, err := e.prover.Prove(ctx, prover.CircuitDeposit, asn.Circuit)
	if err != nil {
		return nil, err
	}

	receipt, err := e.relayer.RelayDeposit(ctx, &relay.DepositRequest{
		Commitment: asn.Commitment,
		Amount:     amount,
		Mint:       mint,
		Priority:   priority,
		Proof:      pf.ProofBytes,
	})
	if err != nil {
		return nil, err
	}
	return e.registerOutput(asn.Note, tokenType, receipt, 0), nil
}
