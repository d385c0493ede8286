// steps.go - Concrete pipeline shapes and their submission steps.

package engine

import (
	"context"
	"math/big"

	"github.com/pkg/errors"

	"github.com/noctura/shield/internal/delivery"
	"github.com/noctura/shield/internal/fees"
	"github.com/noctura/shield/internal/note"
	"github.com/noctura/shield/internal/prover"
	"github.com/noctura/shield/internal/relay"
	"github.com/noctura/shield/internal/transactions/transfer"
	"github.com/noctura/shield/internal/transactions/withdraw"
)

// transferStep is one transfer-shaped submission: inputs, the two outputs,
// the fee folded into the balance equation, and an optional payload to
// publish with the transaction.
type transferStep struct {
	name    string
	inputs  []*note.Record
	outputs [2]*note.Note
	fee     *big.Int
	payload *delivery.Encrypted
}

// submitTransfer proves and relays one transfer step. A stale root triggers a
// resync and full re-proof; a nullifier race with our own earlier submission
// is reconciled and reported as recovered. Only these two outcomes are
// retried or absorbed, everything else aborts the step.
func (e *Engine) submitTransfer(ctx context.Context, res *Result, step *transferStep) (*relay.Receipt, bool, error) {
	for attempt := 0; attempt < maxRootRetries; attempt++ {
		res.State = StateProofGeneration
		tree, err := e.syncTree(ctx)
		if err != nil {
			return nil, false, err
		}
		inputs, err := e.proveInputs(tree, step.inputs)
		if err != nil {
			return nil, false, err
		}
		asn, err := transfer.BuildWitness(inputs, step.outputs, step.fee)
		if err != nil {
			return nil, false, err
		}
		pf, err := e.prover.Prove(ctx, prover.CircuitTransfer, asn.Circuit)
		if err != nil {
			return nil, false, err
		}

		res.State = StateSubmitting
		receipt, err := e.relayer.RelayTransfer(ctx, &relay.TransferRequest{
			Proof:             pf.ProofBytes,
			Root:              asn.Root,
			Nullifiers:        asn.Nullifiers,
			OutputCommitments: [][]byte{step.outputs[0].Commitment, step.outputs[1].Commitment},
			EncryptedPayload:  step.payload,
		})
		switch {
		case err == nil:
			res.recordCommitted(step.name, receipt, asn.Nullifiers,
				[][]byte{step.outputs[0].Commitment, step.outputs[1].Commitment})
			return receipt, false, nil
		case errors.Is(err, relay.ErrStaleRoot):
			continue
		case errors.Is(err, relay.ErrNullifierSpent):
			if rerr := e.reconcileRecovered(ctx, res); rerr != nil {
				return nil, false, rerr
			}
			return nil, true, nil
		default:
			return nil, false, err
		}
	}
	return nil, false, errors.Wrapf(relay.ErrStaleRoot, "step %s exhausted root retries", step.name)
}

// fundFee executes the fee prerequisite steps for a separate-note plan: the
// optional split that manufactures an exact-fee note, then the spend of that
// note. Inline plans need nothing here. Returns true when the whole request
// was recovered from a nullifier race mid-funding.
func (e *Engine) fundFee(ctx context.Context, res *Result, p *plan) (bool, error) {
	if p.fee.Mode == fees.FundInline {
		return false, nil
	}

	feeNote := p.fee.FeeNote
	if sp := p.fee.Split; sp != nil {
		exact := note.New(new(big.Int).Set(sp.Fee), e.fees.FeeMint(), e.wallet.OwnerSecret)
		change := note.New(new(big.Int).Set(sp.Change), e.fees.FeeMint(), e.wallet.OwnerSecret)
		receipt, recovered, err := e.submitTransfer(ctx, res, &transferStep{
			name:    "fee-note-split",
			inputs:  []*note.Record{sp.Source},
			outputs: [2]*note.Note{exact, change},
			fee:     new(big.Int),
		})
		if err != nil || recovered {
			return recovered, err
		}

		res.State = StateReconciling
		if err := e.wallet.MarkSpent(sp.Source.Note.Commitment); err != nil {
			return false, err
		}
		feeRec := e.registerOutput(exact, e.fees.FeeToken(), receipt, 0)
		e.registerOutput(change, e.fees.FeeToken(), receipt, 1)
		feeNote = feeRec
	}

	// The exact-fee note burns down to two zero-value outputs; its whole
	// value is the folded fee.
	zeroA := note.New(new(big.Int), e.fees.FeeMint(), e.wallet.OwnerSecret)
	zeroB := note.New(new(big.Int), e.fees.FeeMint(), e.wallet.OwnerSecret)
	_, recovered, err := e.submitTransfer(ctx, res, &transferStep{
		name:    "fee-note-spend",
		inputs:  []*note.Record{feeNote},
		outputs: [2]*note.Note{zeroA, zeroB},
		fee:     e.fees.FlatFee(),
	})
	if err != nil || recovered {
		return recovered, err
	}
	res.State = StateReconciling
	return false, e.wallet.MarkSpent(feeNote.Note.Commitment)
}

// registerOutput books an output note into the wallet with its assigned leaf.
func (e *Engine) registerOutput(n *note.Note, tokenType string, receipt *relay.Receipt, slot int) *note.Record {
	leafIndex := note.UnknownLeaf
	if slot < len(receipt.LeafIndices) {
		leafIndex = int64(receipt.LeafIndices[slot])
	}
	rec := note.NewRecord(n, e.wallet.Owner(), tokenType, leafIndex, receipt.Signature)
	e.wallet.AddRecord(rec)
	return rec
}

func (e *Engine) runShielded(ctx context.Context, req *Request, res *Result) error {
	p, err := e.buildPlan(ctx, req, res)
	if err != nil {
		return err
	}
	if recovered, err := e.fundFee(ctx, res, p); err != nil || recovered {
		return err
	}

	total := new(big.Int)
	for _, rec := range p.inputs {
		total.Add(total, rec.Note.Amount)
	}
	changeAmt := new(big.Int).Sub(total, req.Amount)
	changeAmt.Sub(changeAmt, p.inlineFee)

	// Self-transfer short circuit: the output note is booked directly, no
	// encrypt/publish/discover round trip.
	selfTransfer := req.RecipientKey == nil || req.RecipientKey.Equal(e.wallet.Pk)

	var recipientNote *note.Note
	var payload *delivery.Encrypted
	if selfTransfer {
		recipientNote = note.New(new(big.Int).Set(req.Amount), p.mint, e.wallet.OwnerSecret)
	} else {
		recipientNote = note.New(new(big.Int).Set(req.Amount), p.mint, note.RandomBytes(32))
		res.Outgoing = delivery.NewOutgoing(recipientNote, req.RecipientKey)
		if err := res.Outgoing.Encrypt(); err != nil {
			return err
		}
		payload = res.Outgoing.Payload
	}
	change := note.New(changeAmt, p.mint, e.wallet.OwnerSecret)

	receipt, recovered, err := e.submitTransfer(ctx, res, &transferStep{
		name:    "transfer",
		inputs:  p.inputs,
		outputs: [2]*note.Note{recipientNote, change},
		fee:     p.inlineFee,
		payload: payload,
	})
	if err != nil {
		if res.Outgoing != nil {
			res.Outgoing.Fail(err.Error())
		}
		return err
	}
	if recovered {
		return nil
	}

	res.State = StateReconciling
	if res.Outgoing != nil {
		if err := res.Outgoing.MarkSubmitted(); err != nil {
			return err
		}
		if err := res.Outgoing.MarkDelivered(); err != nil {
			return err
		}
	}
	for _, rec := range p.inputs {
		if err := e.wallet.MarkSpent(rec.Note.Commitment); err != nil {
			return err
		}
	}
	if selfTransfer {
		e.registerOutput(recipientNote, req.TokenType, receipt, 0)
	}
	if changeAmt.Sign() > 0 {
		res.Change = e.registerOutput(change, req.TokenType, receipt, 1)
	}
	if res.Outgoing != nil {
		if err := res.Outgoing.MarkConfirmed(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runWithdraw(ctx context.Context, req *Request, res *Result) error {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return errors.New("engine: amount must be positive")
	}
	// A note of exactly the requested value withdraws directly, full spend,
	// the program deducting the flat fee from the public payout.
	for _, rec := range e.provable(req.TokenType) {
		if rec.Note.Amount.Cmp(req.Amount) == 0 {
			recovered, err := e.submitWithdraw(ctx, res, rec, req.Recipient, req.Amount, true)
			if err != nil || recovered {
				return err
			}
			res.State = StateReconciling
			return e.wallet.MarkSpent(rec.Note.Commitment)
		}
	}
	// No exact note: degrade to the partial shape.
	return e.runPartial(ctx, req, res)
}

func (e *Engine) runPartial(ctx context.Context, req *Request, res *Result) error {
	p, err := e.buildPlan(ctx, req, res)
	if err != nil {
		return err
	}
	if recovered, err := e.fundFee(ctx, res, p); err != nil || recovered {
		return err
	}

	total := new(big.Int)
	for _, rec := range p.inputs {
		total.Add(total, rec.Note.Amount)
	}
	changeAmt := new(big.Int).Sub(total, req.Amount)
	changeAmt.Sub(changeAmt, p.inlineFee)

	share := note.New(new(big.Int).Set(req.Amount), p.mint, e.wallet.OwnerSecret)
	change := note.New(changeAmt, p.mint, e.wallet.OwnerSecret)

	receipt, recovered, err := e.submitTransfer(ctx, res, &transferStep{
		name:    "partial-split",
		inputs:  p.inputs,
		outputs: [2]*note.Note{share, change},
		fee:     p.inlineFee,
	})
	if err != nil || recovered {
		return err
	}

	res.State = StateReconciling
	for _, rec := range p.inputs {
		if err := e.wallet.MarkSpent(rec.Note.Commitment); err != nil {
			return err
		}
	}
	shareRec := e.registerOutput(share, req.TokenType, receipt, 0)
	if changeAmt.Sign() > 0 {
		res.Change = e.registerOutput(change, req.TokenType, receipt, 1)
	}

	// The recipient share withdraws in full; the fee was already paid by
	// the split step.
	recovered, err = e.submitWithdraw(ctx, res, shareRec, req.Recipient, req.Amount, false)
	if err != nil || recovered {
		return err
	}
	res.State = StateReconciling
	return e.wallet.MarkSpent(shareRec.Note.Commitment)
}

// submitWithdraw proves and relays a full-spend withdraw of rec to a public
// recipient, with the same stale-root and nullifier-race handling as
// transfer steps.
func (e *Engine) submitWithdraw(ctx context.Context, res *Result, rec *note.Record, recipient string, amount *big.Int, collectFee bool) (bool, error) {
	for attempt := 0; attempt < maxRootRetries; attempt++ {
		res.State = StateProofGeneration
		tree, err := e.syncTree(ctx)
		if err != nil {
			return false, err
		}
		if rec.LeafIndex == note.UnknownLeaf {
			return false, errors.New("engine: withdraw input has no accumulator position")
		}
		proof, err := tree.Prove(uint64(rec.LeafIndex))
		if err != nil {
			return false, err
		}
		asn, err := withdraw.BuildWitness(rec.Note, proof, recipient)
		if err != nil {
			return false, err
		}
		pf, err := e.prover.Prove(ctx, prover.CircuitWithdraw, asn.Circuit)
		if err != nil {
			return false, err
		}

		res.State = StateSubmitting
		receipt, err := e.relayer.RelayWithdraw(ctx, &relay.WithdrawRequest{
			Proof:      pf.ProofBytes,
			Root:       asn.Root,
			Amount:     amount,
			Nullifier:  asn.Nullifier,
			Recipient:  recipient,
			Mint:       rec.Note.TokenMint,
			CollectFee: collectFee,
		})
		switch {
		case err == nil:
			res.recordCommitted("withdraw", receipt, [][]byte{asn.Nullifier}, nil)
			return false, nil
		case errors.Is(err, relay.ErrStaleRoot):
			continue
		case errors.Is(err, relay.ErrNullifierSpent):
			if rerr := e.reconcileRecovered(ctx, res); rerr != nil {
				return false, rerr
			}
			return true, nil
		default:
			return false, err
		}
	}
	return false, errors.Wrap(relay.ErrStaleRoot, "withdraw exhausted root retries")
}

func (e *Engine) runConsolidation(ctx context.Context, req *Request, res *Result) error {
	res.State = StateProofGeneration
	cres, err := e.consol.Run(ctx, req.TokenType, transfer.MaxInputs)
	for _, step := range cres.Steps {
		res.Steps = append(res.Steps, CommittedStep{
			Name:      "consolidate",
			Signature: step.Signature,
			Outputs:   [][]byte{step.Output.Note.Commitment},
		})
	}
	return err
}
