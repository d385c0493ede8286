// engine.go - Transfer orchestration pipeline.
//
// One logical request runs as a strictly sequential pipeline: planning (note
// selection and fee resolution, all failures surfaced before any proving
// time is spent), then proof generation and submission step by step in fixed
// order (consolidation, fee-note split, main operation), then reconciliation.
// Every step's Merkle proof depends on the exact chain state left by the
// previous step, so the tree is resynced before each proof. A request may be
// abandoned freely before its first submission; once a step has landed, the
// pipeline completes that step's reconciliation even when a later step fails.

package engine

import (
	"context"
	"math/big"

	"github.com/pkg/errors"

	"github.com/noctura/shield/internal/chain"
	"github.com/noctura/shield/internal/consolidate"
	"github.com/noctura/shield/internal/fees"
	"github.com/noctura/shield/internal/merkle"
	"github.com/noctura/shield/internal/note"
	"github.com/noctura/shield/internal/prover"
	"github.com/noctura/shield/internal/relay"
	"github.com/noctura/shield/internal/selector"
	"github.com/noctura/shield/internal/transactions/transfer"
	"github.com/noctura/shield/internal/wallet"
)

// maxRootRetries bounds stale-root rebuild attempts per step.
const maxRootRetries = 3

// Engine coordinates all collaborators behind one pipeline entry point.
type Engine struct {
	wallet  *wallet.Wallet
	prover  prover.Prover
	relayer relay.Relayer
	reader  chain.StateReader
	fees    *fees.Accountant
	consol  *consolidate.Consolidator
	height  int
}

// New builds an engine. height is the accumulator height; zero means the
// default.
func New(w *wallet.Wallet, p prover.Prover, r relay.Relayer, reader chain.StateReader, acct *fees.Accountant, height int) *Engine {
	if height <= 0 {
		height = merkle.DefaultHeight
	}
	return &Engine{
		wallet:  w,
		prover:  p,
		relayer: r,
		reader:  reader,
		fees:    acct,
		consol:  consolidate.New(w, p, r, reader, height),
		height:  height,
	}
}

// Execute runs one request to a terminal state. The wallet's pipeline lock is
// held for the whole run; a concurrent Execute on the same wallet fails with
// wallet.ErrPipelineBusy instead of racing on note selection.
func (e *Engine) Execute(ctx context.Context, req *Request) (*Result, error) {
	if err := e.wallet.BeginPipeline(); err != nil {
		return nil, err
	}
	defer e.wallet.EndPipeline()

	res := &Result{ID: req.ID, State: StatePlanning}
	var err error
	switch req.Kind {
	case KindWithdraw:
		err = e.runWithdraw(ctx, req, res)
	case KindPartialTransfer:
		err = e.runPartial(ctx, req, res)
	case KindShieldedToShielded:
		err = e.runShielded(ctx, req, res)
	case KindConsolidation:
		err = e.runConsolidation(ctx, req, res)
	default:
		err = errors.Errorf("engine: unknown request kind %q", req.Kind)
	}

	if err != nil {
		res.State = StateFailed
		return res, err
	}
	res.State = StateDone
	return res, nil
}

// plan resolves inputs and fee funding for a request, consolidating first
// when the balance covers the target but the input cap does not.
type plan struct {
	inputs  []*note.Record
	mint    *big.Int
	fee     *fees.Plan
	// inlineFee is the fee folded into the main circuit's balance
	// equation; zero when the fee travels as a separate note.
	inlineFee *big.Int
}

func (e *Engine) buildPlan(ctx context.Context, req *Request, res *Result) (*plan, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, errors.New("engine: amount must be positive")
	}

	feePlan, err := e.fees.PlanFee(req.TokenType, e.wallet.UnspentByToken(e.fees.FeeToken()))
	if err != nil {
		return nil, err
	}
	inlineFee := new(big.Int)
	if feePlan.Mode == fees.FundInline {
		inlineFee.Set(feePlan.Fee)
	}

	target := new(big.Int).Add(req.Amount, inlineFee)
	sel, err := e.selectWithConsolidation(ctx, res, req.TokenType, target)
	if err != nil {
		return nil, err
	}

	return &plan{
		inputs:    sel.Records,
		mint:      sel.Records[0].Note.TokenMint,
		fee:       feePlan,
		inlineFee: inlineFee,
	}, nil
}

// selectWithConsolidation retries selection once after folding the token's
// notes under the input cap. TooManyNotes is a scheduling condition here, not
// a user-facing failure.
func (e *Engine) selectWithConsolidation(ctx context.Context, res *Result, tokenType string, target *big.Int) (*selector.Selection, error) {
	records := e.provable(tokenType)
	sel, err := selector.Select(records, target, transfer.MaxInputs)
	if err == nil {
		return sel, nil
	}
	if !errors.Is(err, selector.ErrTooManyNotes) {
		return nil, err
	}
	cres, cerr := e.consol.Run(ctx, tokenType, transfer.MaxInputs)
	for _, step := range cres.Steps {
		res.Steps = append(res.Steps, CommittedStep{
			Name:      "consolidate",
			Signature: step.Signature,
			Outputs:   [][]byte{step.Output.Note.Commitment},
		})
	}
	if cerr != nil {
		return nil, errors.Wrap(cerr, "consolidating ahead of selection")
	}
	return selector.Select(e.provable(tokenType), target, transfer.MaxInputs)
}

// provable returns unspent records whose accumulator position is known.
func (e *Engine) provable(tokenType string) []*note.Record {
	var out []*note.Record
	for _, rec := range e.wallet.UnspentByToken(tokenType) {
		if rec.LeafIndex != note.UnknownLeaf {
			out = append(out, rec)
		}
	}
	return out
}

// syncTree rebuilds the local accumulator mirror from chain state.
func (e *Engine) syncTree(ctx context.Context) (*merkle.Tree, error) {
	leaves, err := e.wallet.SyncLeaves(ctx, e.reader)
	if err != nil {
		return nil, err
	}
	tree, err := merkle.FromLeaves(e.height, leaves)
	if err != nil {
		return nil, errors.Wrap(err, "rebuilding accumulator")
	}
	return tree, nil
}

func (e *Engine) proveInputs(tree *merkle.Tree, records []*note.Record) ([]transfer.Input, error) {
	inputs := make([]transfer.Input, 0, len(records))
	for _, rec := range records {
		proof, err := tree.Prove(uint64(rec.LeafIndex))
		if err != nil {
			return nil, errors.Wrapf(err, "proving inclusion of leaf %d", rec.LeafIndex)
		}
		inputs = append(inputs, transfer.Input{Note: rec.Note, Proof: proof})
	}
	return inputs, nil
}

// recordCommitted appends a committed step to the result. Called only after
// the relay accepted the submission.
func (res *Result) recordCommitted(name string, receipt *relay.Receipt, nullifiers, outputs [][]byte) {
	res.Steps = append(res.Steps, CommittedStep{
		Name:       name,
		Signature:  receipt.Signature,
		Nullifiers: nullifiers,
		Outputs:    outputs,
	})
}

// reconcileRecovered resolves a nullifier race with an earlier submission of
// our own: chain state is authoritative, local flags follow it.
func (e *Engine) reconcileRecovered(ctx context.Context, res *Result) error {
	res.State = StateReconciling
	if err := e.wallet.ReconcileSpent(ctx, e.reader); err != nil {
		return err
	}
	res.Recovered = true
	return nil
}
