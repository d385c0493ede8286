// consolidate.go - Multi-step note consolidation.
//
// A wallet fragmented into many small notes cannot fund a large transfer
// under the per-proof input cap. The consolidator merges notes in batches,
// smallest first, until the count of unspent notes for a token fits under the
// target. Each step is a full prove-and-relay round; the step's output lands
// on chain before the next step proves against the refreshed tree, so an
// abort mid-run always leaves the wallet holding the successful prefix.

package consolidate

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/noctura/shield/internal/chain"
	"github.com/noctura/shield/internal/delivery"
	"github.com/noctura/shield/internal/merkle"
	"github.com/noctura/shield/internal/note"
	"github.com/noctura/shield/internal/prover"
	"github.com/noctura/shield/internal/relay"
	txconsolidate "github.com/noctura/shield/internal/transactions/consolidate"
	"github.com/noctura/shield/internal/transactions/transfer"
	"github.com/noctura/shield/internal/wallet"
)

// maxStepRetries bounds stale-root resync attempts per step before aborting.
const maxStepRetries = 3

// Step records one completed consolidation round.
type Step struct {
	Inputs    []*note.Record
	Output    *note.Record
	Signature string
}

// Result reports the rounds that landed and the note count left afterwards.
// On an aborted run, Steps holds the successful prefix.
type Result struct {
	Steps     []Step
	Remaining int
}

// Consolidator folds fragmented balances back under the transfer input cap.
type Consolidator struct {
	wallet  *wallet.Wallet
	prover  prover.Prover
	relayer relay.Relayer
	reader  chain.StateReader
	height  int
}

// New builds a consolidator. height is the accumulator height; zero means
// the default.
func New(w *wallet.Wallet, p prover.Prover, r relay.Relayer, reader chain.StateReader, height int) *Consolidator {
	if height <= 0 {
		height = merkle.DefaultHeight
	}
	return &Consolidator{wallet: w, prover: p, relayer: r, reader: reader, height: height}
}

// Run merges notes of tokenType until at most target remain. A zero target
// means the transfer input cap. The returned Result is valid even on error:
// it reports whatever prefix of steps landed before the abort.
func (c *Consolidator) Run(ctx context.Context, tokenType string, target int) (*Result, error) {
	if target <= 0 {
		target = transfer.MaxInputs
	}
	res := &Result{}

	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			res.Remaining = len(c.wallet.UnspentByToken(tokenType))
			return res, err
		}

		records := c.provable(tokenType)
		res.Remaining = len(records)
		if len(records) <= target {
			return res, nil
		}

		step, err := c.runStep(ctx, tokenType, records)
		switch {
		case err == nil:
			res.Steps = append(res.Steps, *step)
			retries = 0
		case errors.Is(err, relay.ErrStaleRoot) || errors.Is(err, relay.ErrNullifierSpent):
			// Local view drifted from the chain. Resync and retry the
			// step against fresh state.
			retries++
			if retries > maxStepRetries {
				res.Remaining = len(c.wallet.UnspentByToken(tokenType))
				return res, errors.Wrap(err, "consolidation step kept failing after resync")
			}
			if rerr := c.wallet.ReconcileSpent(ctx, c.reader); rerr != nil {
				res.Remaining = len(c.wallet.UnspentByToken(tokenType))
				return res, rerr
			}
		default:
			res.Remaining = len(c.wallet.UnspentByToken(tokenType))
			return res, err
		}
	}
}

// provable returns the unspent notes whose accumulator position is known,
// ordered smallest first so dust is folded before value notes.
func (c *Consolidator) provable(tokenType string) []*note.Record {
	var records []*note.Record
	for _, rec := range c.wallet.UnspentByToken(tokenType) {
		if rec.LeafIndex != note.UnknownLeaf {
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if cmp := records[i].Note.Amount.Cmp(records[j].Note.Amount); cmp != 0 {
			return cmp < 0
		}
		return records[i].LeafIndex < records[j].LeafIndex
	})
	return records
}

func (c *Consolidator) runStep(ctx context.Context, tokenType string, records []*note.Record) (*Step, error) {
	batchSize := txconsolidate.BatchInputs
	if len(records) < batchSize {
		batchSize = len(records)
	}
	batch := records[:batchSize]

	leaves, err := c.wallet.SyncLeaves(ctx, c.reader)
	if err != nil {
		return nil, err
	}
	tree, err := merkle.FromLeaves(c.height, leaves)
	if err != nil {
		return nil, errors.Wrap(err, "rebuilding accumulator")
	}

	inputs := make([]txconsolidate.Input, 0, len(batch))
	for _, rec := range batch {
		proof, err := tree.Prove(uint64(rec.LeafIndex))
		if err != nil {
			return nil, errors.Wrapf(err, "proving inclusion of leaf %d", rec.LeafIndex)
		}
		inputs = append(inputs, txconsolidate.Input{Note: rec.Note, Proof: proof})
	}

	asn, err := txconsolidate.BuildWitness(inputs, c.wallet.OwnerSecret)
	if err != nil {
		return nil, err
	}
	pf, err := c.prover.Prove(ctx, prover.CircuitConsolidate, asn.Circuit)
	if err != nil {
		return nil, err
	}

	// The merged note is addressed to ourselves so a restarted wallet can
	// recover it through the ordinary discovery path.
	payload, err := delivery.Encrypt(note.PayloadFromNote(asn.Output), c.wallet.Pk)
	if err != nil {
		return nil, err
	}

	receipt, err := c.relayer.RelayTransfer(ctx, &relay.TransferRequest{
		Proof:             pf.ProofBytes,
		Root:              asn.Root,
		Nullifiers:        asn.Nullifiers,
		OutputCommitments: [][]byte{asn.Output.Commitment, asn.Dummy.Commitment},
		EncryptedPayload:  payload,
	})
	if err != nil {
		return nil, err
	}

	for _, rec := range batch {
		if err := c.wallet.MarkSpent(rec.Note.Commitment); err != nil {
			return nil, err
		}
	}
	leafIndex := note.UnknownLeaf
	if len(receipt.LeafIndices) > 0 {
		leafIndex = int64(receipt.LeafIndices[0])
	}
	out := note.NewRecord(asn.Output, c.wallet.Owner(), tokenType, leafIndex, receipt.Signature)
	c.wallet.AddRecord(out)

	return &Step{Inputs: batch, Output: out, Signature: receipt.Signature}, nil
}
