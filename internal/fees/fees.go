// fees.go - Fee accounting for shielded operations.
//
// Every shielded operation pays one flat fee denominated in a single reference
// token, no matter which token is moved. When the moved token is the fee token
// the fee folds into the circuit's balance equation; otherwise it is paid by a
// separate spend of a fee-token note, because a circuit balances one token
// type only. Cross-token deduction from the change note is never allowed.
//
// All planning happens before any proof is generated, so a fee shortfall fails
// fast without wasting proving time.

package fees

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/noctura/shield/internal/note"
)

// ErrInsufficientFeeFunds means no fee-token note of at least the flat fee
// exists. Distinct from a main-balance shortfall.
var ErrInsufficientFeeFunds = errors.New("fees: no fee-token note covers the flat fee")

// FundingMode describes how the flat fee is paid.
type FundingMode int

const (
	// FundInline folds the fee into the moved token's balance equation.
	FundInline FundingMode = iota
	// FundSeparateNote spends a distinct fee-token note of exactly the fee.
	FundSeparateNote
)

func (m FundingMode) String() string {
	switch m {
	case FundInline:
		return "inline"
	case FundSeparateNote:
		return "separate-note"
	default:
		return fmt.Sprintf("fees.FundingMode(%d)", int(m))
	}
}

// SplitPlan is the prerequisite operation that manufactures an exact-fee note
// by splitting a larger fee-token note into (fee, change). It runs as its own
// transfer-shaped step with its own success or failure, never folded silently
// into the main operation.
type SplitPlan struct {
	Source *note.Record // fee-token note to split
	Fee    *big.Int     // exact-fee output
	Change *big.Int     // source amount minus fee
}

// Plan is the resolved funding decision for one operation.
type Plan struct {
	Mode    FundingMode
	Fee     *big.Int
	FeeNote *note.Record // exact-fee note to spend; nil while Split is pending
	Split   *SplitPlan   // nil when no manufacture step is needed
}

// Accountant applies the flat-fee policy.
type Accountant struct {
	feeToken string
	feeMint  *big.Int
	flatFee  *big.Int

	shieldFeeBps   uint16
	priorityFeeBps uint16
}

// NewAccountant creates an accountant charging flatFee in feeToken. Deposit
// fees are basis-point scaled; the priority lane never undercuts the base fee.
func NewAccountant(feeToken string, flatFee *big.Int, shieldFeeBps, priorityFeeBps uint16) *Accountant {
	if priorityFeeBps < shieldFeeBps {
		priorityFeeBps = shieldFeeBps
	}
	return &Accountant{
		feeToken:       feeToken,
		feeMint:        note.MintForToken(feeToken),
		flatFee:        new(big.Int).Set(flatFee),
		shieldFeeBps:   shieldFeeBps,
		priorityFeeBps: priorityFeeBps,
	}
}

// FeeToken returns the reference token symbol.
func (a *Accountant) FeeToken() string {
	return a.feeToken
}

// FeeMint returns the mint field element of the fee token.
func (a *Accountant) FeeMint() *big.Int {
	return new(big.Int).Set(a.feeMint)
}

// FlatFee returns the flat per-operation fee.
func (a *Accountant) FlatFee() *big.Int {
	return new(big.Int).Set(a.flatFee)
}

// DepositFee computes the basis-point shield fee on a transparent deposit.
func (a *Accountant) DepositFee(amount *big.Int, priority bool) *big.Int {
	bps := a.shieldFeeBps
	if priority {
		bps = a.priorityFeeBps
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Div(fee, big.NewInt(10_000))
}

// PlanFee resolves how the flat fee for moving movedToken is funded, given the
// wallet's unspent fee-token notes.
func (a *Accountant) PlanFee(movedToken string, feeNotes []*note.Record) (*Plan, error) {
	if movedToken == a.feeToken {
		return &Plan{Mode: FundInline, Fee: a.FlatFee()}, nil
	}

	candidates := make([]*note.Record, 0, len(feeNotes))
	for _, r := range feeNotes {
		if r.Spent {
			continue
		}
		if r.Note.TokenMint.Cmp(a.feeMint) != 0 {
			return nil, fmt.Errorf("fees: note with mint of %q offered as fee funding", r.TokenType)
		}
		candidates = append(candidates, r)
	}

	// An exact-fee note spends directly, no extra step.
	for _, r := range candidates {
		if r.Note.Amount.Cmp(a.flatFee) == 0 {
			return &Plan{Mode: FundSeparateNote, Fee: a.FlatFee(), FeeNote: r}, nil
		}
	}

	// Otherwise split the smallest note that covers the fee. Smallest keeps
	// large fee-token notes intact; deterministic via leaf-index tie break.
	sort.SliceStable(candidates, func(i, j int) bool {
		cmp := candidates[i].Note.Amount.Cmp(candidates[j].Note.Amount)
		if cmp != 0 {
			return cmp < 0
		}
		return candidates[i].LeafIndex < candidates[j].LeafIndex
	})
	for _, r := range candidates {
		if r.Note.Amount.Cmp(a.flatFee) > 0 {
			return &Plan{
				Mode: FundSeparateNote,
				Fee:  a.FlatFee(),
				Split: &SplitPlan{
					Source: r,
					Fee:    a.FlatFee(),
					Change: new(big.Int).Sub(r.Note.Amount, a.flatFee),
				},
			}, nil
		}
	}

	return nil, ErrInsufficientFeeFunds
}
