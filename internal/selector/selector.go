// selector.go - Coin selection over a wallet's unspent notes.
//
// Selection is deterministic: candidates are ordered by amount descending with
// leaf index as the tie break, and the largest notes are taken greedily until
// the target is covered or the circuit input arity is exhausted. The two
// failure kinds are distinct on purpose: a caller reacts to ErrTooManyNotes by
// consolidating and to ErrInsufficientBalance by reporting a hard shortfall.

package selector

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/noctura/shield/internal/note"
)

var (
	// ErrInsufficientBalance means the sum of all unspent notes is below the
	// target. Only a deposit can fix this.
	ErrInsufficientBalance = errors.New("selector: insufficient balance")
	// ErrTooManyNotes means the balance covers the target but no subset within
	// the input arity does. Consolidation fixes this.
	ErrTooManyNotes = errors.New("selector: target needs more notes than the circuit accepts")
)

// Selection is a chosen input set whose total covers the requested target.
type Selection struct {
	Records []*note.Record
	Total   *big.Int
}

// Select picks at most maxInputs unspent records of one token type whose
// amounts sum to at least target.
func Select(records []*note.Record, target *big.Int, maxInputs int) (*Selection, error) {
	if target == nil || target.Sign() <= 0 {
		return nil, fmt.Errorf("selector: target must be positive")
	}
	if maxInputs <= 0 {
		return nil, fmt.Errorf("selector: max inputs must be positive")
	}

	candidates := make([]*note.Record, 0, len(records))
	balance := new(big.Int)
	for _, r := range records {
		if r.Spent {
			continue
		}
		if len(candidates) > 0 && r.Note.TokenMint.Cmp(candidates[0].Note.TokenMint) != 0 {
			return nil, fmt.Errorf("selector: mixed token mints in candidate set")
		}
		candidates = append(candidates, r)
		balance.Add(balance, r.Note.Amount)
	}

	if balance.Cmp(target) < 0 {
		return nil, ErrInsufficientBalance
	}

	ordered := make([]*note.Record, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		cmp := ordered[i].Note.Amount.Cmp(ordered[j].Note.Amount)
		if cmp != 0 {
			return cmp > 0
		}
		if ordered[i].LeafIndex != ordered[j].LeafIndex {
			return ordered[i].LeafIndex < ordered[j].LeafIndex
		}
		return bytes.Compare(ordered[i].Note.Commitment, ordered[j].Note.Commitment) < 0
	})

	sel := &Selection{Total: new(big.Int)}
	for _, r := range ordered {
		if len(sel.Records) == maxInputs {
			break
		}
		sel.Records = append(sel.Records, r)
		sel.Total.Add(sel.Total, r.Note.Amount)
		if sel.Total.Cmp(target) >= 0 {
			return sel, nil
		}
	}

	// Balance was sufficient but the arity cap was not: taking the maxInputs
	// largest notes is optimal for a greedy-by-value bound, so no other subset
	// of that size can reach the target either.
	return nil, ErrTooManyNotes
}
