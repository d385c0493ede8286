// local.go - Relayer bound to an in-process chain.

package relay

import (
	"context"
	"errors"

	"github.com/noctura/shield/internal/chain"
)

// Local submits directly into a chain.Memory. It enforces the same observable
// rules as the program: root window membership, nullifier uniqueness, leaf
// assignment in insertion order.
type Local struct {
	chain *chain.Memory
}

// NewLocal creates a relayer over an in-process chain.
func NewLocal(c *chain.Memory) *Local {
	return &Local{chain: c}
}

// RelayTransfer implements Relayer.
func (l *Local) RelayTransfer(ctx context.Context, req *TransferRequest) (*Receipt, error) {
	if ok, err := l.chain.ContainsRoot(ctx, req.Root); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrStaleRoot
	}
	// The program rejects the whole instruction before touching state, so a
	// bad nullifier must not leave the earlier ones spent.
	seen := make(map[string]struct{}, len(req.Nullifiers))
	for _, nf := range req.Nullifiers {
		if _, dup := seen[string(nf)]; dup {
			return nil, ErrNullifierSpent
		}
		seen[string(nf)] = struct{}{}
		spent, err := l.chain.IsNullifierSpent(ctx, nf)
		if err != nil {
			return nil, err
		}
		if spent {
			return nil, ErrNullifierSpent
		}
	}
	for _, nf := range req.Nullifiers {
		if err := l.chain.SpendNullifier(nf); err != nil {
			if errors.Is(err, chain.ErrNullifierUsed) {
				return nil, ErrNullifierSpent
			}
			return nil, err
		}
	}
	receipt := &Receipt{Signature: l.chain.NextSignature()}
	for _, cm := range req.OutputCommitments {
		idx, err := l.chain.AppendLeaf(cm)
		if err != nil {
			return nil, err
		}
		receipt.LeafIndices = append(receipt.LeafIndices, idx)
	}
	if req.EncryptedPayload != nil {
		l.chain.PublishPayload(req.EncryptedPayload, receipt.Signature)
	}
	return receipt, nil
}

// RelayWithdraw implements Relayer.
func (l *Local) RelayWithdraw(ctx context.Context, req *WithdrawRequest) (*Receipt, error) {
	if ok, err := l.chain.ContainsRoot(ctx, req.Root); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrStaleRoot
	}
	if err := l.chain.SpendNullifier(req.Nullifier); err != nil {
		if errors.Is(err, chain.ErrNullifierUsed) {
			return nil, ErrNullifierSpent
		}
		return nil, err
	}
	return &Receipt{Signature: l.chain.NextSignature()}, nil
}

// RelayDeposit implements Relayer.
func (l *Local) RelayDeposit(_ context.Context, req *DepositRequest) (*Receipt, error) {
	idx, err := l.chain.AppendLeaf(req.Commitment)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Signature:   l.chain.NextSignature(),
		LeafIndices: []uint64{idx},
	}, nil
}

var _ Relayer = (*Local)(nil)
