// scanner.go - Recipient-side note discovery.
//
// The scanner enumerates candidate encrypted payloads from recent transaction
// metadata and tries each against the wallet's delivery key. Payloads that are
// not addressed to this wallet are the common case and are skipped silently.
// Discovery only ever adds notes; it never mutates or removes notes a
// foreground pipeline is using.

package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/noctura/shield/internal/note"
)

// Candidate is one encrypted payload observed on-chain, with the transaction
// that carried it.
type Candidate struct {
	Payload   *Encrypted
	Signature string
}

// PayloadSource enumerates candidate payloads, e.g. from parsed transactions.
type PayloadSource interface {
	EncryptedPayloads(ctx context.Context) ([]Candidate, error)
}

// Store is the wallet surface the scanner appends into. It is add-only.
type Store interface {
	HasNote(commitment []byte) bool
	AddDiscovered(ctx context.Context, n *note.Note, signature string) error
}

// Scanner polls a payload source and claims notes addressed to its key.
type Scanner struct {
	keys     *KeyPair
	source   PayloadSource
	store    Store
	interval time.Duration
}

// NewScanner builds a scanner over source that appends into store.
func NewScanner(keys *KeyPair, source PayloadSource, store Store, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Scanner{keys: keys, source: source, store: store, interval: interval}
}

// ScanOnce runs one discovery pass and returns the number of notes claimed.
// Payloads that fail to decrypt are skipped; a source failure aborts the pass.
func (s *Scanner) ScanOnce(ctx context.Context) (int, error) {
	candidates, err := s.source.EncryptedPayloads(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing candidate payloads: %w", err)
	}

	claimed := 0
	for _, c := range candidates {
		p, err := Decrypt(c.Payload, s.keys.Sk)
		if err != nil {
			continue // not ours, the expected outcome for most payloads
		}
		if s.store.HasNote(p.Commitment) {
			continue // claimed in an earlier pass
		}
		n, err := p.ToNote()
		if err != nil {
			continue
		}
		if err := s.store.AddDiscovered(ctx, n, c.Signature); err != nil {
			return claimed, fmt.Errorf("recording discovered note: %w", err)
		}
		claimed++
	}
	return claimed, nil
}

// Run polls until the context is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.ScanOnce(ctx); err != nil {
				continue // a failed pass is retried on the next tick
			}
		}
	}
}
