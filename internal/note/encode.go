// encode.go - Offline note export/import.
//
// An encoded note carries the full opening material as base64-wrapped JSON. It
// is the fallback delivery channel when the in-band encrypted path cannot be
// used (e.g. sharing a note out of band). Anyone holding the encoding owns the
// note, so the string must be treated like a private key.

package note

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// Payload is the opening material of a note: everything a recipient needs to
// take ownership and later spend it.
type Payload struct {
	Amount     *big.Int `json:"amount"`
	TokenMint  *big.Int `json:"tokenMint"`
	Secret     []byte   `json:"secret"`
	Blinding   []byte   `json:"blinding"`
	Rho        []byte   `json:"rho"`
	Commitment []byte   `json:"commitment"`
}

// PayloadFromNote extracts the opening material of n.
func PayloadFromNote(n *Note) *Payload {
	return &Payload{
		Amount:     n.Amount,
		TokenMint:  n.TokenMint,
		Secret:     n.Secret,
		Blinding:   n.Blinding,
		Rho:        n.Rho,
		Commitment: n.Commitment,
	}
}

// ToNote reconstructs the note, recomputing and checking the commitment.
// A payload whose commitment does not bind its own fields is rejected.
func (p *Payload) ToNote() (*Note, error) {
	if p.Amount == nil || p.TokenMint == nil {
		return nil, fmt.Errorf("note payload missing amount or mint")
	}
	if p.Amount.Sign() < 0 {
		return nil, fmt.Errorf("note payload has negative amount")
	}
	cm := ComputeCommitment(p.Amount, p.TokenMint, p.Secret, p.Blinding, p.Rho)
	if !bytes.Equal(cm, p.Commitment) {
		return nil, fmt.Errorf("note payload commitment mismatch")
	}
	return &Note{
		Amount:     p.Amount,
		TokenMint:  p.TokenMint,
		Secret:     p.Secret,
		Blinding:   p.Blinding,
		Rho:        p.Rho,
		Commitment: p.Commitment,
	}, nil
}

// Export serializes a note's opening material for manual sharing.
func Export(n *Note) (string, error) {
	raw, err := json.Marshal(PayloadFromNote(n))
	if err != nil {
		return "", fmt.Errorf("encoding note: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Import parses an exported note string and validates its commitment.
func Import(encoded string) (*Note, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding note: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing note: %w", err)
	}
	return p.ToNote()
}
