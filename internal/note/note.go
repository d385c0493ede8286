// note.go - Note type and derivation logic for the shielded pool.
//
// A Note is a shielded value record: an amount of one token, bound to an owner
// secret and two pieces of randomness. Its public face is the commitment, which
// is inserted into the on-chain accumulator; its spend is announced by the
// nullifier, which is unlinkable to the commitment without the secret.

package note

import (
	"crypto/rand"
	"math/big"

	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

// Note represents a shielded value record. A note is never mutated once
// created; spending it produces new notes.
type Note struct {
	Amount     *big.Int // Value in the smallest unit of the token
	TokenMint  *big.Int // Field element identifying the asset class
	Secret     []byte   // Owner secret, never leaves the wallet unencrypted
	Blinding   []byte   // Commitment randomness
	Rho        []byte   // Nullifier randomness (unique per note)
	Commitment []byte   // MiMC(amount, tokenMint, secret, blinding, rho)
}

// New creates a note for the given amount and token mint, owned by secret.
// Blinding and rho are drawn fresh; the commitment is fixed at creation.
func New(amount, tokenMint *big.Int, secret []byte) *Note {
	blinding := randomBytes(32)
	rho := randomBytes(32)
	return &Note{
		Amount:     amount,
		TokenMint:  tokenMint,
		Secret:     secret,
		Blinding:   blinding,
		Rho:        rho,
		Commitment: ComputeCommitment(amount, tokenMint, secret, blinding, rho),
	}
}

// ComputeCommitment computes cm = H(amount || mint || secret || blinding || rho)
// using the same MiMC instance the circuits use. Every field is padded to one
// field element so the native hash agrees with the in-circuit one, including
// for zero amounts.
func ComputeCommitment(amount, tokenMint *big.Int, secret, blinding, rho []byte) []byte {
	h := mimcNative.NewMiMC()
	h.Write(PadField(amount.Bytes()))
	h.Write(PadField(tokenMint.Bytes()))
	h.Write(PadField(secret))
	h.Write(PadField(blinding))
	h.Write(PadField(rho))
	return h.Sum(nil)
}

// Nullifier computes nf = H'(secret, rho). It is revealed exactly once, at
// spend time; the on-chain nullifier set rejects a second appearance.
func (n *Note) Nullifier() []byte {
	return ComputeNullifier(n.Secret, n.Rho)
}

// ComputeNullifier is the PRF behind Nullifier, exposed for witness building.
func ComputeNullifier(secret, rho []byte) []byte {
	h := mimcNative.NewMiMC()
	h.Write(PadField(secret))
	h.Write(PadField(rho))
	return h.Sum(nil)
}

// MintForToken derives the canonical mint field element for a token symbol.
// One symbol maps to exactly one mint value.
func MintForToken(tokenType string) *big.Int {
	h := mimcNative.NewMiMC()
	h.Write(PadField([]byte(tokenType)))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// PadField left-pads b to the MiMC block size so each value hashes as exactly
// one field element.
func PadField(b []byte) []byte {
	if len(b) >= mimcNative.BlockSize {
		return b
	}
	out := make([]byte, mimcNative.BlockSize)
	copy(out[mimcNative.BlockSize-len(b):], b)
	return out
}

// randomBytes generates n random bytes using crypto/rand.
func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

// RandomBytes is the public wrapper for protocol randomness.
func RandomBytes(n int) []byte {
	return randomBytes(n)
}
